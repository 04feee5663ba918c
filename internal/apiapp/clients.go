package apiapp

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/report"
	"github.com/liftcare/liftsuite/internal/store"
)

const maxImportBytes = 10 << 20

type clientRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	TaxID       string `json:"taxId" validate:"max=40"`
	ContactName string `json:"contactName" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=40"`
	Address     string `json:"address" validate:"max=300"`
}

func (req clientRequest) apply(c *model.Client) {
	c.Name = strings.TrimSpace(req.Name)
	c.TaxID = strings.TrimSpace(req.TaxID)
	c.ContactName = strings.TrimSpace(req.ContactName)
	c.Email = strings.TrimSpace(req.Email)
	c.Phone = strings.TrimSpace(req.Phone)
	c.Address = strings.TrimSpace(req.Address)
}

func (s *server) listClients(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	page, err := s.store.ListClients(r.Context(), scoped(user, listFilter(r)))
	if err != nil {
		s.storeError(w, r, err, "clients")
		return
	}
	writePage(w, page)
}

func (s *server) getClient(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	c, err := s.store.GetClient(r.Context(), pathID(r))
	if err == nil && user.Role == model.RoleClient && user.ClientID != c.ID {
		err = store.ErrNotFound
	}
	if err != nil {
		s.storeError(w, r, err, "client")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) createClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var c model.Client
	req.apply(&c)
	if err := s.store.CreateClient(r.Context(), &c); err != nil {
		s.storeError(w, r, err, "client")
		return
	}
	s.publish(r.Context(), "clients", realtime.EventInsert, c.ID, c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (s *server) updateClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetClient(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "client")
		return
	}
	var req clientRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.apply(&c)
	if err := s.store.UpdateClient(r.Context(), &c); err != nil {
		s.storeError(w, r, err, "client")
		return
	}
	s.publish(r.Context(), "clients", realtime.EventUpdate, c.ID, c.ID)
	writeJSON(w, http.StatusOK, c)
}

func (s *server) deleteClient(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := s.store.DeleteClient(r.Context(), id); err != nil {
		s.storeError(w, r, err, "client")
		return
	}
	s.publish(r.Context(), "clients", realtime.EventDelete, id, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "client deleted"})
}

func (s *server) importClients(w http.ResponseWriter, r *http.Request) {
	records, err := readImportUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ImportClients(r.Context(), s.store, records)
	if err != nil {
		s.storeError(w, r, err, "client import")
		return
	}
	s.logger.Info("clients imported", zap.Int("created", res.Created), zap.Int("updated", res.Updated), zap.Int("skipped", res.Skipped))
	s.publish(r.Context(), "clients", realtime.EventUpdate, "", "")
	writeJSON(w, http.StatusOK, res)
}

// readImportUpload parses the "file" field of a multipart spreadsheet upload.
func readImportUpload(r *http.Request) ([]map[string]string, error) {
	if err := r.ParseMultipartForm(maxImportBytes + (2 << 20)); err != nil {
		return nil, errors.New("invalid upload form")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("spreadsheet file is required")
	}
	defer file.Close()
	rows, err := report.ReadRows(io.LimitReader(file, maxImportBytes), header.Filename)
	if err != nil {
		return nil, errors.New("unable to read spreadsheet: " + err.Error())
	}
	records := report.Records(rows)
	if len(records) == 0 {
		return nil, errors.New("spreadsheet has no data rows")
	}
	return records, nil
}
