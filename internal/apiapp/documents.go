package apiapp

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/blobstore"
	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/store"
)

const maxDocumentBytes = 20 << 20

var documentMimes = []string{"application/pdf", "image/png", "image/jpeg"}

type documentRequest struct {
	ClientID   string `json:"clientId" validate:"required"`
	ElevatorID string `json:"elevatorId"`
	Title      string `json:"title" validate:"required,max=200"`
	Category   string `json:"category" validate:"omitempty,oneof=certificate contract permit inspection other"`
	IssuedOn   string `json:"issuedOn" validate:"omitempty,datetime=2006-01-02"`
	ExpiresOn  string `json:"expiresOn" validate:"omitempty,datetime=2006-01-02"`
}

func (s *server) listDocuments(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	f := scoped(user, listFilter(r))
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		f.Status = category
	}
	page, err := s.store.ListDocuments(r.Context(), f)
	if err != nil {
		s.storeError(w, r, err, "documents")
		return
	}
	writePage(w, page)
}

func (s *server) visibleDocument(r *http.Request) (model.LegalDocument, error) {
	d, err := s.store.GetDocument(r.Context(), pathID(r))
	if err != nil {
		return d, err
	}
	if !visible(userFromContext(r.Context()), d.ClientID, "", false) {
		return d, store.ErrNotFound
	}
	return d, nil
}

func (s *server) getDocument(w http.ResponseWriter, r *http.Request) {
	d, err := s.visibleDocument(r)
	if err != nil {
		s.storeError(w, r, err, "document")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// checkDocumentTargets validates the metadata shared by upload and update.
func (s *server) checkDocumentTargets(w http.ResponseWriter, r *http.Request, req documentRequest) bool {
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err).Error())
		return false
	}
	if req.IssuedOn != "" && req.ExpiresOn != "" && req.ExpiresOn < req.IssuedOn {
		writeError(w, http.StatusBadRequest, "expiresOn must not be before issuedOn")
		return false
	}
	if !s.clientExists(w, r, req.ClientID) {
		return false
	}
	if req.ElevatorID == "" {
		return true
	}
	elevator, ok := s.existingElevator(w, r, req.ElevatorID)
	if !ok {
		return false
	}
	if elevator.ClientID != req.ClientID {
		writeError(w, http.StatusBadRequest, "elevator does not belong to client")
		return false
	}
	return true
}

func (req *documentRequest) trim() {
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ElevatorID = strings.TrimSpace(req.ElevatorID)
	req.Title = strings.TrimSpace(req.Title)
	req.Category = strings.TrimSpace(req.Category)
	req.IssuedOn = strings.TrimSpace(req.IssuedOn)
	req.ExpiresOn = strings.TrimSpace(req.ExpiresOn)
	if req.Category == "" {
		req.Category = model.DocumentOther
	}
}

// uploadDocument stores a multipart "file" with its metadata form fields.
func (s *server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	raw, mime, fileName, err := parseUploadedFileWithField(r, "file", maxDocumentBytes, documentMimes, "document file is required")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := documentRequest{
		ClientID:   r.FormValue("clientId"),
		ElevatorID: r.FormValue("elevatorId"),
		Title:      r.FormValue("title"),
		Category:   r.FormValue("category"),
		IssuedOn:   r.FormValue("issuedOn"),
		ExpiresOn:  r.FormValue("expiresOn"),
	}
	req.trim()
	if req.Title == "" {
		req.Title = fileName
	}
	if !s.checkDocumentTargets(w, r, req) {
		return
	}

	key := blobstore.ContentKey("documents", blobstore.ExtensionForMime(mime), raw, s.now())
	if err := s.blobs.Put(r.Context(), key, mime, raw); err != nil {
		s.logger.Error("store document", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to store document")
		return
	}
	d := model.LegalDocument{
		ClientID:   req.ClientID,
		ElevatorID: req.ElevatorID,
		Title:      req.Title,
		Category:   req.Category,
		BlobKey:    key,
		FileName:   fileName,
		Mime:       mime,
		SizeBytes:  int64(len(raw)),
		IssuedOn:   req.IssuedOn,
		ExpiresOn:  req.ExpiresOn,
	}
	if err := s.store.CreateDocument(r.Context(), &d); err != nil {
		s.releaseBlobs(r.Context(), key)
		s.storeError(w, r, err, "document")
		return
	}
	s.publish(r.Context(), "legal_documents", realtime.EventInsert, d.ID, d.ClientID)
	writeJSON(w, http.StatusCreated, d)
}

func (s *server) updateDocument(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDocument(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "document")
		return
	}
	var req documentRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.trim()
	if !s.checkDocumentTargets(w, r, req) {
		return
	}
	if req.ExpiresOn != d.ExpiresOn {
		d.NotifiedAt = 0
	}
	d.ClientID = req.ClientID
	d.ElevatorID = req.ElevatorID
	d.Title = req.Title
	d.Category = req.Category
	d.IssuedOn = req.IssuedOn
	d.ExpiresOn = req.ExpiresOn
	if err := s.store.UpdateDocument(r.Context(), &d); err != nil {
		s.storeError(w, r, err, "document")
		return
	}
	s.publish(r.Context(), "legal_documents", realtime.EventUpdate, d.ID, d.ClientID)
	writeJSON(w, http.StatusOK, d)
}

func (s *server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDocument(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "document")
		return
	}
	if err := s.store.DeleteDocument(r.Context(), d.ID); err != nil {
		s.storeError(w, r, err, "document")
		return
	}
	s.releaseBlobs(r.Context(), d.BlobKey)
	s.publish(r.Context(), "legal_documents", realtime.EventDelete, d.ID, d.ClientID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

func (s *server) downloadDocument(w http.ResponseWriter, r *http.Request) {
	d, err := s.visibleDocument(r)
	if err != nil {
		s.storeError(w, r, err, "document")
		return
	}
	s.streamBlob(w, r, d.BlobKey, d.Mime, d.FileName, "attachment")
}
