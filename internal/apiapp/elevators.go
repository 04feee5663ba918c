package apiapp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/qrcode"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/store"
)

type elevatorRequest struct {
	ClientID     string `json:"clientId" validate:"required"`
	Code         string `json:"code" validate:"required,max=40"`
	BuildingName string `json:"buildingName" validate:"required,max=200"`
	Address      string `json:"address" validate:"max=300"`
	Brand        string `json:"brand" validate:"max=80"`
	Model        string `json:"model" validate:"max=80"`
	SerialNumber string `json:"serialNumber" validate:"max=80"`
	Floors       int64  `json:"floors" validate:"gte=0,lte=300"`
	CapacityKg   int64  `json:"capacityKg" validate:"gte=0"`
	InstalledOn  string `json:"installedOn" validate:"omitempty,datetime=2006-01-02"`
	Status       string `json:"status" validate:"omitempty,oneof=operational maintenance stopped"`
}

func (req elevatorRequest) apply(e *model.Elevator) {
	e.ClientID = strings.TrimSpace(req.ClientID)
	e.Code = strings.TrimSpace(req.Code)
	e.BuildingName = strings.TrimSpace(req.BuildingName)
	e.Address = strings.TrimSpace(req.Address)
	e.Brand = strings.TrimSpace(req.Brand)
	e.Model = strings.TrimSpace(req.Model)
	e.SerialNumber = strings.TrimSpace(req.SerialNumber)
	e.Floors = req.Floors
	e.CapacityKg = req.CapacityKg
	e.InstalledOn = req.InstalledOn
	if req.Status != "" {
		e.Status = req.Status
	}
}

func (s *server) listElevators(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	page, err := s.store.ListElevators(r.Context(), scoped(user, listFilter(r)))
	if err != nil {
		s.storeError(w, r, err, "elevators")
		return
	}
	writePage(w, page)
}

func (s *server) getElevator(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	e, err := s.store.GetElevator(r.Context(), pathID(r))
	if err == nil && user.Role == model.RoleClient && user.ClientID != e.ClientID {
		err = store.ErrNotFound
	}
	if err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *server) createElevator(w http.ResponseWriter, r *http.Request) {
	var req elevatorRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.clientExists(w, r, req.ClientID) {
		return
	}
	var e model.Elevator
	req.apply(&e)
	if err := s.store.CreateElevator(r.Context(), &e); err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	s.publish(r.Context(), "elevators", realtime.EventInsert, e.ID, e.ClientID)
	writeJSON(w, http.StatusCreated, e)
}

func (s *server) updateElevator(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetElevator(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	var req elevatorRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ClientID != e.ClientID && !s.clientExists(w, r, req.ClientID) {
		return
	}
	req.apply(&e)
	if err := s.store.UpdateElevator(r.Context(), &e); err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	s.publish(r.Context(), "elevators", realtime.EventUpdate, e.ID, e.ClientID)
	writeJSON(w, http.StatusOK, e)
}

func (s *server) deleteElevator(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetElevator(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	if err := s.store.DeleteElevator(r.Context(), e.ID); err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	s.publish(r.Context(), "elevators", realtime.EventDelete, e.ID, e.ClientID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "elevator deleted"})
}

func (s *server) importElevators(w http.ResponseWriter, r *http.Request) {
	records, err := readImportUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ImportElevators(r.Context(), s.store, records)
	if err != nil {
		s.storeError(w, r, err, "elevator import")
		return
	}
	s.logger.Info("elevators imported", zap.Int("created", res.Created), zap.Int("updated", res.Updated), zap.Int("skipped", res.Skipped))
	s.publish(r.Context(), "elevators", realtime.EventUpdate, "", "")
	writeJSON(w, http.StatusOK, res)
}

func (s *server) clientExists(w http.ResponseWriter, r *http.Request, id string) bool {
	if _, err := s.store.GetClient(r.Context(), strings.TrimSpace(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "client does not exist")
			return false
		}
		s.storeError(w, r, err, "client")
		return false
	}
	return true
}

// rotateQRCode revokes the elevator's current sticker and issues a new token.
func (s *server) rotateQRCode(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetElevator(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	code, err := s.store.RotateQRCode(r.Context(), e.ID)
	if err != nil {
		s.storeError(w, r, err, "qr code")
		return
	}
	token, err := s.signer.Sign(e.ID, code.ID)
	if err != nil {
		s.logger.Error("sign qr token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to issue qr code")
		return
	}
	s.publish(r.Context(), "qr_codes", realtime.EventInsert, code.ID, e.ClientID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"code":  code,
		"token": token,
		"url":   qrcode.URL(s.publicBaseURL, token),
	})
}

// qrCodePNG renders the active code, issuing the first one on demand.
func (s *server) qrCodePNG(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetElevator(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	code, err := s.store.ActiveQRCode(r.Context(), e.ID)
	if errors.Is(err, store.ErrNotFound) {
		code, err = s.store.RotateQRCode(r.Context(), e.ID)
	}
	if err != nil {
		s.storeError(w, r, err, "qr code")
		return
	}
	token, err := s.signer.Sign(e.ID, code.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "unable to issue qr code")
		return
	}
	size := parsePositiveInt(r.URL.Query().Get("size"), 512)
	if size > 2048 {
		size = 2048
	}
	png, err := qrcode.PNG(qrcode.URL(s.publicBaseURL, token), size)
	if err != nil {
		s.logger.Error("render qr png", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "unable to render qr code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, no-store")
	_, _ = w.Write(png)
}

type publicElevatorInfo struct {
	Code            string `json:"code"`
	BuildingName    string `json:"buildingName"`
	Address         string `json:"address"`
	Status          string `json:"status"`
	LastMaintenance string `json:"lastMaintenance"`
	OpenEmergency   bool   `json:"openEmergency"`
}

// publicQRLookup answers scans of the sticker without a session. Unknown, revoked or mismatched
// codes are all reported as not found.
func (s *server) publicQRLookup(w http.ResponseWriter, r *http.Request) {
	elevatorID, codeID, err := s.signer.Verify(mux.Vars(r)["token"])
	if err != nil {
		writeError(w, http.StatusNotFound, "qr code not found")
		return
	}
	code, err := s.store.GetQRCode(r.Context(), codeID)
	if err != nil || !code.RevokedAt.IsZero() || code.ElevatorID != elevatorID {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("lookup qr code", zap.Error(err))
		}
		writeError(w, http.StatusNotFound, "qr code not found")
		return
	}
	e, err := s.store.GetElevator(r.Context(), elevatorID)
	if err != nil {
		s.storeError(w, r, err, "qr code")
		return
	}
	last, err := s.store.LastCompletedMaintenanceDate(r.Context(), e.ID)
	if err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	open, err := s.store.HasOpenEmergency(r.Context(), e.ID)
	if err != nil {
		s.storeError(w, r, err, "elevator")
		return
	}
	writeJSON(w, http.StatusOK, publicElevatorInfo{
		Code:            e.Code,
		BuildingName:    e.BuildingName,
		Address:         e.Address,
		Status:          e.Status,
		LastMaintenance: last,
		OpenEmergency:   open,
	})
}
