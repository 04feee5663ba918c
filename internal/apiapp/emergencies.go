package apiapp

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/report"
)

type emergencyRequest struct {
	ElevatorID        string `json:"elevatorId" validate:"required"`
	TechnicianID      string `json:"technicianId"`
	FailureType       string `json:"failureType" validate:"required,max=120"`
	Description       string `json:"description" validate:"max=4000"`
	Resolution        string `json:"resolution" validate:"max=4000"`
	PassengersTrapped bool   `json:"passengersTrapped"`
}

type emergencyStatusRequest struct {
	Status       string `json:"status" validate:"required,oneof=en_route on_site resolved"`
	TechnicianID string `json:"technicianId"`
	Resolution   string `json:"resolution" validate:"max=4000"`
	Signature    string `json:"signature"`
}

func (s *server) listEmergencies(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	f := scoped(user, listFilter(r))
	f.IncludeUnassigned = user.Role == model.RoleTechnician
	page, err := s.store.ListEmergencies(r.Context(), f)
	if err != nil {
		s.storeError(w, r, err, "emergencies")
		return
	}
	writePage(w, page)
}

func (s *server) getEmergency(w http.ResponseWriter, r *http.Request) {
	e, err := s.visibleEmergency(r.Context(), userFromContext(r.Context()), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "emergency")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// createEmergency records a call from staff or from the owning client. Trapped passengers stop
// the elevator; staff are always notified.
func (s *server) createEmergency(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var req emergencyRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	elevator, ok := s.existingElevator(w, r, req.ElevatorID)
	if !ok {
		return
	}
	if user.Role == model.RoleClient && elevator.ClientID != user.ClientID {
		writeError(w, http.StatusBadRequest, "elevator does not exist")
		return
	}
	req.TechnicianID = strings.TrimSpace(req.TechnicianID)
	if !user.Role.IsStaff() {
		req.TechnicianID = ""
	}
	if !s.checkTechnician(w, r, req.TechnicianID) {
		return
	}

	e := model.EmergencyVisit{
		ElevatorID:        elevator.ID,
		ClientID:          elevator.ClientID,
		TechnicianID:      req.TechnicianID,
		FailureType:       strings.TrimSpace(req.FailureType),
		Description:       strings.TrimSpace(req.Description),
		PassengersTrapped: req.PassengersTrapped,
		ReportedAt:        model.TimestampOf(s.now()),
	}
	if err := s.store.CreateEmergency(r.Context(), &e); err != nil {
		s.storeError(w, r, err, "emergency")
		return
	}
	s.publish(r.Context(), "emergency_visits", realtime.EventInsert, e.ID, e.ClientID)
	if e.PassengersTrapped {
		s.publish(r.Context(), "elevators", realtime.EventUpdate, elevator.ID, elevator.ClientID)
	}

	title := "Emergency reported"
	if e.PassengersTrapped {
		title = "Emergency: passengers trapped"
	}
	notice := model.Notification{
		Title:   title,
		Message: fmt.Sprintf("%s at %s (%s): %s", elevator.Code, elevator.BuildingName, elevator.Address, e.FailureType),
		Link:    "/emergencies/" + e.ID,
		Kind:    model.NoticeEmergency,
	}
	recipients := s.staffIDs(r.Context())
	if e.TechnicianID != "" {
		recipients = append(recipients, e.TechnicianID)
	}
	s.notify(r.Context(), recipients, notice)
	writeJSON(w, http.StatusCreated, e)
}

func (s *server) updateEmergency(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEmergency(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "emergency")
		return
	}
	var req emergencyRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TechnicianID = strings.TrimSpace(req.TechnicianID)
	if !s.checkTechnician(w, r, req.TechnicianID) {
		return
	}
	reassigned := req.TechnicianID != "" && req.TechnicianID != e.TechnicianID
	e.TechnicianID = req.TechnicianID
	e.FailureType = strings.TrimSpace(req.FailureType)
	e.Description = strings.TrimSpace(req.Description)
	e.Resolution = strings.TrimSpace(req.Resolution)
	e.PassengersTrapped = req.PassengersTrapped
	if err := s.store.UpdateEmergency(r.Context(), &e); err != nil {
		s.storeError(w, r, err, "emergency")
		return
	}
	s.publish(r.Context(), "emergency_visits", realtime.EventUpdate, e.ID, e.ClientID)
	if reassigned {
		s.notify(r.Context(), []string{e.TechnicianID}, model.Notification{
			Title:   "Emergency assigned",
			Message: fmt.Sprintf("%s was assigned to you.", e.FailureType),
			Link:    "/emergencies/" + e.ID,
			Kind:    model.NoticeEmergency,
		})
	}
	writeJSON(w, http.StatusOK, e)
}

// emergencyStatus advances a visit along reported → en_route → on_site → resolved. Steps may be
// skipped; arrival is stamped the first time the visit reaches on_site or later.
func (s *server) emergencyStatus(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	e, err := s.visibleEmergency(r.Context(), user, pathID(r))
	if err != nil {
		s.storeError(w, r, err, "emergency")
		return
	}
	var req emergencyStatusRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if e.Status == model.EmergencyResolved {
		writeError(w, http.StatusConflict, "emergency is already resolved")
		return
	}
	if !model.CanAdvanceEmergency(e.Status, req.Status) {
		writeError(w, http.StatusConflict, fmt.Sprintf("cannot move emergency from %s to %s", e.Status, req.Status))
		return
	}

	switch tech := strings.TrimSpace(req.TechnicianID); {
	case user.Role.IsStaff() && tech != "" && tech != e.TechnicianID:
		if !s.checkTechnician(w, r, tech) {
			return
		}
		e.TechnicianID = tech
	case user.Role == model.RoleTechnician && e.TechnicianID == "":
		e.TechnicianID = user.ID
	}
	if e.TechnicianID == "" {
		writeError(w, http.StatusBadRequest, "technicianId is required")
		return
	}

	now := model.TimestampOf(s.now())
	if req.Status != model.EmergencyEnRoute && e.ArrivedAt.IsZero() {
		e.ArrivedAt = now
	}
	var signatureKey string
	if req.Status == model.EmergencyResolved {
		resolution := strings.TrimSpace(req.Resolution)
		if resolution == "" {
			resolution = e.Resolution
		}
		if resolution == "" {
			writeError(w, http.StatusBadRequest, "resolution is required")
			return
		}
		if strings.TrimSpace(req.Signature) != "" {
			signatureKey, err = s.storeSignature(r.Context(), req.Signature)
			if err != nil {
				writeError(w, http.StatusBadRequest, "signature: "+err.Error())
				return
			}
			e.SignatureKey = signatureKey
		}
		e.Resolution = resolution
		e.ResolvedAt = now
	}
	e.Status = req.Status
	if err := s.store.UpdateEmergency(r.Context(), &e); err != nil {
		s.storeError(w, r, err, "emergency")
		return
	}
	if signatureKey != "" {
		a := model.Attachment{
			OwnerType: model.OwnerEmergency,
			OwnerID:   e.ID,
			Kind:      model.AttachmentSignature,
			BlobKey:   signatureKey,
			FileName:  "signature.png",
			Mime:      "image/png",
		}
		if err := s.store.CreateAttachment(r.Context(), &a); err != nil {
			s.logger.Warn("record signature attachment", zap.String("emergency", e.ID), zap.Error(err))
		}
	}
	s.publish(r.Context(), "emergency_visits", realtime.EventUpdate, e.ID, e.ClientID)

	if e.Status == model.EmergencyResolved {
		if elevator, err := s.store.GetElevator(r.Context(), e.ElevatorID); err == nil && elevator.Status == model.ElevatorStopped {
			s.releaseElevator(r, elevator)
		}
		recipients := s.staffIDs(r.Context())
		if ids, err := s.store.ActiveUserIDsForClient(r.Context(), e.ClientID); err == nil {
			recipients = append(recipients, ids...)
		}
		s.notify(r.Context(), recipients, model.Notification{
			Title:   "Emergency resolved",
			Message: fmt.Sprintf("%s: %s", e.FailureType, e.Resolution),
			Link:    "/emergencies/" + e.ID,
			Kind:    model.NoticeEmergency,
		})
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *server) deleteEmergency(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEmergency(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "emergency")
		return
	}
	if err := s.store.DeleteEmergency(r.Context(), e.ID); err != nil {
		s.storeError(w, r, err, "emergency")
		return
	}
	s.dropAttachments(r, model.OwnerEmergency, e.ID, e.SignatureKey)
	s.publish(r.Context(), "emergency_visits", realtime.EventDelete, e.ID, e.ClientID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "emergency deleted"})
}

func (s *server) emergencyPDF(w http.ResponseWriter, r *http.Request) {
	e, err := s.visibleEmergency(r.Context(), userFromContext(r.Context()), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "emergency")
		return
	}
	in := report.EmergencyReport{Visit: e}
	in.Elevator, in.Client, in.TechnicianName = s.reportContext(r, e.ElevatorID, e.ClientID, e.TechnicianID)
	if e.SignatureKey != "" {
		if data, err := s.readBlob(r.Context(), e.SignatureKey); err == nil {
			in.Signature = data
		}
	}
	data, err := s.renderer.EmergencyPDF(in)
	if err != nil {
		s.renderFailed(w, err, "emergency")
		return
	}
	title := fmt.Sprintf("emergency %s %s", in.Elevator.Code, e.ReportedAt.Time().UTC().Format(model.DateLayout))
	s.servePDF(w, r, "emergency_visits", title, data)
}
