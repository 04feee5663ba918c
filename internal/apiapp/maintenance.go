package apiapp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/report"
	"github.com/liftcare/liftsuite/internal/store"
)

type maintenanceRequest struct {
	ElevatorID    string `json:"elevatorId" validate:"required"`
	TechnicianID  string `json:"technicianId"`
	ScheduledDate string `json:"scheduledDate" validate:"required,datetime=2006-01-02"`
	Frequency     string `json:"frequency" validate:"omitempty,oneof=once monthly quarterly semiannual annual"`
	ChecklistType string `json:"checklistType" validate:"max=40"`
	Notes         string `json:"notes" validate:"max=4000"`
}

type maintenanceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=in_progress cancelled"`
}

type completeMaintenanceRequest struct {
	Checklist model.Checklist `json:"checklist"`
	Notes     string          `json:"notes" validate:"max=4000"`
	SignedBy  string          `json:"signedBy" validate:"max=200"`
	Signature string          `json:"signature"`
}

func (s *server) listMaintenance(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	page, err := s.store.ListMaintenance(r.Context(), scoped(user, listFilter(r)))
	if err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	writePage(w, page)
}

func (s *server) getMaintenance(w http.ResponseWriter, r *http.Request) {
	m, _, err := s.visibleMaintenance(r.Context(), userFromContext(r.Context()), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) existingElevator(w http.ResponseWriter, r *http.Request, id string) (model.Elevator, bool) {
	elevator, err := s.store.GetElevator(r.Context(), strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "elevator does not exist")
			return elevator, false
		}
		s.storeError(w, r, err, "elevator")
		return elevator, false
	}
	return elevator, true
}

func (s *server) createMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TechnicianID = strings.TrimSpace(req.TechnicianID)
	elevator, ok := s.existingElevator(w, r, req.ElevatorID)
	if !ok || !s.checkTechnician(w, r, req.TechnicianID) {
		return
	}

	m := model.MaintenanceSchedule{
		ElevatorID:    elevator.ID,
		TechnicianID:  req.TechnicianID,
		ScheduledDate: req.ScheduledDate,
		Frequency:     req.Frequency,
		Checklist:     s.checklists.Checklist(req.ChecklistType),
		Notes:         strings.TrimSpace(req.Notes),
	}
	if err := s.store.CreateMaintenance(r.Context(), &m); err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	s.publish(r.Context(), "maintenance_schedules", realtime.EventInsert, m.ID, elevator.ClientID)
	s.notifyMaintenanceAssigned(r, m, elevator)
	writeJSON(w, http.StatusCreated, m)
}

func (s *server) updateMaintenance(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMaintenance(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	if !model.MaintenanceOpen(m.Status) {
		writeError(w, http.StatusConflict, "only open maintenance can be edited")
		return
	}
	var req maintenanceRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TechnicianID = strings.TrimSpace(req.TechnicianID)
	elevator, ok := s.existingElevator(w, r, req.ElevatorID)
	if !ok || !s.checkTechnician(w, r, req.TechnicianID) {
		return
	}

	reassigned := req.TechnicianID != "" && req.TechnicianID != m.TechnicianID
	if reassigned || req.ScheduledDate != m.ScheduledDate {
		m.NotifiedAt = 0
	}
	m.ElevatorID = elevator.ID
	m.TechnicianID = req.TechnicianID
	m.ScheduledDate = req.ScheduledDate
	if req.Frequency != "" {
		m.Frequency = req.Frequency
	}
	if req.ChecklistType != "" && m.Checklist.CompletedCount() == 0 {
		m.Checklist = s.checklists.Checklist(req.ChecklistType)
	}
	m.Notes = strings.TrimSpace(req.Notes)
	if err := s.store.UpdateMaintenance(r.Context(), &m); err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	s.publish(r.Context(), "maintenance_schedules", realtime.EventUpdate, m.ID, elevator.ClientID)
	if reassigned {
		s.notifyMaintenanceAssigned(r, m, elevator)
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) notifyMaintenanceAssigned(r *http.Request, m model.MaintenanceSchedule, elevator model.Elevator) {
	if m.TechnicianID == "" {
		return
	}
	s.notify(r.Context(), []string{m.TechnicianID}, model.Notification{
		Title:   "Maintenance assigned",
		Message: fmt.Sprintf("Maintenance of %s (%s) on %s was assigned to you.", elevator.Code, elevator.BuildingName, m.ScheduledDate),
		Link:    "/maintenance/" + m.ID,
		Kind:    model.NoticeAssignment,
	})
}

// maintenanceStatus starts or cancels a visit. Starting puts the elevator in maintenance.
func (s *server) maintenanceStatus(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	m, elevator, err := s.visibleMaintenance(r.Context(), user, pathID(r))
	if err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	var req maintenanceStatusRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == model.MaintenanceCancelled && !user.Role.IsStaff() {
		writeError(w, http.StatusForbidden, "only staff may cancel maintenance")
		return
	}
	if !model.MaintenanceOpen(m.Status) {
		writeError(w, http.StatusConflict, fmt.Sprintf("cannot move maintenance from %s to %s", m.Status, req.Status))
		return
	}
	if req.Status == model.MaintenanceInProgress && m.TechnicianID == "" {
		writeError(w, http.StatusBadRequest, "assign a technician before starting")
		return
	}
	m.Status = req.Status
	if err := s.store.UpdateMaintenance(r.Context(), &m); err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	s.publish(r.Context(), "maintenance_schedules", realtime.EventUpdate, m.ID, elevator.ClientID)

	switch {
	case m.Status == model.MaintenanceInProgress && elevator.Status == model.ElevatorOperational:
		s.setElevatorStatus(r, elevator, model.ElevatorMaintenance)
	case m.Status == model.MaintenanceCancelled && elevator.Status == model.ElevatorMaintenance:
		s.releaseElevator(r, elevator)
	}
	writeJSON(w, http.StatusOK, m)
}

// completeMaintenance records the checklist results and optional signature. Recurring schedules
// get their next occurrence in the same transaction.
func (s *server) completeMaintenance(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	m, elevator, err := s.visibleMaintenance(r.Context(), user, pathID(r))
	if err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	if !model.MaintenanceOpen(m.Status) {
		writeError(w, http.StatusConflict, "maintenance is already "+m.Status)
		return
	}
	var req completeMaintenanceRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var signatureKey string
	if strings.TrimSpace(req.Signature) != "" {
		if strings.TrimSpace(req.SignedBy) == "" {
			writeError(w, http.StatusBadRequest, "signedBy is required with a signature")
			return
		}
		signatureKey, err = s.storeSignature(r.Context(), req.Signature)
		if err != nil {
			writeError(w, http.StatusBadRequest, "signature: "+err.Error())
			return
		}
	}

	m.Checklist = report.MergeChecklist(m.Checklist, req.Checklist)
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		m.Notes = notes
	}
	if signatureKey != "" {
		m.SignatureKey = signatureKey
		m.SignedBy = strings.TrimSpace(req.SignedBy)
	}
	next, err := s.store.CompleteMaintenance(r.Context(), &m)
	if err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	if signatureKey != "" {
		a := model.Attachment{
			OwnerType: model.OwnerMaintenance,
			OwnerID:   m.ID,
			Kind:      model.AttachmentSignature,
			BlobKey:   signatureKey,
			FileName:  "signature.png",
			Mime:      "image/png",
		}
		if err := s.store.CreateAttachment(r.Context(), &a); err != nil {
			s.logger.Warn("record signature attachment", zap.String("maintenance", m.ID), zap.Error(err))
		}
	}

	s.publish(r.Context(), "maintenance_schedules", realtime.EventUpdate, m.ID, elevator.ClientID)
	if next != nil {
		s.publish(r.Context(), "maintenance_schedules", realtime.EventInsert, next.ID, elevator.ClientID)
	}
	if elevator.Status == model.ElevatorMaintenance {
		s.releaseElevator(r, elevator)
	}
	s.logger.Info("maintenance completed",
		zap.String("id", m.ID),
		zap.Int("checked", m.Checklist.CompletedCount()),
		zap.Int("items", len(m.Checklist)),
		zap.Bool("recurring", next != nil),
	)
	writeJSON(w, http.StatusOK, map[string]any{"maintenance": m, "next": next})
}

func (s *server) setElevatorStatus(r *http.Request, elevator model.Elevator, status string) {
	if err := s.store.SetElevatorStatus(r.Context(), elevator.ID, status); err != nil {
		s.logger.Warn("set elevator status", zap.String("elevator", elevator.ID), zap.String("status", status), zap.Error(err))
		return
	}
	s.publish(r.Context(), "elevators", realtime.EventUpdate, elevator.ID, elevator.ClientID)
}

// releaseElevator returns an elevator to service unless an emergency is still open on it.
func (s *server) releaseElevator(r *http.Request, elevator model.Elevator) {
	open, err := s.store.HasOpenEmergency(r.Context(), elevator.ID)
	if err != nil {
		s.logger.Warn("check open emergencies", zap.String("elevator", elevator.ID), zap.Error(err))
		return
	}
	if open {
		return
	}
	s.setElevatorStatus(r, elevator, model.ElevatorOperational)
}

func (s *server) deleteMaintenance(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMaintenance(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	elevator, _ := s.store.GetElevator(r.Context(), m.ElevatorID)
	if err := s.store.DeleteMaintenance(r.Context(), m.ID); err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	s.dropAttachments(r, model.OwnerMaintenance, m.ID, m.SignatureKey)
	s.publish(r.Context(), "maintenance_schedules", realtime.EventDelete, m.ID, elevator.ClientID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "maintenance deleted"})
}

func (s *server) maintenancePDF(w http.ResponseWriter, r *http.Request) {
	m, _, err := s.visibleMaintenance(r.Context(), userFromContext(r.Context()), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "maintenance")
		return
	}
	in := report.MaintenanceReport{Schedule: m}
	in.Elevator, in.Client, in.TechnicianName = s.reportContext(r, m.ElevatorID, "", m.TechnicianID)
	if m.HasSignature() {
		if data, err := s.readBlob(r.Context(), m.SignatureKey); err == nil {
			in.Signature = data
		}
	}
	data, err := s.renderer.MaintenancePDF(in)
	if err != nil {
		s.renderFailed(w, err, "maintenance")
		return
	}
	title := fmt.Sprintf("maintenance %s %s", in.Elevator.Code, m.ScheduledDate)
	s.servePDF(w, r, "maintenance_schedules", title, data)
}
