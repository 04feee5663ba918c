package apiapp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/report"
	"github.com/liftcare/liftsuite/internal/store"
)

type workOrderRequest struct {
	ElevatorID         string `json:"elevatorId" validate:"required"`
	TechnicianID       string `json:"technicianId"`
	Title              string `json:"title" validate:"required,max=200"`
	Description        string `json:"description" validate:"max=4000"`
	Priority           string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	EstimatedCostCents int64  `json:"estimatedCostCents" validate:"gte=0"`
	ScheduledDate      string `json:"scheduledDate" validate:"omitempty,datetime=2006-01-02"`
}

type workOrderStatusRequest struct {
	Status          string `json:"status" validate:"required,oneof=pending assigned in_progress completed cancelled"`
	TechnicianID    string `json:"technicianId"`
	ActualCostCents *int64 `json:"actualCostCents"`
}

func (s *server) listWorkOrders(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	page, err := s.store.ListWorkOrders(r.Context(), scoped(user, listFilter(r)))
	if err != nil {
		s.storeError(w, r, err, "work orders")
		return
	}
	writePage(w, page)
}

func (s *server) getWorkOrder(w http.ResponseWriter, r *http.Request) {
	wo, err := s.visibleWorkOrder(r.Context(), userFromContext(r.Context()), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "work order")
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

// checkTechnician verifies id names an active technician; an empty id is accepted.
func (s *server) checkTechnician(w http.ResponseWriter, r *http.Request, id string) bool {
	if id == "" {
		return true
	}
	u, err := s.store.GetUser(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.storeError(w, r, err, "technician")
		return false
	}
	if err != nil || u.Role != model.RoleTechnician || !u.Active {
		writeError(w, http.StatusBadRequest, "technicianId must reference an active technician")
		return false
	}
	return true
}

func (s *server) createWorkOrder(w http.ResponseWriter, r *http.Request) {
	var req workOrderRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TechnicianID = strings.TrimSpace(req.TechnicianID)
	elevator, err := s.store.GetElevator(r.Context(), strings.TrimSpace(req.ElevatorID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "elevator does not exist")
			return
		}
		s.storeError(w, r, err, "elevator")
		return
	}
	if !s.checkTechnician(w, r, req.TechnicianID) {
		return
	}

	wo := model.WorkOrder{
		ElevatorID:         elevator.ID,
		ClientID:           elevator.ClientID,
		TechnicianID:       req.TechnicianID,
		Title:              strings.TrimSpace(req.Title),
		Description:        strings.TrimSpace(req.Description),
		Priority:           req.Priority,
		EstimatedCostCents: req.EstimatedCostCents,
		ScheduledDate:      req.ScheduledDate,
		Status:             model.WorkOrderPending,
	}
	if wo.TechnicianID != "" {
		wo.Status = model.WorkOrderAssigned
	}
	if err := s.store.CreateWorkOrder(r.Context(), &wo); err != nil {
		s.storeError(w, r, err, "work order")
		return
	}
	s.publish(r.Context(), "work_orders", realtime.EventInsert, wo.ID, wo.ClientID)
	s.notifyWorkOrderAssigned(r, wo)
	writeJSON(w, http.StatusCreated, wo)
}

func (s *server) updateWorkOrder(w http.ResponseWriter, r *http.Request) {
	wo, err := s.store.GetWorkOrder(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "work order")
		return
	}
	var req workOrderRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TechnicianID = strings.TrimSpace(req.TechnicianID)
	if req.ElevatorID != wo.ElevatorID {
		elevator, err := s.store.GetElevator(r.Context(), strings.TrimSpace(req.ElevatorID))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusBadRequest, "elevator does not exist")
				return
			}
			s.storeError(w, r, err, "elevator")
			return
		}
		wo.ElevatorID, wo.ClientID = elevator.ID, elevator.ClientID
	}
	if !s.checkTechnician(w, r, req.TechnicianID) {
		return
	}

	// An empty technicianId keeps the current assignment.
	reassigned := req.TechnicianID != "" && req.TechnicianID != wo.TechnicianID
	if reassigned {
		wo.TechnicianID = req.TechnicianID
	}
	wo.Title = strings.TrimSpace(req.Title)
	wo.Description = strings.TrimSpace(req.Description)
	if req.Priority != "" {
		wo.Priority = req.Priority
	}
	wo.EstimatedCostCents = req.EstimatedCostCents
	if req.ScheduledDate != wo.ScheduledDate {
		wo.ScheduledDate = req.ScheduledDate
		wo.NotifiedAt = 0
	}
	if wo.TechnicianID != "" && wo.Status == model.WorkOrderPending {
		wo.Status = model.WorkOrderAssigned
	}
	if err := s.store.UpdateWorkOrder(r.Context(), &wo); err != nil {
		s.storeError(w, r, err, "work order")
		return
	}
	s.publish(r.Context(), "work_orders", realtime.EventUpdate, wo.ID, wo.ClientID)
	if reassigned {
		s.notifyWorkOrderAssigned(r, wo)
	}
	writeJSON(w, http.StatusOK, wo)
}

// workOrderStatus moves a work order along pending → assigned → in_progress → completed, or cancels it.
func (s *server) workOrderStatus(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	wo, err := s.visibleWorkOrder(r.Context(), user, pathID(r))
	if err != nil {
		s.storeError(w, r, err, "work order")
		return
	}
	var req workOrderStatusRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if user.Role == model.RoleTechnician && (req.Status == model.WorkOrderCancelled || req.Status == model.WorkOrderAssigned) {
		writeError(w, http.StatusForbidden, "only staff may assign or cancel work orders")
		return
	}
	if !model.CanTransitionWorkOrder(wo.Status, req.Status) {
		writeError(w, http.StatusConflict, fmt.Sprintf("cannot move work order from %s to %s", wo.Status, req.Status))
		return
	}

	reassigned := false
	if tech := strings.TrimSpace(req.TechnicianID); tech != "" && user.Role.IsStaff() && tech != wo.TechnicianID {
		if !s.checkTechnician(w, r, tech) {
			return
		}
		wo.TechnicianID = tech
		reassigned = true
	}
	switch req.Status {
	case model.WorkOrderAssigned, model.WorkOrderInProgress:
		if wo.TechnicianID == "" {
			writeError(w, http.StatusBadRequest, "technicianId is required")
			return
		}
	case model.WorkOrderCompleted:
		if req.ActualCostCents == nil || *req.ActualCostCents < 0 {
			writeError(w, http.StatusBadRequest, "actualCostCents must be zero or more")
			return
		}
		wo.ActualCostCents = *req.ActualCostCents
		wo.CompletedAt = model.TimestampOf(s.now())
	}
	previous := wo.Status
	wo.Status = req.Status
	if err := s.store.UpdateWorkOrder(r.Context(), &wo); err != nil {
		s.storeError(w, r, err, "work order")
		return
	}
	s.publish(r.Context(), "work_orders", realtime.EventUpdate, wo.ID, wo.ClientID)

	if reassigned || (previous == model.WorkOrderPending && wo.Status == model.WorkOrderAssigned) {
		s.notifyWorkOrderAssigned(r, wo)
	}
	if wo.Status == model.WorkOrderCompleted && previous != model.WorkOrderCompleted {
		recipients := s.staffIDs(r.Context())
		if ids, err := s.store.ActiveUserIDsForClient(r.Context(), wo.ClientID); err == nil {
			recipients = append(recipients, ids...)
		}
		s.notify(r.Context(), recipients, model.Notification{
			Title:   "Work order completed",
			Message: fmt.Sprintf("%s %s was completed.", wo.Folio, wo.Title),
			Link:    "/work-orders/" + wo.ID,
			Kind:    model.NoticeAssignment,
		})
	}
	writeJSON(w, http.StatusOK, wo)
}

func (s *server) notifyWorkOrderAssigned(r *http.Request, wo model.WorkOrder) {
	if wo.TechnicianID == "" {
		return
	}
	s.notify(r.Context(), []string{wo.TechnicianID}, model.Notification{
		Title:   "Work order assigned",
		Message: fmt.Sprintf("%s %s (%s priority) was assigned to you.", wo.Folio, wo.Title, wo.Priority),
		Link:    "/work-orders/" + wo.ID,
		Kind:    model.NoticeAssignment,
	})
}

func (s *server) deleteWorkOrder(w http.ResponseWriter, r *http.Request) {
	wo, err := s.store.GetWorkOrder(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "work order")
		return
	}
	if err := s.store.DeleteWorkOrder(r.Context(), wo.ID); err != nil {
		s.storeError(w, r, err, "work order")
		return
	}
	s.dropAttachments(r, model.OwnerWorkOrder, wo.ID)
	s.publish(r.Context(), "work_orders", realtime.EventDelete, wo.ID, wo.ClientID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "work order deleted"})
}

func (s *server) workOrderPDF(w http.ResponseWriter, r *http.Request) {
	wo, err := s.visibleWorkOrder(r.Context(), userFromContext(r.Context()), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "work order")
		return
	}
	in := report.WorkOrderReport{WorkOrder: wo}
	in.Elevator, in.Client, in.TechnicianName = s.reportContext(r, wo.ElevatorID, wo.ClientID, wo.TechnicianID)
	in.Photos = s.attachmentImages(r, model.OwnerWorkOrder, wo.ID)

	data, err := s.renderer.WorkOrderPDF(in)
	if err != nil {
		s.renderFailed(w, err, "work order")
		return
	}
	s.servePDF(w, r, "work_orders", fmt.Sprintf("%s %s", wo.Folio, wo.Title), data)
}
