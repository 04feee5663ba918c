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

type quotationItemRequest struct {
	Description    string  `json:"description" validate:"required,max=300"`
	Quantity       float64 `json:"quantity" validate:"gt=0"`
	UnitPriceCents int64   `json:"unitPriceCents" validate:"gte=0"`
}

type quotationRequest struct {
	ClientID   string                 `json:"clientId" validate:"required"`
	ElevatorID string                 `json:"elevatorId"`
	Title      string                 `json:"title" validate:"required,max=200"`
	Items      []quotationItemRequest `json:"items" validate:"required,min=1,dive"`
	TaxRateBP  int64                  `json:"taxRateBp" validate:"gte=0,lte=10000"`
	ValidUntil string                 `json:"validUntil" validate:"omitempty,datetime=2006-01-02"`
	Status     string                 `json:"status" validate:"omitempty,oneof=draft sent"`
}

type quotationDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
}

func (req quotationRequest) apply(q *model.Quotation) {
	q.ClientID = strings.TrimSpace(req.ClientID)
	q.ElevatorID = strings.TrimSpace(req.ElevatorID)
	q.Title = strings.TrimSpace(req.Title)
	q.TaxRateBP = req.TaxRateBP
	q.ValidUntil = req.ValidUntil
	q.Items = make(model.QuotationItems, 0, len(req.Items))
	for _, item := range req.Items {
		q.Items = append(q.Items, model.QuotationItem{
			Description:    strings.TrimSpace(item.Description),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
}

func (s *server) listQuotations(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	page, err := s.store.ListQuotations(r.Context(), scoped(user, listFilter(r)))
	if err != nil {
		s.storeError(w, r, err, "quotations")
		return
	}
	writePage(w, page)
}

func (s *server) getQuotation(w http.ResponseWriter, r *http.Request) {
	q, err := s.visibleQuotation(r.Context(), userFromContext(r.Context()), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "quotation")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// checkQuotationTargets verifies the client exists and the optional elevator belongs to it.
func (s *server) checkQuotationTargets(w http.ResponseWriter, r *http.Request, req quotationRequest) bool {
	if !s.clientExists(w, r, req.ClientID) {
		return false
	}
	if strings.TrimSpace(req.ElevatorID) == "" {
		return true
	}
	elevator, ok := s.existingElevator(w, r, req.ElevatorID)
	if !ok {
		return false
	}
	if elevator.ClientID != strings.TrimSpace(req.ClientID) {
		writeError(w, http.StatusBadRequest, "elevator does not belong to client")
		return false
	}
	return true
}

// checkSendable rejects sending a quotation the client could not decide on.
func (s *server) checkSendable(w http.ResponseWriter, q model.Quotation) bool {
	if q.ValidUntil == "" {
		writeError(w, http.StatusBadRequest, "validUntil is required to send a quotation")
		return false
	}
	if q.ValidUntil < s.today() {
		writeError(w, http.StatusBadRequest, "validUntil is in the past")
		return false
	}
	return true
}

func (s *server) createQuotation(w http.ResponseWriter, r *http.Request) {
	var req quotationRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.checkQuotationTargets(w, r, req) {
		return
	}
	q := model.Quotation{Status: model.QuotationDraft}
	req.apply(&q)
	if req.Status == model.QuotationSent {
		if !s.checkSendable(w, q) {
			return
		}
		q.Status = model.QuotationSent
	}
	if err := s.store.CreateQuotation(r.Context(), &q); err != nil {
		s.storeError(w, r, err, "quotation")
		return
	}
	s.publish(r.Context(), "quotations", realtime.EventInsert, q.ID, q.ClientID)
	if q.Status == model.QuotationSent {
		s.notifyQuotationSent(r, q)
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *server) updateQuotation(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.GetQuotation(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "quotation")
		return
	}
	if q.Status != model.QuotationDraft && q.Status != model.QuotationSent {
		writeError(w, http.StatusConflict, "a "+q.Status+" quotation cannot be edited")
		return
	}
	var req quotationRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.checkQuotationTargets(w, r, req) {
		return
	}
	previous := q.Status
	req.apply(&q)
	if req.Status != "" {
		q.Status = req.Status
	}
	if q.Status == model.QuotationSent && !s.checkSendable(w, q) {
		return
	}
	if err := s.store.UpdateQuotation(r.Context(), &q); err != nil {
		s.storeError(w, r, err, "quotation")
		return
	}
	s.publish(r.Context(), "quotations", realtime.EventUpdate, q.ID, q.ClientID)
	if q.Status == model.QuotationSent && previous != model.QuotationSent {
		s.notifyQuotationSent(r, q)
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *server) notifyQuotationSent(r *http.Request, q model.Quotation) {
	ids, err := s.store.ActiveUserIDsForClient(r.Context(), q.ClientID)
	if err != nil {
		s.logger.Warn("list quotation recipients", zap.String("quotation", q.ID), zap.Error(err))
		return
	}
	s.notify(r.Context(), ids, model.Notification{
		Title:   "Quotation awaiting approval",
		Message: fmt.Sprintf("%s %s for %s is valid until %s.", q.Number, q.Title, model.FormatCents(q.TotalCents), q.ValidUntil),
		Link:    "/quotations/" + q.ID,
		Kind:    model.NoticeQuotation,
	})
}

// decideQuotation lets the client approve or reject a sent quotation before it expires.
func (s *server) decideQuotation(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	q, err := s.visibleQuotation(r.Context(), user, pathID(r))
	if err != nil {
		s.storeError(w, r, err, "quotation")
		return
	}
	var req quotationDecisionRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Status != model.QuotationSent {
		writeError(w, http.StatusConflict, "only sent quotations can be decided")
		return
	}
	if q.ValidUntil != "" && s.today() > q.ValidUntil {
		writeError(w, http.StatusConflict, "quotation has expired")
		return
	}
	q.Status = req.Decision
	q.DecidedAt = model.TimestampOf(s.now())
	if err := s.store.UpdateQuotation(r.Context(), &q); err != nil {
		s.storeError(w, r, err, "quotation")
		return
	}
	s.publish(r.Context(), "quotations", realtime.EventUpdate, q.ID, q.ClientID)
	s.notify(r.Context(), s.staffIDs(r.Context()), model.Notification{
		Title:   "Quotation " + q.Status,
		Message: fmt.Sprintf("%s %s was %s by %s.", q.Number, q.Title, q.Status, user.FullName),
		Link:    "/quotations/" + q.ID,
		Kind:    model.NoticeQuotation,
	})
	writeJSON(w, http.StatusOK, q)
}

func (s *server) deleteQuotation(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.GetQuotation(r.Context(), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "quotation")
		return
	}
	if err := s.store.DeleteQuotation(r.Context(), q.ID); err != nil {
		s.storeError(w, r, err, "quotation")
		return
	}
	s.publish(r.Context(), "quotations", realtime.EventDelete, q.ID, q.ClientID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "quotation deleted"})
}

func (s *server) quotationPDF(w http.ResponseWriter, r *http.Request) {
	q, err := s.visibleQuotation(r.Context(), userFromContext(r.Context()), pathID(r))
	if err != nil {
		s.storeError(w, r, err, "quotation")
		return
	}
	in := report.QuotationReport{Quotation: q}
	in.Elevator, in.Client, _ = s.reportContext(r, q.ElevatorID, q.ClientID, "")
	data, err := s.renderer.QuotationPDF(in)
	if err != nil {
		s.renderFailed(w, err, "quotation")
		return
	}
	s.servePDF(w, r, "quotations", fmt.Sprintf("%s %s", q.Number, q.Title), data)
}
