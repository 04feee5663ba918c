package apiapp

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/liftcare/liftsuite/internal/analytics"
	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/store"
)

type analyticsResponse struct {
	From              string                  `json:"from,omitempty"`
	To                string                  `json:"to,omitempty"`
	Value             analytics.Summary       `json:"value"`
	EmergencyResponse analytics.ResponseTimes `json:"emergencyResponse"`
	Risks             []analytics.Risk        `json:"risks"`
}

// analytics computes the value summary, response times and risk table. from/to narrow work
// orders, quotations and emergencies; risks always look at current state.
func (s *server) analytics(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r)
	window := store.ListFilter{ClientID: f.ClientID, ElevatorID: f.ElevatorID, From: f.From, To: f.To}
	current := store.ListFilter{ClientID: f.ClientID, ElevatorID: f.ElevatorID}

	var (
		workOrders  []model.WorkOrder
		quotations  []model.Quotation
		emergencies []model.EmergencyVisit
		elevators   []model.Elevator
		openOrders  []model.WorkOrder
		schedules   []model.MaintenanceSchedule
		recent      []model.EmergencyVisit
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		workOrders, err = s.store.AllWorkOrders(ctx, window)
		return err
	})
	g.Go(func() (err error) {
		quotations, err = s.store.AllQuotations(ctx, window)
		return err
	})
	g.Go(func() (err error) {
		emergencies, err = s.store.AllEmergencies(ctx, window)
		return err
	})
	g.Go(func() (err error) {
		elevators, err = s.store.AllElevators(ctx, store.ListFilter{ClientID: f.ClientID})
		return err
	})
	g.Go(func() (err error) {
		openOrders, err = s.store.AllWorkOrders(ctx, current)
		return err
	})
	g.Go(func() (err error) {
		schedules, err = s.store.AllMaintenance(ctx, current)
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.store.AllEmergencies(ctx, store.ListFilter{
			ClientID: f.ClientID,
			From:     s.daysFromToday(-90),
		})
		return err
	})
	if err := g.Wait(); err != nil {
		s.storeError(w, r, err, "analytics")
		return
	}

	writeJSON(w, http.StatusOK, analyticsResponse{
		From:              f.From,
		To:                f.To,
		Value:             analytics.ValueSummary(workOrders, quotations),
		EmergencyResponse: analytics.EmergencyResponse(emergencies),
		Risks:             analytics.RiskScores(elevators, recent, schedules, openOrders, s.now()),
	})
}
