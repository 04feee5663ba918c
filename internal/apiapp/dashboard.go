package apiapp

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/liftcare/liftsuite/internal/analytics"
	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/store"
)

const (
	dueSoonDays       = 7
	expiringSoonDays  = 30
	topRiskCount      = 5
	openEmergencyCap  = 50
	hostStatsDeadline = 2 * time.Second
)

var openEmergencyStatuses = []string{model.EmergencyReported, model.EmergencyEnRoute, model.EmergencyOnSite}

type adminDashboard struct {
	OpenWorkOrders      []store.StatusCount         `json:"openWorkOrders"`
	ActiveEmergencies   []model.EmergencyVisit      `json:"activeEmergencies"`
	MaintenanceDue      []model.MaintenanceSchedule `json:"maintenanceDue"`
	PendingQuotations   []model.Quotation           `json:"pendingQuotations"`
	TopRisks            []analytics.Risk            `json:"topRisks"`
	Value               analytics.Summary           `json:"value"`
	EmergencyResponse   analytics.ResponseTimes     `json:"emergencyResponse"`
	ElevatorsByStatus   map[string]int              `json:"elevatorsByStatus"`
	TotalElevators      int                         `json:"totalElevators"`
	UsersByRole         []store.RoleCount           `json:"usersByRole,omitempty"`
	Host                *hostStats                  `json:"host,omitempty"`
	UnreadNotifications int                         `json:"unreadNotifications"`
}

type technicianDashboard struct {
	OpenWorkOrders      []model.WorkOrder           `json:"openWorkOrders"`
	MaintenanceDue      []model.MaintenanceSchedule `json:"maintenanceDue"`
	ActiveEmergencies   []model.EmergencyVisit      `json:"activeEmergencies"`
	UnreadNotifications int                         `json:"unreadNotifications"`
}

type clientDashboard struct {
	Elevators           []model.Elevator      `json:"elevators"`
	OpenWorkOrders      []model.WorkOrder     `json:"openWorkOrders"`
	AwaitingDecision    []model.Quotation     `json:"awaitingDecision"`
	ExpiringDocuments   []model.LegalDocument `json:"expiringDocuments"`
	UnreadNotifications int                   `json:"unreadNotifications"`
}

type hostStats struct {
	Goroutines      int     `json:"goroutines"`
	HeapAllocBytes  uint64  `json:"heapAllocBytes"`
	SysBytes        uint64  `json:"sysBytes"`
	MemTotalBytes   uint64  `json:"memTotalBytes"`
	MemUsedPercent  float64 `json:"memUsedPercent"`
	CPUPercent      float64 `json:"cpuPercent"`
	HostUptimeSec   uint64  `json:"hostUptimeSec"`
	ProcessUptime   int64   `json:"processUptimeSec"`
	RealtimeClients int     `json:"realtimeClients"`
}

// dashboard returns the view for the caller's role.
func (s *server) dashboard(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var (
		payload any
		err     error
	)
	switch user.Role {
	case model.RoleDeveloper, model.RoleAdmin:
		payload, err = s.adminDashboard(r.Context(), user)
	case model.RoleTechnician:
		payload, err = s.technicianDashboard(r.Context(), user)
	default:
		payload, err = s.clientDashboard(r.Context(), user)
	}
	if err != nil {
		s.storeError(w, r, err, "dashboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": user.Role, "dashboard": payload})
}

func (s *server) adminDashboard(ctx context.Context, user *model.User) (adminDashboard, error) {
	var (
		out          adminDashboard
		counts       []store.StatusCount
		elevators    []model.Elevator
		workOrders   []model.WorkOrder
		quotations   []model.Quotation
		openSchedule []model.MaintenanceSchedule
		recent       []model.EmergencyVisit
	)
	today := s.today()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.store.CountWorkOrdersByStatus(gctx, store.ListFilter{})
		return err
	})
	g.Go(func() error {
		active, err := s.openEmergencies(gctx, store.ListFilter{})
		out.ActiveEmergencies = active
		return err
	})
	g.Go(func() (err error) {
		out.MaintenanceDue, err = s.store.AllMaintenance(gctx, store.ListFilter{
			Status: model.MaintenanceScheduled, From: today, To: s.daysFromToday(dueSoonDays),
		})
		return err
	})
	g.Go(func() (err error) {
		elevators, err = s.store.AllElevators(gctx, store.ListFilter{})
		return err
	})
	g.Go(func() (err error) {
		workOrders, err = s.store.AllWorkOrders(gctx, store.ListFilter{})
		return err
	})
	g.Go(func() (err error) {
		quotations, err = s.store.AllQuotations(gctx, store.ListFilter{})
		return err
	})
	g.Go(func() error {
		scheduled, err := s.store.AllMaintenance(gctx, store.ListFilter{Status: model.MaintenanceScheduled})
		if err != nil {
			return err
		}
		started, err := s.store.AllMaintenance(gctx, store.ListFilter{Status: model.MaintenanceInProgress})
		openSchedule = append(scheduled, started...)
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.store.EmergenciesSince(gctx, s.now().Add(-90*24*time.Hour))
		return err
	})
	g.Go(func() (err error) {
		out.UnreadNotifications, err = s.store.CountUnreadNotifications(gctx, user.ID)
		return err
	})
	if user.Role == model.RoleDeveloper {
		g.Go(func() (err error) {
			out.UsersByRole, err = s.store.CountUsersByRole(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	out.OpenWorkOrders = make([]store.StatusCount, 0, len(counts))
	for _, c := range counts {
		if model.WorkOrderOpen(c.Status) {
			out.OpenWorkOrders = append(out.OpenWorkOrders, c)
		}
	}
	out.PendingQuotations = []model.Quotation{}
	for _, q := range quotations {
		if q.Status == model.QuotationSent {
			out.PendingQuotations = append(out.PendingQuotations, q)
		}
	}
	out.ElevatorsByStatus = make(map[string]int, len(model.ElevatorStatuses))
	for _, status := range model.ElevatorStatuses {
		out.ElevatorsByStatus[status] = 0
	}
	for _, e := range elevators {
		out.ElevatorsByStatus[e.Status]++
	}
	out.TotalElevators = len(elevators)

	risks := analytics.RiskScores(elevators, recent, openSchedule, workOrders, s.now())
	if len(risks) > topRiskCount {
		risks = risks[:topRiskCount]
	}
	out.TopRisks = risks
	out.Value = analytics.ValueSummary(workOrders, quotations)
	out.EmergencyResponse = analytics.EmergencyResponse(recent)

	if user.Role == model.RoleDeveloper {
		out.Host = s.hostStats(ctx)
	}
	return out, nil
}

// openEmergencies lists unresolved visits matching f, newest first.
func (s *server) openEmergencies(ctx context.Context, f store.ListFilter) ([]model.EmergencyVisit, error) {
	out := []model.EmergencyVisit{}
	for _, status := range openEmergencyStatuses {
		f.Status = status
		items, err := s.store.AllEmergencies(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReportedAt > out[j].ReportedAt })
	if len(out) > openEmergencyCap {
		out = out[:openEmergencyCap]
	}
	return out, nil
}

func (s *server) technicianDashboard(ctx context.Context, user *model.User) (technicianDashboard, error) {
	var out technicianDashboard
	mine := store.ListFilter{TechnicianID: user.ID}

	orders, err := s.store.AllWorkOrders(ctx, mine)
	if err != nil {
		return out, err
	}
	out.OpenWorkOrders = []model.WorkOrder{}
	for _, wo := range orders {
		if model.WorkOrderOpen(wo.Status) {
			out.OpenWorkOrders = append(out.OpenWorkOrders, wo)
		}
	}

	due := mine
	due.Status = model.MaintenanceScheduled
	due.To = s.daysFromToday(dueSoonDays)
	if out.MaintenanceDue, err = s.store.AllMaintenance(ctx, due); err != nil {
		return out, err
	}

	emergencies := mine
	emergencies.IncludeUnassigned = true
	if out.ActiveEmergencies, err = s.openEmergencies(ctx, emergencies); err != nil {
		return out, err
	}
	out.UnreadNotifications, err = s.store.CountUnreadNotifications(ctx, user.ID)
	return out, err
}

func (s *server) clientDashboard(ctx context.Context, user *model.User) (clientDashboard, error) {
	var out clientDashboard
	mine := scoped(user, store.ListFilter{})

	var err error
	if out.Elevators, err = s.store.AllElevators(ctx, mine); err != nil {
		return out, err
	}
	orders, err := s.store.AllWorkOrders(ctx, mine)
	if err != nil {
		return out, err
	}
	out.OpenWorkOrders = []model.WorkOrder{}
	for _, wo := range orders {
		if model.WorkOrderOpen(wo.Status) {
			out.OpenWorkOrders = append(out.OpenWorkOrders, wo)
		}
	}
	sent := mine
	sent.Status = model.QuotationSent
	if out.AwaitingDecision, err = s.store.AllQuotations(ctx, sent); err != nil {
		return out, err
	}
	if out.ExpiringDocuments, err = s.store.ExpiringDocuments(ctx, mine, s.today(), s.daysFromToday(expiringSoonDays)); err != nil {
		return out, err
	}
	out.UnreadNotifications, err = s.store.CountUnreadNotifications(ctx, user.ID)
	return out, err
}

// hostStats samples the process and host. Probe failures leave the field at zero.
func (s *server) hostStats(ctx context.Context) *hostStats {
	ctx, cancel := context.WithTimeout(ctx, hostStatsDeadline)
	defer cancel()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	out := &hostStats{
		Goroutines:      runtime.NumGoroutine(),
		HeapAllocBytes:  ms.HeapAlloc,
		SysBytes:        ms.Sys,
		ProcessUptime:   int64(s.now().Sub(s.started).Seconds()),
		RealtimeClients: s.hub.Connections(),
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out.MemTotalBytes = vm.Total
		out.MemUsedPercent = vm.UsedPercent
	} else {
		s.logger.Debug("read memory stats", zap.Error(err))
	}
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		out.CPUPercent = pct[0]
	} else if err != nil {
		s.logger.Debug("read cpu stats", zap.Error(err))
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		out.HostUptimeSec = up
	} else {
		s.logger.Debug("read host uptime", zap.Error(err))
	}
	return out
}
