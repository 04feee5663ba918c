// Package scheduler runs the periodic housekeeping jobs: maintenance
// reminders, overdue work orders, expiring legal documents and stale
// quotations.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/metrics"
	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
)

const (
	DefaultSpec        = "@every 15m"
	documentNoticeDays = 30
)

// Store is the slice of the relational store the jobs need.
type Store interface {
	MaintenanceDueForNotice(ctx context.Context, from, to string) ([]model.MaintenanceSchedule, error)
	MarkMaintenanceNotified(ctx context.Context, id string) error
	OverdueWorkOrders(ctx context.Context, today string) ([]model.WorkOrder, error)
	MarkWorkOrderNotified(ctx context.Context, id string) error
	DocumentsExpiringBy(ctx context.Context, until string) ([]model.LegalDocument, error)
	MarkDocumentNotified(ctx context.Context, id string) error
	ExpireQuotations(ctx context.Context, today string) (int64, error)
	GetElevator(ctx context.Context, id string) (model.Elevator, error)
	ActiveUserIDsByRole(ctx context.Context, roles ...model.Role) ([]string, error)
	Notify(ctx context.Context, userIDs []string, n model.Notification) error
}

// Publisher receives change events for tables touched by a run.
type Publisher interface {
	Publish(ctx context.Context, table, eventType, id, clientID string)
}

type Result struct {
	MaintenanceNotices int `json:"maintenanceNotices"`
	OverdueWorkOrders  int `json:"overdueWorkOrders"`
	ExpiringDocuments  int `json:"expiringDocuments"`
	ExpiredQuotations  int `json:"expiredQuotations"`
}

type Scheduler struct {
	store   Store
	events  Publisher
	logger  *zap.Logger
	metrics *metrics.Metrics
	spec    string
	now     func() time.Time
}

type Options struct {
	Spec    string
	Metrics *metrics.Metrics
}

func New(store Store, events Publisher, logger *zap.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	spec := opts.Spec
	if spec == "" {
		spec = DefaultSpec
	}
	return &Scheduler{
		store:   store,
		events:  events,
		logger:  logger.Named("scheduler"),
		metrics: opts.Metrics,
		spec:    spec,
		now:     time.Now,
	}
}

// Start runs the jobs on the cron spec until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	cl := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.runLogged(ctx) }); err != nil {
		return fmt.Errorf("scheduler spec %q: %w", s.spec, err)
	}
	s.logger.Info("scheduler started", zap.String("spec", s.spec))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runLogged(ctx context.Context) {
	start := time.Now()
	res, err := s.RunOnce(ctx)
	result := "ok"
	if err != nil {
		result = "error"
		s.logger.Error("scheduler run failed", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.SchedulerRuns.WithLabelValues(result).Inc()
	}
	s.logger.Info("scheduler run",
		zap.Int("maintenance_notices", res.MaintenanceNotices),
		zap.Int("overdue_work_orders", res.OverdueWorkOrders),
		zap.Int("expiring_documents", res.ExpiringDocuments),
		zap.Int("expired_quotations", res.ExpiredQuotations),
		zap.Duration("duration", time.Since(start)),
	)
}

// RunOnce executes every job once. A failing job does not stop the others;
// their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	now := s.now().UTC()
	today := model.FormatDate(now)
	var res Result
	var errs []error

	n, err := s.notifyDueMaintenance(ctx, today, model.FormatDate(now.AddDate(0, 0, 1)))
	res.MaintenanceNotices = n
	errs = append(errs, err)

	admins, err := s.store.ActiveUserIDsByRole(ctx, model.RoleAdmin, model.RoleDeveloper)
	if err != nil {
		errs = append(errs, fmt.Errorf("list admins: %w", err))
	} else {
		n, err = s.notifyOverdueWorkOrders(ctx, today, admins)
		res.OverdueWorkOrders = n
		errs = append(errs, err)

		n, err = s.notifyExpiringDocuments(ctx, model.FormatDate(now.AddDate(0, 0, documentNoticeDays)), admins)
		res.ExpiringDocuments = n
		errs = append(errs, err)
	}

	expired, err := s.store.ExpireQuotations(ctx, today)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire quotations: %w", err))
	} else if expired > 0 {
		res.ExpiredQuotations = int(expired)
		s.publish(ctx, "quotations", "")
	}
	return res, errors.Join(errs...)
}

func (s *Scheduler) notifyDueMaintenance(ctx context.Context, from, to string) (int, error) {
	due, err := s.store.MaintenanceDueForNotice(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("due maintenance: %w", err)
	}
	sent := 0
	for _, m := range due {
		code, clientID := s.elevatorLabel(ctx, m.ElevatorID)
		if err := s.store.Notify(ctx, []string{m.TechnicianID}, model.Notification{
			Title:   "Maintenance due",
			Message: fmt.Sprintf("Elevator %s is scheduled for maintenance on %s.", code, m.ScheduledDate),
			Link:    "/maintenance/" + m.ID,
			Kind:    model.NoticeMaintenanceDue,
		}); err != nil {
			return sent, fmt.Errorf("notify maintenance %s: %w", m.ID, err)
		}
		if err := s.store.MarkMaintenanceNotified(ctx, m.ID); err != nil {
			return sent, fmt.Errorf("mark maintenance %s: %w", m.ID, err)
		}
		s.counted(model.NoticeMaintenanceDue)
		s.publish(ctx, "notifications", clientID)
		sent++
	}
	return sent, nil
}

func (s *Scheduler) notifyOverdueWorkOrders(ctx context.Context, today string, admins []string) (int, error) {
	overdue, err := s.store.OverdueWorkOrders(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("overdue work orders: %w", err)
	}
	sent := 0
	for _, wo := range overdue {
		recipients := appendUnique(admins, wo.TechnicianID)
		if err := s.store.Notify(ctx, recipients, model.Notification{
			Title:   "Work order overdue",
			Message: fmt.Sprintf("%s %q was scheduled for %s and is still %s.", wo.Folio, wo.Title, wo.ScheduledDate, wo.Status),
			Link:    "/work-orders/" + wo.ID,
			Kind:    model.NoticeWorkOrderOverdue,
		}); err != nil {
			return sent, fmt.Errorf("notify work order %s: %w", wo.ID, err)
		}
		if err := s.store.MarkWorkOrderNotified(ctx, wo.ID); err != nil {
			return sent, fmt.Errorf("mark work order %s: %w", wo.ID, err)
		}
		s.counted(model.NoticeWorkOrderOverdue)
		s.publish(ctx, "notifications", "")
		sent++
	}
	return sent, nil
}

func (s *Scheduler) notifyExpiringDocuments(ctx context.Context, until string, admins []string) (int, error) {
	docs, err := s.store.DocumentsExpiringBy(ctx, until)
	if err != nil {
		return 0, fmt.Errorf("expiring documents: %w", err)
	}
	sent := 0
	for _, d := range docs {
		if err := s.store.Notify(ctx, admins, model.Notification{
			Title:   "Document expiring",
			Message: fmt.Sprintf("%q expires on %s.", d.Title, d.ExpiresOn),
			Link:    "/documents/" + d.ID,
			Kind:    model.NoticeDocumentExpiring,
		}); err != nil {
			return sent, fmt.Errorf("notify document %s: %w", d.ID, err)
		}
		if err := s.store.MarkDocumentNotified(ctx, d.ID); err != nil {
			return sent, fmt.Errorf("mark document %s: %w", d.ID, err)
		}
		s.counted(model.NoticeDocumentExpiring)
		s.publish(ctx, "notifications", "")
		sent++
	}
	return sent, nil
}

func (s *Scheduler) elevatorLabel(ctx context.Context, id string) (code, clientID string) {
	e, err := s.store.GetElevator(ctx, id)
	if err != nil {
		return id, ""
	}
	return e.Code, e.ClientID
}

func (s *Scheduler) publish(ctx context.Context, table, clientID string) {
	if s.events != nil {
		s.events.Publish(ctx, table, realtime.EventUpdate, "", clientID)
	}
}

func (s *Scheduler) counted(kind string) {
	if s.metrics != nil {
		s.metrics.Notifications.WithLabelValues(kind).Inc()
	}
}

func appendUnique(ids []string, id string) []string {
	out := append([]string(nil), ids...)
	if id == "" || model.Contains(out, id) {
		return out
	}
	return append(out, id)
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
