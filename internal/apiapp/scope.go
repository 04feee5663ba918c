package apiapp

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
	"github.com/liftcare/liftsuite/internal/store"
)

// scoped narrows a list filter to what the user may see. Client users are pinned to their client;
// technicians to their own assignments (tables without a technician column ignore that).
func scoped(u *model.User, f store.ListFilter) store.ListFilter {
	switch u.Role {
	case model.RoleClient:
		f.ClientID = u.ClientID
		if f.ClientID == "" {
			f.ClientID = "-"
		}
	case model.RoleTechnician:
		f.TechnicianID = u.ID
	}
	return f
}

// visible reports whether u may read a record owned by clientID and assigned to technicianID.
func visible(u *model.User, clientID, technicianID string, unassignedOK bool) bool {
	switch u.Role {
	case model.RoleDeveloper, model.RoleAdmin:
		return true
	case model.RoleClient:
		return u.ClientID != "" && u.ClientID == clientID
	case model.RoleTechnician:
		return technicianID == u.ID || (unassignedOK && technicianID == "")
	}
	return false
}

func (s *server) visibleWorkOrder(ctx context.Context, u *model.User, id string) (model.WorkOrder, error) {
	wo, err := s.store.GetWorkOrder(ctx, id)
	if err != nil {
		return wo, err
	}
	if !visible(u, wo.ClientID, wo.TechnicianID, false) {
		return wo, store.ErrNotFound
	}
	return wo, nil
}

// visibleMaintenance returns the schedule with its elevator; the client is reached through it.
func (s *server) visibleMaintenance(ctx context.Context, u *model.User, id string) (model.MaintenanceSchedule, model.Elevator, error) {
	m, err := s.store.GetMaintenance(ctx, id)
	if err != nil {
		return m, model.Elevator{}, err
	}
	elevator, err := s.store.GetElevator(ctx, m.ElevatorID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return m, elevator, err
	}
	if !visible(u, elevator.ClientID, m.TechnicianID, false) {
		return m, elevator, store.ErrNotFound
	}
	return m, elevator, nil
}

func (s *server) visibleEmergency(ctx context.Context, u *model.User, id string) (model.EmergencyVisit, error) {
	e, err := s.store.GetEmergency(ctx, id)
	if err != nil {
		return e, err
	}
	if !visible(u, e.ClientID, e.TechnicianID, true) {
		return e, store.ErrNotFound
	}
	return e, nil
}

func (s *server) visibleQuotation(ctx context.Context, u *model.User, id string) (model.Quotation, error) {
	q, err := s.store.GetQuotation(ctx, id)
	if err != nil {
		return q, err
	}
	if u.Role == model.RoleTechnician || !visible(u, q.ClientID, "", false) {
		return q, store.ErrNotFound
	}
	return q, nil
}

// publish fans a change out to realtime subscribers.
func (s *server) publish(ctx context.Context, table, eventType, id, clientID string) {
	s.hub.Publish(ctx, table, eventType, id, clientID)
	s.metrics.RealtimeEvents.WithLabelValues(table, eventType).Inc()
}

// notify stores a notification per recipient. Failures are logged; the triggering write already succeeded.
func (s *server) notify(ctx context.Context, userIDs []string, n model.Notification) {
	if len(userIDs) == 0 {
		return
	}
	if err := s.store.Notify(ctx, userIDs, n); err != nil {
		s.logger.Warn("store notification", zap.String("kind", n.Kind), zap.Error(err))
		return
	}
	s.metrics.Notifications.WithLabelValues(n.Kind).Add(float64(len(userIDs)))
	s.publish(ctx, "notifications", realtime.EventInsert, "", "")
}

func (s *server) staffIDs(ctx context.Context) []string {
	ids, err := s.store.ActiveUserIDsByRole(ctx, model.RoleAdmin, model.RoleDeveloper)
	if err != nil {
		s.logger.Warn("list staff recipients", zap.Error(err))
		return nil
	}
	return ids
}

func (s *server) today() string {
	return s.now().UTC().Format(model.DateLayout)
}

func (s *server) daysFromToday(days int) string {
	return s.now().UTC().AddDate(0, 0, days).Format(model.DateLayout)
}
