package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/liftcare/liftsuite/internal/model"
)

var maintenanceResource = resource{
	table: "maintenance_schedules",
	columns: `id, elevator_id, technician_id, scheduled_date, frequency, status, checklist, notes, signature_key,
		signed_by, completed_at, notified_at, created_at, updated_at`,
	statusCol:    "status",
	clientClause: "elevator_id IN (SELECT id FROM elevators WHERE client_id = ?)",
	hasElevator:  true,
	hasTech:      true,
	searchCols:   []string{"notes", "signed_by"},
	dateCol:      "scheduled_date",
	order:        "scheduled_date ASC, id ASC",
}

const insertMaintenance = `
	INSERT INTO maintenance_schedules (id, elevator_id, technician_id, scheduled_date, frequency, status, checklist,
		notes, signature_key, signed_by, completed_at, notified_at, created_at, updated_at)
	VALUES (:id, :elevator_id, :technician_id, :scheduled_date, :frequency, :status, :checklist, :notes,
		:signature_key, :signed_by, :completed_at, :notified_at, :created_at, :updated_at)
`

func (s *Store) ListMaintenance(ctx context.Context, f ListFilter) (Page[model.MaintenanceSchedule], error) {
	return listPage[model.MaintenanceSchedule](ctx, s, maintenanceResource, f)
}

func (s *Store) AllMaintenance(ctx context.Context, f ListFilter) ([]model.MaintenanceSchedule, error) {
	return listAll[model.MaintenanceSchedule](ctx, s, maintenanceResource, f)
}

func (s *Store) GetMaintenance(ctx context.Context, id string) (model.MaintenanceSchedule, error) {
	var m model.MaintenanceSchedule
	err := s.get(ctx, &m, `SELECT `+maintenanceResource.columns+` FROM maintenance_schedules WHERE id = ?`, id)
	return m, err
}

func (s *Store) CreateMaintenance(ctx context.Context, m *model.MaintenanceSchedule) error {
	prepareMaintenance(m)
	_, err := s.namedExec(ctx, insertMaintenance, m)
	return err
}

func prepareMaintenance(m *model.MaintenanceSchedule) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = model.MaintenanceScheduled
	}
	if m.Frequency == "" {
		m.Frequency = model.FrequencyOnce
	}
	now := model.Now()
	m.CreatedAt, m.UpdatedAt = now, now
}

func (s *Store) UpdateMaintenance(ctx context.Context, m *model.MaintenanceSchedule) error {
	m.UpdatedAt = model.Now()
	return s.namedExecOne(ctx, `
		UPDATE maintenance_schedules SET elevator_id = :elevator_id, technician_id = :technician_id,
			scheduled_date = :scheduled_date, frequency = :frequency, status = :status, checklist = :checklist,
			notes = :notes, signature_key = :signature_key, signed_by = :signed_by, completed_at = :completed_at,
			notified_at = :notified_at, updated_at = :updated_at
		WHERE id = :id
	`, m)
}

// CompleteMaintenance stores the finished visit and, for recurring schedules, inserts the next
// occurrence with a fresh copy of the checklist. The returned pointer is nil for one-off visits.
func (s *Store) CompleteMaintenance(ctx context.Context, m *model.MaintenanceSchedule) (*model.MaintenanceSchedule, error) {
	now := model.Now()
	m.Status = model.MaintenanceCompleted
	m.CompletedAt = now
	m.UpdatedAt = now

	var next *model.MaintenanceSchedule
	if date, ok := model.NextOccurrence(m.ScheduledDate, m.Frequency); ok {
		fresh := make(model.Checklist, 0, len(m.Checklist))
		for _, item := range m.Checklist {
			fresh = append(fresh, model.ChecklistItem{Key: item.Key, Section: item.Section, Label: item.Label})
		}
		next = &model.MaintenanceSchedule{
			ElevatorID:    m.ElevatorID,
			TechnicianID:  m.TechnicianID,
			ScheduledDate: date,
			Frequency:     m.Frequency,
			Checklist:     fresh,
		}
		prepareMaintenance(next)
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE maintenance_schedules SET status = :status, checklist = :checklist, notes = :notes,
				signature_key = :signature_key, signed_by = :signed_by, completed_at = :completed_at,
				updated_at = :updated_at
			WHERE id = :id
		`, m)
		if err != nil {
			return err
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		_, err = tx.NamedExecContext(ctx, insertMaintenance, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Store) DeleteMaintenance(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM maintenance_schedules WHERE id = ?`, id)
}

// MaintenanceDueForNotice lists assigned, un-notified visits scheduled between from and to (inclusive).
func (s *Store) MaintenanceDueForNotice(ctx context.Context, from, to string) ([]model.MaintenanceSchedule, error) {
	out := []model.MaintenanceSchedule{}
	err := s.selectAll(ctx, &out, `
		SELECT `+maintenanceResource.columns+` FROM maintenance_schedules
		WHERE status = ? AND notified_at = 0 AND technician_id <> '' AND scheduled_date >= ? AND scheduled_date <= ?
		ORDER BY scheduled_date ASC
	`, model.MaintenanceScheduled, from, to)
	return out, err
}

func (s *Store) MarkMaintenanceNotified(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE maintenance_schedules SET notified_at = ? WHERE id = ?`, model.Now(), id)
}

// LastCompletedMaintenanceDate returns the scheduled date of the latest completed visit, or "".
func (s *Store) LastCompletedMaintenanceDate(ctx context.Context, elevatorID string) (string, error) {
	var date string
	err := s.get(ctx, &date, `
		SELECT COALESCE(MAX(scheduled_date), '') FROM maintenance_schedules WHERE elevator_id = ? AND status = ?
	`, elevatorID, model.MaintenanceCompleted)
	return date, err
}
