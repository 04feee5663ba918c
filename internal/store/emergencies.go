package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/liftcare/liftsuite/internal/model"
)

var emergencyResource = resource{
	table: "emergency_visits",
	columns: `id, elevator_id, client_id, technician_id, failure_type, description, resolution, passengers_trapped,
		status, reported_at, arrived_at, resolved_at, signature_key, created_at, updated_at`,
	statusCol:    "status",
	clientClause: "client_id = ?",
	hasElevator:  true,
	hasTech:      true,
	searchCols:   []string{"failure_type", "description", "resolution"},
	dateCol:      "reported_at",
	dateIsUnix:   true,
	order:        "reported_at DESC, id ASC",
}

func (s *Store) ListEmergencies(ctx context.Context, f ListFilter) (Page[model.EmergencyVisit], error) {
	return listPage[model.EmergencyVisit](ctx, s, emergencyResource, f)
}

func (s *Store) AllEmergencies(ctx context.Context, f ListFilter) ([]model.EmergencyVisit, error) {
	return listAll[model.EmergencyVisit](ctx, s, emergencyResource, f)
}

func (s *Store) GetEmergency(ctx context.Context, id string) (model.EmergencyVisit, error) {
	var e model.EmergencyVisit
	err := s.get(ctx, &e, `SELECT `+emergencyResource.columns+` FROM emergency_visits WHERE id = ?`, id)
	return e, err
}

// CreateEmergency records a new call. When passengers are trapped the elevator is marked stopped
// in the same transaction.
func (s *Store) CreateEmergency(ctx context.Context, e *model.EmergencyVisit) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.EmergencyReported
	}
	now := model.Now()
	if e.ReportedAt.IsZero() {
		e.ReportedAt = now
	}
	e.CreatedAt, e.UpdatedAt = now, now
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO emergency_visits (id, elevator_id, client_id, technician_id, failure_type, description,
				resolution, passengers_trapped, status, reported_at, arrived_at, resolved_at, signature_key,
				created_at, updated_at)
			VALUES (:id, :elevator_id, :client_id, :technician_id, :failure_type, :description, :resolution,
				:passengers_trapped, :status, :reported_at, :arrived_at, :resolved_at, :signature_key, :created_at,
				:updated_at)
		`, e); err != nil {
			return err
		}
		if !e.PassengersTrapped {
			return nil
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE elevators SET status = ?, updated_at = ? WHERE id = ?`),
			model.ElevatorStopped, now, e.ElevatorID)
		return err
	})
}

func (s *Store) UpdateEmergency(ctx context.Context, e *model.EmergencyVisit) error {
	e.UpdatedAt = model.Now()
	return s.namedExecOne(ctx, `
		UPDATE emergency_visits SET technician_id = :technician_id, failure_type = :failure_type,
			description = :description, resolution = :resolution, passengers_trapped = :passengers_trapped,
			status = :status, arrived_at = :arrived_at, resolved_at = :resolved_at, signature_key = :signature_key,
			updated_at = :updated_at
		WHERE id = :id
	`, e)
}

func (s *Store) DeleteEmergency(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM emergency_visits WHERE id = ?`, id)
}

// EmergenciesSince returns visits reported at or after since, across all elevators.
func (s *Store) EmergenciesSince(ctx context.Context, since time.Time) ([]model.EmergencyVisit, error) {
	out := []model.EmergencyVisit{}
	err := s.selectAll(ctx, &out, `
		SELECT `+emergencyResource.columns+` FROM emergency_visits WHERE reported_at >= ? ORDER BY reported_at DESC
	`, since.UTC().Unix())
	return out, err
}

func (s *Store) HasOpenEmergency(ctx context.Context, elevatorID string) (bool, error) {
	var n int
	err := s.get(ctx, &n, `SELECT COUNT(*) FROM emergency_visits WHERE elevator_id = ? AND status <> ?`,
		elevatorID, model.EmergencyResolved)
	return n > 0, err
}
