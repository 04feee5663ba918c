package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/liftcare/liftsuite/internal/model"
)

const WorkOrderFolioPrefix = "OT"

var workOrderResource = resource{
	table: "work_orders",
	columns: `id, folio, elevator_id, client_id, technician_id, title, description, priority, status,
		estimated_cost_cents, actual_cost_cents, scheduled_date, completed_at, notified_at, created_at, updated_at`,
	statusCol:    "status",
	clientClause: "client_id = ?",
	hasElevator:  true,
	hasTech:      true,
	searchCols:   []string{"folio", "title", "description"},
	dateCol:      "scheduled_date",
	order:        "created_at DESC, folio DESC",
}

func (s *Store) ListWorkOrders(ctx context.Context, f ListFilter) (Page[model.WorkOrder], error) {
	return listPage[model.WorkOrder](ctx, s, workOrderResource, f)
}

func (s *Store) AllWorkOrders(ctx context.Context, f ListFilter) ([]model.WorkOrder, error) {
	return listAll[model.WorkOrder](ctx, s, workOrderResource, f)
}

func (s *Store) GetWorkOrder(ctx context.Context, id string) (model.WorkOrder, error) {
	var wo model.WorkOrder
	err := s.get(ctx, &wo, `SELECT `+workOrderResource.columns+` FROM work_orders WHERE id = ?`, id)
	return wo, err
}

// CreateWorkOrder assigns the next OT folio of the current year. A concurrent insert that takes the
// same folio surfaces as a unique violation and is retried.
func (s *Store) CreateWorkOrder(ctx context.Context, wo *model.WorkOrder) error {
	if wo.ID == "" {
		wo.ID = uuid.NewString()
	}
	if wo.Status == "" {
		wo.Status = model.WorkOrderPending
	}
	if wo.Priority == "" {
		wo.Priority = model.PriorityMedium
	}
	now := model.Now()
	wo.CreatedAt, wo.UpdatedAt = now, now
	year := time.Now().UTC().Year()

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.inTx(ctx, func(tx *sqlx.Tx) error {
			folio, err := nextFolio(ctx, tx, "work_orders", "folio", WorkOrderFolioPrefix, year)
			if err != nil {
				return err
			}
			wo.Folio = folio
			_, err = tx.NamedExecContext(ctx, `
				INSERT INTO work_orders (id, folio, elevator_id, client_id, technician_id, title, description,
					priority, status, estimated_cost_cents, actual_cost_cents, scheduled_date, completed_at,
					notified_at, created_at, updated_at)
				VALUES (:id, :folio, :elevator_id, :client_id, :technician_id, :title, :description, :priority,
					:status, :estimated_cost_cents, :actual_cost_cents, :scheduled_date, :completed_at, :notified_at,
					:created_at, :updated_at)
			`, wo)
			return err
		})
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

func (s *Store) UpdateWorkOrder(ctx context.Context, wo *model.WorkOrder) error {
	wo.UpdatedAt = model.Now()
	return s.namedExecOne(ctx, `
		UPDATE work_orders SET elevator_id = :elevator_id, client_id = :client_id, technician_id = :technician_id,
			title = :title, description = :description, priority = :priority, status = :status,
			estimated_cost_cents = :estimated_cost_cents, actual_cost_cents = :actual_cost_cents,
			scheduled_date = :scheduled_date, completed_at = :completed_at, updated_at = :updated_at
		WHERE id = :id
	`, wo)
}

func (s *Store) DeleteWorkOrder(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM work_orders WHERE id = ?`, id)
}

// OverdueWorkOrders lists open work orders scheduled before today that nobody was told about yet.
func (s *Store) OverdueWorkOrders(ctx context.Context, today string) ([]model.WorkOrder, error) {
	out := []model.WorkOrder{}
	err := s.selectAll(ctx, &out, `
		SELECT `+workOrderResource.columns+` FROM work_orders
		WHERE status NOT IN (?, ?) AND scheduled_date <> '' AND scheduled_date < ? AND notified_at = 0
		ORDER BY scheduled_date ASC
	`, model.WorkOrderCompleted, model.WorkOrderCancelled, today)
	return out, err
}

func (s *Store) MarkWorkOrderNotified(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE work_orders SET notified_at = ? WHERE id = ?`, model.Now(), id)
}

type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count" json:"count"`
}

// CountWorkOrdersByStatus groups work orders visible under f (status is ignored).
func (s *Store) CountWorkOrdersByStatus(ctx context.Context, f ListFilter) ([]StatusCount, error) {
	f.Status = ""
	w := workOrderResource.where(f)
	out := []StatusCount{}
	err := s.selectAll(ctx, &out, `SELECT status, COUNT(*) AS count FROM work_orders`+w.sql()+` GROUP BY status ORDER BY status`, w.args...)
	return out, err
}
