package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/liftcare/liftsuite/internal/model"
)

const QuotationNumberPrefix = "COT"

var quotationResource = resource{
	table: "quotations",
	columns: `id, number, client_id, elevator_id, title, items, tax_rate_bp, subtotal_cents, tax_cents, total_cents,
		status, valid_until, decided_at, created_at, updated_at`,
	statusCol:    "status",
	clientClause: "client_id = ?",
	hasElevator:  true,
	searchCols:   []string{"number", "title"},
	dateCol:      "created_at",
	dateIsUnix:   true,
	order:        "created_at DESC, number DESC",
}

func (s *Store) ListQuotations(ctx context.Context, f ListFilter) (Page[model.Quotation], error) {
	return listPage[model.Quotation](ctx, s, quotationResource, f)
}

func (s *Store) AllQuotations(ctx context.Context, f ListFilter) ([]model.Quotation, error) {
	return listAll[model.Quotation](ctx, s, quotationResource, f)
}

func (s *Store) GetQuotation(ctx context.Context, id string) (model.Quotation, error) {
	var q model.Quotation
	err := s.get(ctx, &q, `SELECT `+quotationResource.columns+` FROM quotations WHERE id = ?`, id)
	return q, err
}

// CreateQuotation recomputes totals and assigns the next COT number of the current year.
func (s *Store) CreateQuotation(ctx context.Context, q *model.Quotation) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Status == "" {
		q.Status = model.QuotationDraft
	}
	q.Recalculate()
	now := model.Now()
	q.CreatedAt, q.UpdatedAt = now, now
	year := time.Now().UTC().Year()

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.inTx(ctx, func(tx *sqlx.Tx) error {
			number, err := nextFolio(ctx, tx, "quotations", "number", QuotationNumberPrefix, year)
			if err != nil {
				return err
			}
			q.Number = number
			_, err = tx.NamedExecContext(ctx, `
				INSERT INTO quotations (id, number, client_id, elevator_id, title, items, tax_rate_bp, subtotal_cents,
					tax_cents, total_cents, status, valid_until, decided_at, created_at, updated_at)
				VALUES (:id, :number, :client_id, :elevator_id, :title, :items, :tax_rate_bp, :subtotal_cents,
					:tax_cents, :total_cents, :status, :valid_until, :decided_at, :created_at, :updated_at)
			`, q)
			return err
		})
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

func (s *Store) UpdateQuotation(ctx context.Context, q *model.Quotation) error {
	q.Recalculate()
	q.UpdatedAt = model.Now()
	return s.namedExecOne(ctx, `
		UPDATE quotations SET client_id = :client_id, elevator_id = :elevator_id, title = :title, items = :items,
			tax_rate_bp = :tax_rate_bp, subtotal_cents = :subtotal_cents, tax_cents = :tax_cents,
			total_cents = :total_cents, status = :status, valid_until = :valid_until, decided_at = :decided_at,
			updated_at = :updated_at
		WHERE id = :id
	`, q)
}

func (s *Store) DeleteQuotation(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM quotations WHERE id = ?`, id)
}

// ExpireQuotations marks sent quotations whose valid_until is before today as expired and returns
// how many changed.
func (s *Store) ExpireQuotations(ctx context.Context, today string) (int64, error) {
	res, err := s.exec(ctx, `
		UPDATE quotations SET status = ?, updated_at = ?
		WHERE status = ? AND valid_until <> '' AND valid_until < ?
	`, model.QuotationExpired, model.Now(), model.QuotationSent, today)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
