package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/liftcare/liftsuite/internal/model"
)

const qrColumns = `id, elevator_id, created_at, revoked_at`

// RotateQRCode revokes every live code of the elevator and issues a new one.
func (s *Store) RotateQRCode(ctx context.Context, elevatorID string) (model.QRCode, error) {
	now := model.Now()
	code := model.QRCode{ID: uuid.NewString(), ElevatorID: elevatorID, CreatedAt: now}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE qr_codes SET revoked_at = ? WHERE elevator_id = ? AND revoked_at = 0`),
			now, elevatorID); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO qr_codes (id, elevator_id, created_at, revoked_at) VALUES (:id, :elevator_id, :created_at, :revoked_at)
		`, code)
		return err
	})
	return code, err
}

func (s *Store) GetQRCode(ctx context.Context, id string) (model.QRCode, error) {
	var q model.QRCode
	err := s.get(ctx, &q, `SELECT `+qrColumns+` FROM qr_codes WHERE id = ?`, id)
	return q, err
}

func (s *Store) ActiveQRCode(ctx context.Context, elevatorID string) (model.QRCode, error) {
	var q model.QRCode
	err := s.get(ctx, &q, `
		SELECT `+qrColumns+` FROM qr_codes WHERE elevator_id = ? AND revoked_at = 0 ORDER BY created_at DESC LIMIT 1
	`, elevatorID)
	return q, err
}
