package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/liftcare/liftsuite/internal/model"
)

const notificationColumns = `id, user_id, title, message, link, kind, read_at, created_at`

// Notify stores one notification per recipient.
func (s *Store) Notify(ctx context.Context, userIDs []string, n model.Notification) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := model.Now()
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, userID := range userIDs {
			row := n
			row.ID = uuid.NewString()
			row.UserID = userID
			row.ReadAt = 0
			row.CreatedAt = now
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO notifications (id, user_id, title, message, link, kind, read_at, created_at)
				VALUES (:id, :user_id, :title, :message, :link, :kind, :read_at, :created_at)
			`, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, f ListFilter) (Page[model.Notification], error) {
	f = f.normalized()
	var w whereBuilder
	w.add("user_id = ?", userID)
	if unreadOnly {
		w.add("read_at = 0")
	}
	out := Page[model.Notification]{Items: []model.Notification{}, Page: f.Page, PerPage: f.PerPage}
	if err := s.get(ctx, &out.Total, `SELECT COUNT(*) FROM notifications`+w.sql(), w.args...); err != nil {
		return out, err
	}
	args := append(append([]any{}, w.args...), f.PerPage, (f.Page-1)*f.PerPage)
	err := s.selectAll(ctx, &out.Items, `SELECT `+notificationColumns+` FROM notifications`+w.sql()+
		` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`, args...)
	return out, err
}

func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.get(ctx, &n, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at = 0`, userID)
	return n, err
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return s.execOne(ctx, `UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at = 0`,
		model.Now(), id, userID)
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.exec(ctx, `UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at = 0`, model.Now(), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) DeleteNotification(ctx context.Context, id, userID string) error {
	return s.execOne(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID)
}
