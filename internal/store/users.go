package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/liftcare/liftsuite/internal/model"
)

const userColumns = `id, email, full_name, role, client_id, password_hash, active, created_at`

// EnsureDeveloper creates or refreshes the bootstrap developer account.
func (s *Store) EnsureDeveloper(ctx context.Context, email, fullName, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var id string
		err := tx.GetContext(ctx, &id, tx.Rebind(`SELECT id FROM users WHERE email = ?`), email)
		if err == nil {
			_, err = tx.ExecContext(ctx, tx.Rebind(`
				UPDATE users SET password_hash = ?, role = ?, active = TRUE WHERE id = ?
			`), passwordHash, model.RoleDeveloper, id)
			return err
		}
		if !isNoRows(err) {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO users (id, email, full_name, role, client_id, password_hash, active, created_at)
			VALUES (?, ?, ?, ?, '', ?, TRUE, ?)
		`), uuid.NewString(), email, fullName, model.RoleDeveloper, passwordHash, model.Now())
		return err
	})
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = model.Now()
	}
	_, err := s.namedExec(ctx, `
		INSERT INTO users (id, email, full_name, role, client_id, password_hash, active, created_at)
		VALUES (:id, :email, :full_name, :role, :client_id, :password_hash, :active, :created_at)
	`, u)
	return err
}

// UpdateUser saves profile fields. An empty PasswordHash keeps the stored one.
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	if u.PasswordHash == "" {
		return s.namedExecOne(ctx, `
			UPDATE users SET full_name = :full_name, role = :role, client_id = :client_id, active = :active
			WHERE id = :id
		`, u)
	}
	return s.namedExecOne(ctx, `
		UPDATE users SET full_name = :full_name, role = :role, client_id = :client_id, active = :active,
			password_hash = :password_hash
		WHERE id = :id
	`, u)
}

func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	if err := s.execOne(ctx, `UPDATE users SET active = FALSE WHERE id = ?`, id); err != nil {
		return err
	}
	_, err := s.exec(ctx, `DELETE FROM sessions WHERE user_id = ?`, id)
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := s.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := s.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, role model.Role, query string) ([]model.User, error) {
	var w whereBuilder
	if role != "" {
		w.add("role = ?", role)
	}
	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		w.add("(LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?)", "%"+q+"%", "%"+q+"%")
	}
	out := []model.User{}
	err := s.selectAll(ctx, &out, `SELECT `+userColumns+` FROM users`+w.sql()+` ORDER BY email`, w.args...)
	return out, err
}

// ActiveUserIDsByRole returns ids of active users holding any of roles.
func (s *Store) ActiveUserIDsByRole(ctx context.Context, roles ...model.Role) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id FROM users WHERE active = TRUE AND role IN (?) ORDER BY id`, roles)
	if err != nil {
		return nil, err
	}
	out := []string{}
	err = s.selectAll(ctx, &out, query, args...)
	return out, err
}

// ActiveUserIDsForClient returns the portal accounts of a client.
func (s *Store) ActiveUserIDsForClient(ctx context.Context, clientID string) ([]string, error) {
	out := []string{}
	err := s.selectAll(ctx, &out, `
		SELECT id FROM users WHERE active = TRUE AND role = ? AND client_id = ? ORDER BY id
	`, model.RoleClient, clientID)
	return out, err
}

type RoleCount struct {
	Role  model.Role `db:"role" json:"role"`
	Count int        `db:"count" json:"count"`
}

func (s *Store) CountUsersByRole(ctx context.Context) ([]RoleCount, error) {
	out := []RoleCount{}
	err := s.selectAll(ctx, &out, `SELECT role, COUNT(*) AS count FROM users WHERE active = TRUE GROUP BY role ORDER BY role`)
	return out, err
}

func (s *Store) CreateSession(ctx context.Context, sess model.Session) error {
	_, err := s.namedExec(ctx, `
		INSERT INTO sessions (id, user_id, csrf_token, expires_at, created_at, last_seen_at)
		VALUES (:id, :user_id, :csrf_token, :expires_at, :created_at, :last_seen_at)
	`, sess)
	return err
}

type sessionRow struct {
	model.Session
	User model.User `db:"u"`
}

// LookupSession returns the live session and its active user, touching last_seen_at.
func (s *Store) LookupSession(ctx context.Context, id string) (model.Session, model.User, error) {
	var row sessionRow
	err := s.get(ctx, &row, `
		SELECT s.id, s.user_id, s.csrf_token, s.expires_at, s.created_at, s.last_seen_at,
			u.id AS "u.id", u.email AS "u.email", u.full_name AS "u.full_name", u.role AS "u.role",
			u.client_id AS "u.client_id", u.password_hash AS "u.password_hash", u.active AS "u.active",
			u.created_at AS "u.created_at"
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ? AND s.expires_at > ? AND u.active = TRUE
	`, id, time.Now().UTC().Unix())
	if err != nil {
		return model.Session{}, model.User{}, err
	}
	_, _ = s.exec(ctx, `UPDATE sessions SET last_seen_at = ? WHERE id = ?`, model.Now(), id)
	return row.Session, row.User, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
