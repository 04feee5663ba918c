// Package store persists the maintenance records in a relational database. SQLite (modernc) is
// the default; Postgres is reached through pgx's database/sql driver. Queries are written with
// "?" placeholders and rebound for the active driver.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultSQLiteDSN = "file:data.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type Store struct {
	db *sqlx.DB
}

// Open connects to the database named by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	sqlDriver := ""
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite3":
		sqlDriver = "sqlite"
		if strings.TrimSpace(dsn) == "" {
			dsn = DefaultSQLiteDSN
		}
	case DriverPostgres, "pgx", "postgresql":
		sqlDriver = "pgx"
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("DB_DSN is required for postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", sqlDriver, err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle. Tests pass a sqlmock-backed connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	err := withSQLiteRetry(func() error {
		return s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return withSQLiteRetry(func() error {
		return s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...)
	})
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withSQLiteRetry(func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		return execErr
	})
	return res, translateError(err)
}

// execOne runs a write that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) namedExec(ctx context.Context, query string, arg any) (sql.Result, error) {
	var res sql.Result
	err := withSQLiteRetry(func() error {
		var execErr error
		res, execErr = s.db.NamedExecContext(ctx, query, arg)
		return execErr
	})
	return res, translateError(err)
}

func (s *Store) namedExecOne(ctx context.Context, query string, arg any) error {
	res, err := s.namedExec(ctx, query, arg)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// inTx runs fn inside a transaction, committing when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return withSQLiteRetry(func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return translateError(err)
		}
		return tx.Commit()
	})
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func withSQLiteRetry(fn func() error) error {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		lower := strings.ToLower(err.Error())
		if !strings.Contains(lower, "database is locked") && !strings.Contains(lower, "database is busy") {
			return err
		}
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * 125 * time.Millisecond)
		}
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
