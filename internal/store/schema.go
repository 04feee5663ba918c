package store

import (
	"context"
	"fmt"
	"time"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		csrf_token TEXT NOT NULL,
		expires_at BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		last_seen_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tax_id TEXT NOT NULL DEFAULT '',
		contact_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS elevators (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		code TEXT NOT NULL UNIQUE,
		building_name TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		serial_number TEXT NOT NULL DEFAULT '',
		floors BIGINT NOT NULL DEFAULT 0,
		capacity_kg BIGINT NOT NULL DEFAULT 0,
		installed_on TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS maintenance_schedules (
		id TEXT PRIMARY KEY,
		elevator_id TEXT NOT NULL REFERENCES elevators(id) ON DELETE CASCADE,
		technician_id TEXT NOT NULL DEFAULT '',
		scheduled_date TEXT NOT NULL,
		frequency TEXT NOT NULL,
		status TEXT NOT NULL,
		checklist TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		signature_key TEXT NOT NULL DEFAULT '',
		signed_by TEXT NOT NULL DEFAULT '',
		completed_at BIGINT NOT NULL DEFAULT 0,
		notified_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS work_orders (
		id TEXT PRIMARY KEY,
		folio TEXT NOT NULL UNIQUE,
		elevator_id TEXT NOT NULL REFERENCES elevators(id) ON DELETE CASCADE,
		client_id TEXT NOT NULL,
		technician_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		estimated_cost_cents BIGINT NOT NULL DEFAULT 0,
		actual_cost_cents BIGINT NOT NULL DEFAULT 0,
		scheduled_date TEXT NOT NULL DEFAULT '',
		completed_at BIGINT NOT NULL DEFAULT 0,
		notified_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS emergency_visits (
		id TEXT PRIMARY KEY,
		elevator_id TEXT NOT NULL REFERENCES elevators(id) ON DELETE CASCADE,
		client_id TEXT NOT NULL,
		technician_id TEXT NOT NULL DEFAULT '',
		failure_type TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		resolution TEXT NOT NULL DEFAULT '',
		passengers_trapped BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		reported_at BIGINT NOT NULL,
		arrived_at BIGINT NOT NULL DEFAULT 0,
		resolved_at BIGINT NOT NULL DEFAULT 0,
		signature_key TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quotations (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		elevator_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		items TEXT NOT NULL DEFAULT '[]',
		tax_rate_bp BIGINT NOT NULL DEFAULT 0,
		subtotal_cents BIGINT NOT NULL DEFAULT 0,
		tax_cents BIGINT NOT NULL DEFAULT 0,
		total_cents BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		valid_until TEXT NOT NULL DEFAULT '',
		decided_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		owner_type TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		blob_key TEXT NOT NULL,
		file_name TEXT NOT NULL,
		mime TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		read_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rescue_training_modules (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		passing_score BIGINT NOT NULL DEFAULT 80,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rescue_training_attempts (
		id TEXT PRIMARY KEY,
		module_id TEXT NOT NULL REFERENCES rescue_training_modules(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		score BIGINT NOT NULL,
		passed BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS legal_documents (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		elevator_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		blob_key TEXT NOT NULL,
		file_name TEXT NOT NULL,
		mime TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		issued_on TEXT NOT NULL DEFAULT '',
		expires_on TEXT NOT NULL DEFAULT '',
		notified_at BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS qr_codes (
		id TEXT PRIMARY KEY,
		elevator_id TEXT NOT NULL REFERENCES elevators(id) ON DELETE CASCADE,
		created_at BIGINT NOT NULL,
		revoked_at BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_elevators_client ON elevators(client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_maintenance_elevator ON maintenance_schedules(elevator_id, scheduled_date)`,
	`CREATE INDEX IF NOT EXISTS idx_maintenance_technician ON maintenance_schedules(technician_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_work_orders_client ON work_orders(client_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_work_orders_technician ON work_orders(technician_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_emergencies_elevator ON emergency_visits(elevator_id, reported_at)`,
	`CREATE INDEX IF NOT EXISTS idx_quotations_client ON quotations(client_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_owner ON attachments(owner_type, owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read_at)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_client ON legal_documents(client_id, expires_on)`,
	`CREATE INDEX IF NOT EXISTS idx_qr_codes_elevator ON qr_codes(elevator_id)`,
}

// Tables lists every table owned by the schema in dependency order.
var Tables = []string{
	"users",
	"sessions",
	"clients",
	"elevators",
	"maintenance_schedules",
	"work_orders",
	"emergency_visits",
	"quotations",
	"attachments",
	"notifications",
	"rescue_training_modules",
	"rescue_training_attempts",
	"legal_documents",
	"qr_codes",
}

func (s *Store) InitSchema(ctx context.Context) error {
	for _, statement := range schemaStatements {
		if _, err := s.exec(ctx, statement); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	_, err := s.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC().Unix())
	return err
}
