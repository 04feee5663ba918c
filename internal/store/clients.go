package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/liftcare/liftsuite/internal/model"
)

var clientResource = resource{
	table:        "clients",
	columns:      `id, name, tax_id, contact_name, email, phone, address, created_at, updated_at`,
	clientClause: "id = ?",
	searchCols:   []string{"name", "tax_id", "contact_name", "email"},
	order:        "name ASC",
}

func (s *Store) ListClients(ctx context.Context, f ListFilter) (Page[model.Client], error) {
	return listPage[model.Client](ctx, s, clientResource, f)
}

func (s *Store) AllClients(ctx context.Context) ([]model.Client, error) {
	return listAll[model.Client](ctx, s, clientResource, ListFilter{})
}

func (s *Store) GetClient(ctx context.Context, id string) (model.Client, error) {
	var c model.Client
	err := s.get(ctx, &c, `SELECT `+clientResource.columns+` FROM clients WHERE id = ?`, id)
	return c, err
}

func (s *Store) GetClientByName(ctx context.Context, name string) (model.Client, error) {
	var c model.Client
	err := s.get(ctx, &c, `SELECT `+clientResource.columns+` FROM clients WHERE LOWER(name) = ? ORDER BY created_at LIMIT 1`,
		strings.ToLower(strings.TrimSpace(name)))
	return c, err
}

func (s *Store) CreateClient(ctx context.Context, c *model.Client) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := model.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.namedExec(ctx, `
		INSERT INTO clients (id, name, tax_id, contact_name, email, phone, address, created_at, updated_at)
		VALUES (:id, :name, :tax_id, :contact_name, :email, :phone, :address, :created_at, :updated_at)
	`, c)
	return err
}

func (s *Store) UpdateClient(ctx context.Context, c *model.Client) error {
	c.UpdatedAt = model.Now()
	return s.namedExecOne(ctx, `
		UPDATE clients SET name = :name, tax_id = :tax_id, contact_name = :contact_name, email = :email,
			phone = :phone, address = :address, updated_at = :updated_at
		WHERE id = :id
	`, c)
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM clients WHERE id = ?`, id)
}
