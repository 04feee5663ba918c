package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/liftcare/liftsuite/internal/model"
)

var elevatorResource = resource{
	table: "elevators",
	columns: `id, client_id, code, building_name, address, brand, model, serial_number, floors, capacity_kg,
		installed_on, status, created_at, updated_at`,
	statusCol:    "status",
	clientClause: "client_id = ?",
	searchCols:   []string{"code", "building_name", "address", "brand", "serial_number"},
	order:        "code ASC",
}

func (s *Store) ListElevators(ctx context.Context, f ListFilter) (Page[model.Elevator], error) {
	return listPage[model.Elevator](ctx, s, elevatorResource, f)
}

func (s *Store) AllElevators(ctx context.Context, f ListFilter) ([]model.Elevator, error) {
	return listAll[model.Elevator](ctx, s, elevatorResource, f)
}

func (s *Store) GetElevator(ctx context.Context, id string) (model.Elevator, error) {
	var e model.Elevator
	err := s.get(ctx, &e, `SELECT `+elevatorResource.columns+` FROM elevators WHERE id = ?`, id)
	return e, err
}

func (s *Store) GetElevatorByCode(ctx context.Context, code string) (model.Elevator, error) {
	var e model.Elevator
	err := s.get(ctx, &e, `SELECT `+elevatorResource.columns+` FROM elevators WHERE code = ?`, strings.TrimSpace(code))
	return e, err
}

func (s *Store) CreateElevator(ctx context.Context, e *model.Elevator) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.ElevatorOperational
	}
	now := model.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	_, err := s.namedExec(ctx, `
		INSERT INTO elevators (id, client_id, code, building_name, address, brand, model, serial_number, floors,
			capacity_kg, installed_on, status, created_at, updated_at)
		VALUES (:id, :client_id, :code, :building_name, :address, :brand, :model, :serial_number, :floors,
			:capacity_kg, :installed_on, :status, :created_at, :updated_at)
	`, e)
	return err
}

func (s *Store) UpdateElevator(ctx context.Context, e *model.Elevator) error {
	e.UpdatedAt = model.Now()
	return s.namedExecOne(ctx, `
		UPDATE elevators SET client_id = :client_id, code = :code, building_name = :building_name,
			address = :address, brand = :brand, model = :model, serial_number = :serial_number, floors = :floors,
			capacity_kg = :capacity_kg, installed_on = :installed_on, status = :status, updated_at = :updated_at
		WHERE id = :id
	`, e)
}

func (s *Store) SetElevatorStatus(ctx context.Context, id, status string) error {
	return s.execOne(ctx, `UPDATE elevators SET status = ?, updated_at = ? WHERE id = ?`, status, model.Now(), id)
}

func (s *Store) DeleteElevator(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM elevators WHERE id = ?`, id)
}
