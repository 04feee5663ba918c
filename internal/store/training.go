package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/liftcare/liftsuite/internal/model"
)

var trainingResource = resource{
	table:      "rescue_training_modules",
	columns:    `id, title, description, content, passing_score, created_at, updated_at`,
	searchCols: []string{"title", "description"},
	order:      "title ASC",
}

const attemptColumns = `id, module_id, user_id, score, passed, completed_at`

func (s *Store) ListTrainingModules(ctx context.Context, f ListFilter) (Page[model.TrainingModule], error) {
	return listPage[model.TrainingModule](ctx, s, trainingResource, f)
}

func (s *Store) GetTrainingModule(ctx context.Context, id string) (model.TrainingModule, error) {
	var m model.TrainingModule
	err := s.get(ctx, &m, `SELECT `+trainingResource.columns+` FROM rescue_training_modules WHERE id = ?`, id)
	return m, err
}

func (s *Store) CreateTrainingModule(ctx context.Context, m *model.TrainingModule) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := model.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	_, err := s.namedExec(ctx, `
		INSERT INTO rescue_training_modules (id, title, description, content, passing_score, created_at, updated_at)
		VALUES (:id, :title, :description, :content, :passing_score, :created_at, :updated_at)
	`, m)
	return err
}

func (s *Store) UpdateTrainingModule(ctx context.Context, m *model.TrainingModule) error {
	m.UpdatedAt = model.Now()
	return s.namedExecOne(ctx, `
		UPDATE rescue_training_modules SET title = :title, description = :description, content = :content,
			passing_score = :passing_score, updated_at = :updated_at
		WHERE id = :id
	`, m)
}

func (s *Store) DeleteTrainingModule(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM rescue_training_modules WHERE id = ?`, id)
}

func (s *Store) CreateTrainingAttempt(ctx context.Context, a *model.TrainingAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CompletedAt = model.Now()
	_, err := s.namedExec(ctx, `
		INSERT INTO rescue_training_attempts (id, module_id, user_id, score, passed, completed_at)
		VALUES (:id, :module_id, :user_id, :score, :passed, :completed_at)
	`, a)
	return err
}

// ListTrainingAttempts filters by module and/or user; empty arguments match everything.
func (s *Store) ListTrainingAttempts(ctx context.Context, moduleID, userID string) ([]model.TrainingAttempt, error) {
	var w whereBuilder
	if moduleID != "" {
		w.add("module_id = ?", moduleID)
	}
	if userID != "" {
		w.add("user_id = ?", userID)
	}
	out := []model.TrainingAttempt{}
	err := s.selectAll(ctx, &out, `SELECT `+attemptColumns+` FROM rescue_training_attempts`+w.sql()+
		` ORDER BY completed_at DESC`, w.args...)
	return out, err
}
