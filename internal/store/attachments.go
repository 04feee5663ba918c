package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/liftcare/liftsuite/internal/model"
)

const attachmentColumns = `id, owner_type, owner_id, kind, blob_key, file_name, mime, size_bytes, created_at`

func (s *Store) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = model.Now()
	_, err := s.namedExec(ctx, `
		INSERT INTO attachments (id, owner_type, owner_id, kind, blob_key, file_name, mime, size_bytes, created_at)
		VALUES (:id, :owner_type, :owner_id, :kind, :blob_key, :file_name, :mime, :size_bytes, :created_at)
	`, a)
	return err
}

func (s *Store) GetAttachment(ctx context.Context, id string) (model.Attachment, error) {
	var a model.Attachment
	err := s.get(ctx, &a, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	return a, err
}

func (s *Store) ListAttachments(ctx context.Context, ownerType, ownerID string) ([]model.Attachment, error) {
	out := []model.Attachment{}
	err := s.selectAll(ctx, &out, `
		SELECT `+attachmentColumns+` FROM attachments WHERE owner_type = ? AND owner_id = ? ORDER BY created_at ASC
	`, ownerType, ownerID)
	return out, err
}

func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM attachments WHERE id = ?`, id)
}

// DeleteAttachmentsFor removes the rows of an owner and returns their blob keys for cleanup.
func (s *Store) DeleteAttachmentsFor(ctx context.Context, ownerType, ownerID string) ([]string, error) {
	keys := []string{}
	if err := s.selectAll(ctx, &keys, `SELECT blob_key FROM attachments WHERE owner_type = ? AND owner_id = ?`, ownerType, ownerID); err != nil {
		return nil, err
	}
	_, err := s.exec(ctx, `DELETE FROM attachments WHERE owner_type = ? AND owner_id = ?`, ownerType, ownerID)
	return keys, err
}

// BlobKeyInUse reports whether any row still references key. Content addressed keys can be shared.
func (s *Store) BlobKeyInUse(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.get(ctx, &n, `
		SELECT
			(SELECT COUNT(*) FROM attachments WHERE blob_key = ?) +
			(SELECT COUNT(*) FROM legal_documents WHERE blob_key = ?) +
			(SELECT COUNT(*) FROM maintenance_schedules WHERE signature_key = ?) +
			(SELECT COUNT(*) FROM emergency_visits WHERE signature_key = ?)
	`, key, key, key, key)
	return n > 0, err
}
