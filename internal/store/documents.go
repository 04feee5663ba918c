package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/liftcare/liftsuite/internal/model"
)

var documentResource = resource{
	table: "legal_documents",
	columns: `id, client_id, elevator_id, title, category, blob_key, file_name, mime, size_bytes, issued_on,
		expires_on, notified_at, created_at`,
	// legal documents have no status; category travels in ListFilter.Status.
	statusCol:    "category",
	clientClause: "client_id = ?",
	hasElevator:  true,
	searchCols:   []string{"title", "file_name"},
	dateCol:      "expires_on",
	order:        "created_at DESC, id ASC",
}

func (s *Store) ListDocuments(ctx context.Context, f ListFilter) (Page[model.LegalDocument], error) {
	return listPage[model.LegalDocument](ctx, s, documentResource, f)
}

func (s *Store) GetDocument(ctx context.Context, id string) (model.LegalDocument, error) {
	var d model.LegalDocument
	err := s.get(ctx, &d, `SELECT `+documentResource.columns+` FROM legal_documents WHERE id = ?`, id)
	return d, err
}

func (s *Store) CreateDocument(ctx context.Context, d *model.LegalDocument) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = model.Now()
	_, err := s.namedExec(ctx, `
		INSERT INTO legal_documents (id, client_id, elevator_id, title, category, blob_key, file_name, mime,
			size_bytes, issued_on, expires_on, notified_at, created_at)
		VALUES (:id, :client_id, :elevator_id, :title, :category, :blob_key, :file_name, :mime, :size_bytes,
			:issued_on, :expires_on, :notified_at, :created_at)
	`, d)
	return err
}

// UpdateDocument edits metadata; the stored file is immutable. Changing the expiry re-arms the notice.
func (s *Store) UpdateDocument(ctx context.Context, d *model.LegalDocument) error {
	return s.namedExecOne(ctx, `
		UPDATE legal_documents SET client_id = :client_id, elevator_id = :elevator_id, title = :title,
			category = :category, issued_on = :issued_on, expires_on = :expires_on, notified_at = :notified_at
		WHERE id = :id
	`, d)
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM legal_documents WHERE id = ?`, id)
}

// DocumentsExpiringBy lists un-notified documents with an expiry date on or before until.
func (s *Store) DocumentsExpiringBy(ctx context.Context, until string) ([]model.LegalDocument, error) {
	out := []model.LegalDocument{}
	err := s.selectAll(ctx, &out, `
		SELECT `+documentResource.columns+` FROM legal_documents
		WHERE expires_on <> '' AND expires_on <= ? AND notified_at = 0
		ORDER BY expires_on ASC
	`, until)
	return out, err
}

// ExpiringDocuments lists documents visible under f expiring between from and until regardless of notices.
func (s *Store) ExpiringDocuments(ctx context.Context, f ListFilter, from, until string) ([]model.LegalDocument, error) {
	f.From, f.To = from, until
	return listAll[model.LegalDocument](ctx, s, documentResource, f)
}

func (s *Store) MarkDocumentNotified(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE legal_documents SET notified_at = ? WHERE id = ?`, model.Now(), id)
}
