package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

const documentColumns = `id, file_name, content_type, storage_key, size_bytes, status, error_message, chunk_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d      models.Document
		errMsg sql.NullString
	)
	if err := row.Scan(
		&d.ID, &d.FileName, &d.ContentType, &d.StorageKey, &d.SizeBytes,
		&d.Status, &errMsg, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		d.ErrorMessage = &errMsg.String
	}
	return &d, nil
}

// CreateDocument inserts doc. Missing timestamps are filled in and written back to doc.
func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("%w: status %q", core.ErrInvalidInput, doc.Status)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	q := c.q(`
		INSERT INTO documents (` + documentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.FileName, doc.ContentType, doc.StorageKey, doc.SizeBytes,
		doc.Status, doc.ErrorMessage, doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := c.q(`SELECT ` + documentColumns + ` FROM documents WHERE id = ?`)
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns every document, newest first.
func (c *DatabaseClient) ListDocuments(ctx context.Context) ([]models.Document, error) {
	q := c.q(`SELECT ` + documentColumns + ` FROM documents ORDER BY created_at DESC, id ASC`)
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// TransitionDocument is a compare-and-set on the status column. It returns
// core.ErrConflict when the document is no longer in `from`.
func (c *DatabaseClient) TransitionDocument(ctx context.Context, id string, from, to models.DocumentStatus, errMsg *string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, from, to)
	}
	if to != models.StatusError {
		errMsg = nil
	}

	q := c.q(`
		UPDATE documents
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)
	res, err := c.db.ExecContext(ctx, q, to, errMsg, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("transition document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition document: %w", err)
	}
	if n == 0 {
		return c.missOrConflict(ctx, id, from)
	}
	return nil
}

// DeletePendingDocument deletes a document still in pending. A claimed document is
// core.ErrConflict and stays in place.
func (c *DatabaseClient) DeletePendingDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, c.q(`DELETE FROM documents WHERE id = ? AND status = ?`), id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return c.missOrConflict(ctx, id, models.StatusPending)
	}
	return nil
}

// missOrConflict explains why a status compare-and-set matched no row.
func (c *DatabaseClient) missOrConflict(ctx context.Context, id string, from models.DocumentStatus) error {
	var current models.DocumentStatus
	err := c.db.QueryRowContext(ctx, c.q(`SELECT status FROM documents WHERE id = ?`), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read document status: %w", err)
	}
	return fmt.Errorf("%w: document %s is %s, expected %s", core.ErrConflict, id, current, from)
}
