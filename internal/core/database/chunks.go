package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/markdave123-py/docchat/internal/models"
)

// CompleteIngestion replaces the document's chunk set and moves it processing -> ready
// with the new chunk count, all in one transaction.
func (c *DatabaseClient) CompleteIngestion(ctx context.Context, documentID string, chunks []models.DocumentChunk) (err error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, c.q(`
		UPDATE documents
		SET status = ?, chunk_count = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`), models.StatusReady, len(chunks), now, documentID, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark document ready: %w", err)
	}
	if n, rerr := res.RowsAffected(); rerr != nil {
		return fmt.Errorf("mark document ready: %w", rerr)
	} else if n == 0 {
		_ = tx.Rollback()
		return c.missOrConflict(ctx, documentID, models.StatusProcessing)
	}

	if _, err = tx.ExecContext(ctx, c.q(`DELETE FROM document_chunks WHERE document_id = ?`), documentID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	if len(chunks) > 0 {
		stmt, perr := tx.PrepareContext(ctx, c.q(`
			INSERT INTO document_chunks (id, document_id, chunk_index, text, created_at)
			VALUES (?, ?, ?, ?, ?)
		`))
		if perr != nil {
			return fmt.Errorf("prepare chunk insert: %w", perr)
		}
		defer stmt.Close()

		for i := range chunks {
			ch := &chunks[i]
			if ch.DocumentID != documentID {
				return fmt.Errorf("chunk %d belongs to document %s", ch.ChunkIndex, ch.DocumentID)
			}
			created := ch.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err = stmt.ExecContext(ctx, ch.ID, ch.DocumentID, ch.ChunkIndex, ch.Text, created); err != nil {
				return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ingestion: %w", err)
	}
	return nil
}

// GetChunksByDocument returns the chunk set ordered by chunk_index.
func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	q := c.q(`
		SELECT id, document_id, chunk_index, text, created_at
		FROM document_chunks
		WHERE document_id = ?
		ORDER BY chunk_index ASC
	`)
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	out := []models.DocumentChunk{}
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Text, &ch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
