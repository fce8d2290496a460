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

func (c *DatabaseClient) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	q := c.q(`INSERT INTO conversations (id, document_id, created_at) VALUES (?, ?, ?)`)
	if _, err := c.db.ExecContext(ctx, q, conv.ID, conv.DocumentID, conv.CreatedAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	return nil
}

// GetConversation returns the conversation with its messages, oldest first.
func (c *DatabaseClient) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	q := c.q(`SELECT id, document_id, created_at FROM conversations WHERE id = ?`)
	err := c.db.QueryRowContext(ctx, q, id).Scan(&conv.ID, &conv.DocumentID, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	conv.Messages, err = c.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListMessages returns the stored messages of a conversation in position order.
func (c *DatabaseClient) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	q := c.q(`
		SELECT id, conversation_id, role, content, position, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY position ASC
	`)
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Position, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendTurn stores question then answer at the next two positions in one transaction.
// Positions and conversation IDs are written back to the messages.
func (c *DatabaseClient) AppendTurn(ctx context.Context, conversationID string, question, answer *models.Message) (err error) {
	if question == nil || answer == nil {
		return errors.New("nil message in turn")
	}
	if question.Role != models.RoleUser || answer.Role != models.RoleAssistant {
		return fmt.Errorf("%w: a turn is a user message followed by an assistant message", core.ErrInvalidInput)
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.QueryRowContext(ctx, c.q(`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = ?)`), conversationID).Scan(&exists); err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if !exists {
		return fmt.Errorf("conversation %s: %w", conversationID, core.ErrNotFound)
	}

	var last int
	if err = tx.QueryRowContext(ctx, c.q(`SELECT COALESCE(MAX(position), -1) FROM messages WHERE conversation_id = ?`), conversationID).Scan(&last); err != nil {
		return fmt.Errorf("read last position: %w", err)
	}

	insert := c.q(`
		INSERT INTO messages (id, conversation_id, role, content, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	for i, m := range []*models.Message{question, answer} {
		m.ConversationID = conversationID
		m.Position = last + 1 + i
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		if _, err = tx.ExecContext(ctx, insert, m.ID, m.ConversationID, m.Role, m.Content, m.Position, m.CreatedAt); err != nil {
			return fmt.Errorf("insert %s message: %w", m.Role, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}

// DeleteConversation removes the conversation and all of its messages.
func (c *DatabaseClient) DeleteConversation(ctx context.Context, id string) (err error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, c.q(`DELETE FROM messages WHERE conversation_id = ?`), id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, c.q(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, core.ErrNotFound)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}
