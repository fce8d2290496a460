package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a document status change is not on the lifecycle path.
var ErrInvalidTransition = errors.New("invalid status transition")

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

// Valid reports whether s is one of the four known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusError:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusError
}

// CanTransitionTo is the single allow-list for the document lifecycle:
// pending -> processing -> {ready | error}.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusReady || next == StatusError
	}
	return false
}

// Document represents a user-uploaded document and its ingestion state.
type Document struct {
	ID           string         `db:"id" json:"id"`
	FileName     string         `db:"file_name" json:"filename"`
	ContentType  string         `db:"content_type" json:"content_type"`
	StorageKey   string         `db:"storage_key" json:"-"`
	SizeBytes    int64          `db:"size_bytes" json:"size_bytes"`
	Status       DocumentStatus `db:"status" json:"status"`
	ErrorMessage *string        `db:"error_message" json:"error_message"` // set iff Status == error
	ChunkCount   int            `db:"chunk_count" json:"chunk_count"`     // authoritative once ready
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

func (d *Document) transition(next DocumentStatus) error {
	if !d.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	d.Status = next
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// BeginProcessing moves a pending document to processing.
func (d *Document) BeginProcessing() error {
	return d.transition(StatusProcessing)
}

// MarkReady moves a processing document to ready with its final chunk count.
func (d *Document) MarkReady(chunkCount int) error {
	if err := d.transition(StatusReady); err != nil {
		return err
	}
	d.ChunkCount = chunkCount
	d.ErrorMessage = nil
	return nil
}

// MarkFailed moves a processing document to error. ChunkCount is left untouched.
func (d *Document) MarkFailed(message string) error {
	if err := d.transition(StatusError); err != nil {
		return err
	}
	d.ErrorMessage = &message
	return nil
}

// DocumentChunk represents one text passage of a document.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"` // dense, zero-based
	Text       string    `db:"text" json:"text"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Conversation represents one chat session over a single document.
type Conversation struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	Messages   []Message `json:"messages"`
}

// MessageRole identifies the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message represents an individual chat message (user or assistant).
type Message struct {
	ID             string      `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"-"`
	Role           MessageRole `db:"role" json:"role"`
	Content        string      `db:"content" json:"content"`
	Position       int         `db:"position" json:"-"` // ordering key within the conversation
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}
