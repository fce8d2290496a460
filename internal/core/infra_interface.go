package core

import (
	"context"
	"io"

	"github.com/markdave123-py/docchat/internal/models"
)

// DocumentStore persists documents and drives their status column.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)

	// TransitionDocument moves a document from one status to another only if it is
	// currently in `from`. errMsg is stored when `to` is error.
	TransitionDocument(ctx context.Context, id string, from, to models.DocumentStatus, errMsg *string) error

	// DeletePendingDocument removes a document that no ingestion run has claimed yet.
	DeletePendingDocument(ctx context.Context, id string) error
}

// ChunkStore persists the chunk set of a document.
type ChunkStore interface {
	// CompleteIngestion writes the whole chunk batch, the chunk count and the ready
	// status in one transaction.
	CompleteIngestion(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
}

// ConversationStore persists conversations and their messages.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	// GetConversation returns the conversation with its messages in stored order.
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	// AppendTurn stores the user question and the assistant answer atomically.
	AppendTurn(ctx context.Context, conversationID string, question, answer *models.Message) error
	DeleteConversation(ctx context.Context, id string) error
}

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/SQLite so higher layers never depend on a specific DB.
type DbClient interface {
	DocumentStore
	ChunkStore
	ConversationStore

	Ping(ctx context.Context) error
	Close() error
}

// ObjectClient defines interactions with S3 or local disk for raw uploads.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (location string, err error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	DeleteFile(ctx context.Context, key string) error
}
