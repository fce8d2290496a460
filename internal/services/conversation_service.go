package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/conversation_engine"
	"github.com/markdave123-py/docchat/internal/models"
)

type ConversationService struct {
	db      core.DbClient
	builder *conversation_engine.ContextBuilder
	log     zerolog.Logger
}

func NewConversationService(db core.DbClient, builder *conversation_engine.ContextBuilder, log zerolog.Logger) *ConversationService {
	return &ConversationService{
		db:      db,
		builder: builder,
		log:     log.With().Str("component", "conversation_service").Logger(),
	}
}

// readyDocument loads the document and requires it to be ready for chat.
func (s *ConversationService) readyDocument(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.StatusReady {
		return nil, fmt.Errorf("%w: document is not ready for chat (status: %s)", core.ErrConflict, doc.Status)
	}
	return doc, nil
}

// Create starts a conversation over a ready document.
func (s *ConversationService) Create(ctx context.Context, documentID string) (*models.Conversation, error) {
	if _, err := s.readyDocument(ctx, documentID); err != nil {
		return nil, err
	}

	conv := &models.Conversation{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Messages:   []models.Message{},
	}
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.log.Info().Str("conversation_id", conv.ID).Str("document_id", documentID).Msg("conversation created")
	return conv, nil
}

func (s *ConversationService) Get(ctx context.Context, id string) (*models.Conversation, error) {
	return s.db.GetConversation(ctx, id)
}

// Send answers question within the conversation and returns the stored turn.
func (s *ConversationService) Send(ctx context.Context, conversationID, question string) (*conversation_engine.Turn, error) {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.readyDocument(ctx, conv.DocumentID); err != nil {
		return nil, err
	}

	chunks, err := s.db.GetChunksByDocument(ctx, conv.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	return s.builder.Answer(ctx, conv, question, chunks)
}

func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if err := s.db.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("conversation_id", id).Msg("conversation deleted")
	return nil
}
