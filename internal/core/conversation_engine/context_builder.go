package conversation_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/metrics"
	"github.com/markdave123-py/docchat/internal/models"
)

// Store is the slice of conversation persistence the builder reads and writes.
type Store interface {
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	AppendTurn(ctx context.Context, conversationID string, question, answer *models.Message) error
}

// Ranker picks the passages most relevant to a question.
type Ranker interface {
	Retrieve(query string, chunks []models.DocumentChunk, topK int) []string
}

// BuilderConfig bounds the context handed to the generation client.
//
// HistoryLimit: stored messages included, newest last. The question in flight is not counted.
// TopK:         passages retrieved per question.
// Timeout:      upper bound on a single generation call.
type BuilderConfig struct {
	HistoryLimit int
	TopK         int
	Timeout      time.Duration
}

// Turn is the user question and assistant answer committed together.
type Turn struct {
	Question models.Message `json:"question"`
	Answer   models.Message `json:"answer"`
}

// ContextBuilder answers questions within a conversation and commits each turn atomically.
type ContextBuilder struct {
	store  Store
	ranker Ranker
	gen    core.GenerationClient
	cfg    BuilderConfig
	seq    *Sequencer
	log    zerolog.Logger
}

func NewContextBuilder(store Store, ranker Ranker, gen core.GenerationClient, cfg BuilderConfig, logger zerolog.Logger) *ContextBuilder {
	return &ContextBuilder{
		store:  store,
		ranker: ranker,
		gen:    gen,
		cfg:    cfg,
		seq:    NewSequencer(),
		log:    logger.With().Str("component", "context_builder").Logger(),
	}
}

// Answer generates a reply to question from the document chunks and the recent history,
// then stores the question and the reply as one turn. Sends on the same conversation are
// serialized. When generation fails nothing is stored and the error wraps core.ErrGeneration.
func (b *ContextBuilder) Answer(ctx context.Context, conv *models.Conversation, question string, chunks []models.DocumentChunk) (*Turn, error) {
	release, err := b.seq.Acquire(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("wait for conversation %s: %w", conv.ID, err)
	}
	defer release()

	log := b.log.With().Str("conversation_id", conv.ID).Logger()

	stored, err := b.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := WindowHistory(stored, b.cfg.HistoryLimit)

	rankStart := time.Now()
	passages := b.ranker.Retrieve(question, chunks, b.cfg.TopK)
	metrics.RecordRetrieval(time.Since(rankStart).Seconds())

	askedAt := time.Now().UTC()
	if n := len(stored); n > 0 && askedAt.Before(stored[n-1].CreatedAt) {
		askedAt = stored[n-1].CreatedAt
	}

	answer, err := b.generate(ctx, core.GenerationRequest{
		SystemPrompt: BuildSystemPrompt(passages),
		History:      history,
		Question:     question,
	})
	if err != nil {
		log.Warn().Err(err).Msg("generation failed, turn discarded")
		return nil, err
	}

	answeredAt := time.Now().UTC()
	if answeredAt.Before(askedAt) {
		answeredAt = askedAt
	}

	turn := &Turn{
		Question: models.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           models.RoleUser,
			Content:        question,
			CreatedAt:      askedAt,
		},
		Answer: models.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           models.RoleAssistant,
			Content:        answer,
			CreatedAt:      answeredAt,
		},
	}
	if err := b.store.AppendTurn(ctx, conv.ID, &turn.Question, &turn.Answer); err != nil {
		return nil, fmt.Errorf("store turn: %w", err)
	}

	log.Debug().
		Int("history", len(history)).
		Int("passages", len(passages)).
		Msg("turn stored")
	return turn, nil
}

func (b *ContextBuilder) generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	answer, err := b.gen.Generate(ctx, req)
	switch {
	case err == nil && strings.TrimSpace(answer) == "":
		metrics.RecordGeneration("error")
		return "", fmt.Errorf("%w: empty answer", core.ErrGeneration)
	case err == nil:
		metrics.RecordGeneration("ok")
		return answer, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.RecordGeneration("timeout")
		return "", fmt.Errorf("%w: timed out after %s", core.ErrGeneration, b.cfg.Timeout)
	case errors.Is(err, core.ErrGeneration):
		metrics.RecordGeneration("error")
		return "", err
	default:
		metrics.RecordGeneration("error")
		return "", fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}
}
