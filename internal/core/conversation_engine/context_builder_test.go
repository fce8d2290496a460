package conversation_engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/retrieval"
	"github.com/markdave123-py/docchat/internal/models"
)

type memStore struct {
	mu       sync.Mutex
	messages map[string][]models.Message
}

func newMemStore() *memStore {
	return &memStore{messages: map[string][]models.Message{}}
}

func (s *memStore) ListMessages(_ context.Context, id string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages[id]...), nil
}

func (s *memStore) AppendTurn(_ context.Context, id string, q, a *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.messages[id])
	q.Position, a.Position = n, n+1
	s.messages[id] = append(s.messages[id], *q, *a)
	return nil
}

func (s *memStore) seed(id string, n int) {
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		s.messages[id] = append(s.messages[id], models.Message{
			ID: fmt.Sprintf("m%d", i), ConversationID: id, Role: role,
			Content: fmt.Sprintf("message %d", i), Position: i,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
}

type stubGen struct {
	mu       sync.Mutex
	requests []core.GenerationRequest
	answer   string
	err      error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (g *stubGen) Generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		cur := g.maxSeen.Load()
		if n <= cur || g.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	if g.answer != "" {
		return g.answer, nil
	}
	return "answer to " + req.Question, nil
}

func newBuilder(store Store, gen core.GenerationClient, cfg BuilderConfig) *ContextBuilder {
	return NewContextBuilder(store, retrieval.New(), gen, cfg, zerolog.Nop())
}

var testConv = &models.Conversation{ID: "c1", DocumentID: "d1"}

func docChunks(texts ...string) []models.DocumentChunk {
	out := make([]models.DocumentChunk, len(texts))
	for i, t := range texts {
		out[i] = models.DocumentChunk{DocumentID: "d1", ChunkIndex: i, Text: t}
	}
	return out
}

func TestAnswer_HistoryWindowExcludesQuestion(t *testing.T) {
	store := newMemStore()
	store.seed("c1", 5)
	gen := &stubGen{}
	b := newBuilder(store, gen, BuilderConfig{HistoryLimit: 2, TopK: 3, Timeout: time.Second})

	_, err := b.Answer(context.Background(), testConv, "what now?", nil)
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	require.Len(t, req.History, 2)
	assert.Equal(t, "message 3", req.History[0].Content)
	assert.Equal(t, "message 4", req.History[1].Content)
	assert.Equal(t, "what now?", req.Question)
}

func TestAnswer_PersistsOrderedTurn(t *testing.T) {
	store := newMemStore()
	store.seed("c1", 2)
	b := newBuilder(store, &stubGen{}, BuilderConfig{HistoryLimit: 10, TopK: 3, Timeout: time.Second})

	turn, err := b.Answer(context.Background(), testConv, "hello?", nil)
	require.NoError(t, err)
	assert.Equal(t, "answer to hello?", turn.Answer.Content)

	msgs, _ := store.ListMessages(context.Background(), "c1")
	require.Len(t, msgs, 4)
	assert.Equal(t, models.RoleUser, msgs[2].Role)
	assert.Equal(t, "hello?", msgs[2].Content)
	assert.Equal(t, models.RoleAssistant, msgs[3].Role)
	assert.False(t, msgs[3].CreatedAt.Before(msgs[2].CreatedAt))
	assert.False(t, msgs[2].CreatedAt.Before(msgs[1].CreatedAt))
}

func TestAnswer_GenerationFailurePersistsNothing(t *testing.T) {
	store := newMemStore()
	store.seed("c1", 3)
	b := newBuilder(store, &stubGen{err: errors.New("quota exceeded")}, BuilderConfig{HistoryLimit: 10, TopK: 3, Timeout: time.Second})

	_, err := b.Answer(context.Background(), testConv, "hello?", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGeneration)
	assert.Contains(t, err.Error(), "quota exceeded")

	msgs, _ := store.ListMessages(context.Background(), "c1")
	assert.Len(t, msgs, 3)
}

func TestAnswer_TimeoutIsGenerationError(t *testing.T) {
	store := newMemStore()
	b := newBuilder(store, &stubGen{delay: time.Second}, BuilderConfig{HistoryLimit: 10, TopK: 3, Timeout: 20 * time.Millisecond})

	_, err := b.Answer(context.Background(), testConv, "slow?", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGeneration)
	assert.Contains(t, err.Error(), "timed out")

	msgs, _ := store.ListMessages(context.Background(), "c1")
	assert.Empty(t, msgs)
}

func TestAnswer_EmptyAnswerIsGenerationError(t *testing.T) {
	store := newMemStore()
	b := newBuilder(store, &stubGen{answer: "   "}, BuilderConfig{HistoryLimit: 10, TopK: 3, Timeout: time.Second})

	_, err := b.Answer(context.Background(), testConv, "hi", nil)
	assert.ErrorIs(t, err, core.ErrGeneration)
	msgs, _ := store.ListMessages(context.Background(), "c1")
	assert.Empty(t, msgs)
}

func TestAnswer_SystemPromptCarriesPassages(t *testing.T) {
	gen := &stubGen{}
	b := newBuilder(newMemStore(), gen, BuilderConfig{HistoryLimit: 10, TopK: 1, Timeout: time.Second})

	chunks := docChunks("the cat sat", "the zebra grazed", "the dog slept")
	_, err := b.Answer(context.Background(), testConv, "zebra", chunks)
	require.NoError(t, err)
	assert.Contains(t, gen.requests[0].SystemPrompt, "the zebra grazed")
	assert.NotContains(t, gen.requests[0].SystemPrompt, "the cat sat")

	_, err = b.Answer(context.Background(), testConv, "anything", nil)
	require.NoError(t, err)
	assert.Contains(t, gen.requests[1].SystemPrompt, NoContextFallback)
}

func TestAnswer_SerializesPerConversation(t *testing.T) {
	store := newMemStore()
	gen := &stubGen{delay: 20 * time.Millisecond}
	b := newBuilder(store, gen, BuilderConfig{HistoryLimit: 100, TopK: 3, Timeout: time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Answer(context.Background(), testConv, fmt.Sprintf("q%d", i), nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), gen.maxSeen.Load())

	msgs, _ := store.ListMessages(context.Background(), "c1")
	require.Len(t, msgs, 10)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, models.RoleUser, msgs[i].Role)
		assert.Equal(t, models.RoleAssistant, msgs[i+1].Role)
		assert.Equal(t, "answer to "+msgs[i].Content, msgs[i+1].Content)
	}
	// Each request saw every turn committed before it.
	for i, req := range gen.requests {
		assert.Len(t, req.History, 2*i)
	}
	assert.Equal(t, 0, b.seq.Len())
}

func TestWindowHistory(t *testing.T) {
	msgs := make([]models.Message, 5)
	for i := range msgs {
		msgs[i].Content = fmt.Sprint(i)
	}
	assert.Len(t, WindowHistory(msgs, 10), 5)
	assert.Empty(t, WindowHistory(msgs, 0))
	got := WindowHistory(msgs, 2)
	assert.Equal(t, "3", got[0].Content)
	assert.Equal(t, "4", got[1].Content)
	assert.Empty(t, WindowHistory(nil, 3))
}

func TestBuildSystemPrompt(t *testing.T) {
	p := BuildSystemPrompt([]string{"one", "two"})
	assert.Contains(t, p, "one"+PassageSeparator+"two")
	assert.Contains(t, p, "strictly on the provided document context")
	assert.Contains(t, BuildSystemPrompt(nil), NoContextFallback)
}

func TestSequencer_AcquireHonoursContext(t *testing.T) {
	s := NewSequencer()
	release, err := s.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := s.Acquire(context.Background(), "other")
	require.NoError(t, err)
	other()

	release()
	assert.Equal(t, 0, s.Len())
}
