package conversation_engine

import (
	"context"
	"sync"
)

// Sequencer serializes work per key. Entries are reference counted and removed
// once no caller holds or waits on them.
type Sequencer struct {
	mu      sync.Mutex
	entries map[string]*seqEntry
}

type seqEntry struct {
	sem  chan struct{}
	refs int
}

func NewSequencer() *Sequencer {
	return &Sequencer{entries: make(map[string]*seqEntry)}
}

// Acquire blocks until key is free or ctx is done. The returned release must be called exactly once.
func (s *Sequencer) Acquire(ctx context.Context, key string) (release func(), err error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &seqEntry{sem: make(chan struct{}, 1)}
		s.entries[key] = e
	}
	e.refs++
	s.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			s.drop(key, e)
		}, nil
	case <-ctx.Done():
		s.drop(key, e)
		return nil, ctx.Err()
	}
}

func (s *Sequencer) drop(key string, e *seqEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(s.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
