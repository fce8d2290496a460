package ingestion_engine

import (
	"fmt"
	"strings"
)

// Default chunk geometry, in characters.
const (
	DefaultWindowSize = 500
	DefaultOverlap    = 50
)

// Chunker splits text into fixed-size windows that overlap by a fixed number of characters.
//
// windowSize: characters per chunk.
// overlap:    characters shared by consecutive chunks; always < windowSize.
type Chunker struct {
	windowSize int
	overlap    int
}

// NewChunker validates the geometry once so Split itself cannot fail.
func NewChunker(windowSize, overlap int) (*Chunker, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("chunk window size must be positive, got %d", windowSize)
	}
	if overlap < 0 || overlap >= windowSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", windowSize, overlap)
	}
	return &Chunker{windowSize: windowSize, overlap: overlap}, nil
}

// Stride is the distance between the starts of consecutive windows.
func (c *Chunker) Stride() int {
	return c.windowSize - c.overlap
}

// Windows returns every window of text before whitespace-only windows are dropped.
// Offsets are in runes, so multi-byte characters are never split. The last window is the
// first one that reaches the end of text; text of at most windowSize runes is one window.
// For L > overlap runes that is ceil((L-overlap) / stride) windows.
func (c *Chunker) Windows(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	stride := c.Stride()
	out := make([]string, 0, len(runes)/stride+1)
	for start := 0; ; start += stride {
		end := min(start+c.windowSize, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// Split returns the retained chunk texts in emission order. Whitespace-only windows are
// dropped, and the position of a text in the result is its dense chunk index.
func (c *Chunker) Split(text string) []string {
	windows := c.Windows(text)
	kept := windows[:0]
	for _, w := range windows {
		if strings.TrimSpace(w) == "" {
			continue
		}
		kept = append(kept, w)
	}
	return kept
}
