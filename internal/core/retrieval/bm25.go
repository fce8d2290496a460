// Package retrieval ranks a document's chunks against a question with Okapi BM25.
// The index is rebuilt from the given chunk set on every call; nothing is cached.
package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/markdave123-py/docchat/internal/models"
)

// Okapi BM25 parameters.
const (
	DefaultK1      = 1.5
	DefaultB       = 0.75
	DefaultEpsilon = 0.25
)

// Retriever scores chunks with Okapi BM25. The zero value is not usable; use New.
type Retriever struct {
	k1      float64
	b       float64
	epsilon float64 // floor for non-positive idf, as a fraction of the mean idf
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithK1 sets the term frequency saturation parameter.
func WithK1(k1 float64) Option {
	return func(r *Retriever) {
		if k1 >= 0 {
			r.k1 = k1
		}
	}
}

// WithB sets the length normalisation parameter.
func WithB(b float64) Option {
	return func(r *Retriever) {
		if b >= 0 && b <= 1 {
			r.b = b
		}
	}
}

// New creates a Retriever with the standard BM25 parameters.
func New(opts ...Option) *Retriever {
	r := &Retriever{k1: DefaultK1, b: DefaultB, epsilon: DefaultEpsilon}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tokenize lower-cases text and splits it on whitespace. No stemming, no stop words.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Retrieve returns the texts of the topK chunks most relevant to query, best first.
// Chunks with equal scores keep their input order. An empty chunk set gives an empty result.
func (r *Retriever) Retrieve(query string, chunks []models.DocumentChunk, topK int) []string {
	if len(chunks) == 0 || topK <= 0 {
		return []string{}
	}

	scores := r.Scores(query, chunks)

	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	out := make([]string, 0, topK)
	for _, idx := range order[:topK] {
		out = append(out, chunks[idx].Text)
	}
	return out
}

// Scores returns the BM25 score of every chunk against query, in chunk order.
func (r *Retriever) Scores(query string, chunks []models.DocumentChunk) []float64 {
	idx := r.buildIndex(chunks)
	scores := make([]float64, len(chunks))

	for _, term := range Tokenize(query) {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		for i, freqs := range idx.termFreqs {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			norm := 1 - r.b + r.b*float64(idx.docLens[i])/idx.avgDocLen
			scores[i] += idf * (tf * (r.k1 + 1)) / (tf + r.k1*norm)
		}
	}
	return scores
}

type index struct {
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

func (r *Retriever) buildIndex(chunks []models.DocumentChunk) *index {
	idx := &index{
		termFreqs: make([]map[string]int, len(chunks)),
		docLens:   make([]int, len(chunks)),
		idf:       make(map[string]float64),
	}

	// vocab keeps first-seen order so the idf sum is identical across calls.
	var vocab []string
	docFreq := make(map[string]int)
	total := 0

	for i, ch := range chunks {
		tokens := Tokenize(ch.Text)
		idx.docLens[i] = len(tokens)
		total += len(tokens)

		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			if freqs[tok] == 0 {
				if docFreq[tok] == 0 {
					vocab = append(vocab, tok)
				}
				docFreq[tok]++
			}
			freqs[tok]++
		}
		idx.termFreqs[i] = freqs
	}

	n := float64(len(chunks))
	idx.avgDocLen = float64(total) / n
	if idx.avgDocLen == 0 {
		idx.avgDocLen = 1
	}
	if len(vocab) == 0 {
		return idx
	}

	var idfSum float64
	var negative []string
	for _, term := range vocab {
		df := float64(docFreq[term])
		v := math.Log(n-df+0.5) - math.Log(df+0.5)
		idx.idf[term] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}

	floor := r.epsilon * idfSum / float64(len(vocab))
	for _, term := range negative {
		idx.idf[term] = floor
	}
	return idx
}

var defaultRetriever = New()

// Retrieve ranks chunks with the default BM25 parameters.
func Retrieve(query string, chunks []models.DocumentChunk, topK int) []string {
	return defaultRetriever.Retrieve(query, chunks, topK)
}
