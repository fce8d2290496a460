package ingestion_engine

import (
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/core"
)

// IngestConfig tunes the ingestion pipeline.
//
// WindowSize: characters per chunk (e.g., 500).
// Overlap:    characters shared by consecutive chunks (e.g., 50).
// Workers:    background workers used when ingestion is queued.
// QueueSize:  capacity of the in-memory job queue.
type IngestConfig struct {
	WindowSize int
	Overlap    int
	Workers    int
	QueueSize  int
}

// Store is the persistence the pipeline needs: it is the only writer of document
// status, error message, chunk count and chunk set.
type Store interface {
	core.DocumentStore
	core.ChunkStore
}

// DocumentIngestor orchestrates ingestion:
//
// store:     persistence for document status and chunks.
// obj:       raw upload storage; read by queued jobs, cleaned up on failure.
// extractor: text extraction by content type.
// chunker:   fixed-window splitter.
// jobs:      in-memory queue of document IDs to process.
type DocumentIngestor struct {
	store     Store
	obj       core.ObjectClient
	extractor core.TextExtractor
	chunker   *Chunker
	cfg       *IngestConfig
	log       zerolog.Logger
	jobs      chan string
	wait      func() error
}

// DocconvExtractor implements core.TextExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
}
