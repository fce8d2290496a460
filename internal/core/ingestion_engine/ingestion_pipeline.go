package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/metrics"
	"github.com/markdave123-py/docchat/internal/models"
)

// FailureReason classifies why an ingestion ended in the error state.
type FailureReason string

const (
	ReasonUnsupportedContentType FailureReason = "unsupported_content_type"
	ReasonExtraction             FailureReason = "extraction"
	ReasonPersistence            FailureReason = "persistence"
	ReasonConflict               FailureReason = "conflict"
)

// failureWriteTimeout bounds the status write and cleanup after a failed ingestion,
// which run even when the caller's context is already cancelled.
const failureWriteTimeout = 30 * time.Second

// IngestFailure is the typed failure carried by an IngestResult.
type IngestFailure struct {
	Reason FailureReason
	Err    error
}

func (f *IngestFailure) Error() string {
	return f.Err.Error()
}

func (f *IngestFailure) Unwrap() error {
	return f.Err
}

// IngestResult reports the outcome of one ingestion.
type IngestResult struct {
	DocumentID string
	Status     models.DocumentStatus
	ChunkCount int
	Failure    *IngestFailure
}

// Err returns nil on success, otherwise an error matching core.ErrIngestionFailed
// and the underlying cause.
func (r IngestResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", core.ErrIngestionFailed, r.Failure)
}

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue.
func NewDocumentIngestor(store Store, obj core.ObjectClient, extractor core.TextExtractor, cfg *IngestConfig, logger zerolog.Logger) (*DocumentIngestor, error) {
	chunker, err := NewChunker(cfg.WindowSize, cfg.Overlap)
	if err != nil {
		return nil, err
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 64
	}
	return &DocumentIngestor{
		store:     store,
		obj:       obj,
		extractor: extractor,
		chunker:   chunker,
		cfg:       cfg,
		log:       logger.With().Str("component", "ingestor").Logger(),
		jobs:      make(chan string, queue),
		wait:      func() error { return nil },
	}, nil
}

// Ingest runs the whole pipeline for a pending document whose raw bytes are already
// in hand. doc is updated in place to mirror the stored state.
func (i *DocumentIngestor) Ingest(ctx context.Context, doc *models.Document, raw []byte) IngestResult {
	return i.ingest(ctx, doc, func(context.Context) ([]byte, error) { return raw, nil })
}

// ingest moves doc pending -> processing -> {ready | error}. load supplies the raw
// upload once the document is claimed.
func (i *DocumentIngestor) ingest(ctx context.Context, doc *models.Document, load func(context.Context) ([]byte, error)) IngestResult {
	start := time.Now()
	log := i.log.With().Str("document_id", doc.ID).Logger()

	if err := i.claim(ctx, doc); err != nil {
		reason := ReasonPersistence
		if errors.Is(err, core.ErrConflict) || errors.Is(err, core.ErrInvalidTransition) {
			reason = ReasonConflict
		}
		log.Warn().Err(err).Msg("could not claim document for ingestion")
		metrics.RecordIngestion(string(models.StatusError), string(reason), 0, time.Since(start).Seconds())
		return IngestResult{
			DocumentID: doc.ID,
			Status:     doc.Status,
			ChunkCount: doc.ChunkCount,
			Failure:    &IngestFailure{Reason: reason, Err: err},
		}
	}

	raw, err := load(ctx)
	if err != nil {
		return i.fail(ctx, doc, ReasonExtraction, fmt.Errorf("%w: read upload: %v", core.ErrExtraction, err), start)
	}

	text, err := i.extractor.ExtractText(ctx, raw, doc.ContentType)
	if err != nil {
		reason := ReasonExtraction
		if errors.Is(err, core.ErrUnsupportedContentType) {
			reason = ReasonUnsupportedContentType
		}
		return i.fail(ctx, doc, reason, err, start)
	}

	chunks := i.buildChunks(doc.ID, text)
	if err := i.store.CompleteIngestion(ctx, doc.ID, chunks); err != nil {
		return i.fail(ctx, doc, ReasonPersistence, fmt.Errorf("persist chunks: %w", err), start)
	}
	if err := doc.MarkReady(len(chunks)); err != nil {
		return i.fail(ctx, doc, ReasonPersistence, err, start)
	}

	dur := time.Since(start)
	metrics.RecordIngestion(string(models.StatusReady), "", len(chunks), dur.Seconds())
	log.Info().Int("chunks", len(chunks)).Dur("took", dur).Msg("document ingested")

	return IngestResult{DocumentID: doc.ID, Status: doc.Status, ChunkCount: doc.ChunkCount}
}

// claim performs pending -> processing both in memory and in the store.
func (i *DocumentIngestor) claim(ctx context.Context, doc *models.Document) error {
	prev := *doc
	if err := doc.BeginProcessing(); err != nil {
		return err
	}
	if err := i.store.TransitionDocument(ctx, doc.ID, models.StatusPending, models.StatusProcessing, nil); err != nil {
		*doc = prev
		return err
	}
	return nil
}

func (i *DocumentIngestor) buildChunks(documentID, text string) []models.DocumentChunk {
	texts := i.chunker.Split(text)
	now := time.Now().UTC()
	chunks := make([]models.DocumentChunk, len(texts))
	for idx, t := range texts {
		chunks[idx] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			ChunkIndex: idx,
			Text:       t,
			CreatedAt:  now,
		}
	}
	return chunks
}

// fail records the error status with a readable message and removes the raw upload.
// Chunk count stays at its previous value since no chunk batch was committed.
func (i *DocumentIngestor) fail(ctx context.Context, doc *models.Document, reason FailureReason, cause error, start time.Time) IngestResult {
	log := i.log.With().Str("document_id", doc.ID).Str("reason", string(reason)).Logger()
	msg := cause.Error()

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	if err := i.store.TransitionDocument(wctx, doc.ID, models.StatusProcessing, models.StatusError, &msg); err != nil {
		log.Error().Err(err).Msg("failed to record ingestion error")
	}
	if err := doc.MarkFailed(msg); err != nil {
		log.Error().Err(err).Msg("unexpected document state after failure")
	}

	if doc.StorageKey != "" {
		if err := i.obj.DeleteFile(wctx, doc.StorageKey); err != nil {
			log.Warn().Err(err).Str("key", doc.StorageKey).Msg("failed to delete upload after ingestion failure")
		}
	}

	metrics.RecordIngestion(string(models.StatusError), string(reason), 0, time.Since(start).Seconds())
	log.Warn().Err(cause).Msg("ingestion failed")

	return IngestResult{
		DocumentID: doc.ID,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount,
		Failure:    &IngestFailure{Reason: reason, Err: cause},
	}
}

// Start runs cfg.Workers goroutines reading from the jobs channel until ctx is done.
func (i *DocumentIngestor) Start(ctx context.Context) {
	workers := i.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= workers; w++ {
		w := w
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					i.log.Debug().Int("worker", w).Msg("worker shutting down")
					return nil
				case docID := <-i.jobs:
					i.log.Debug().Int("worker", w).Str("document_id", docID).Msg("processing document")
					if err := i.processOne(gctx, docID); err != nil {
						i.log.Error().Err(err).Str("document_id", docID).Msg("error processing document")
					}
				}
			}
		})
	}
	i.wait = g.Wait
}

// Wait blocks until every worker started by Start has returned.
func (i *DocumentIngestor) Wait() error {
	return i.wait()
}

// Enqueue schedules a document ID for ingestion.
// If the queue is full, this call blocks until space frees up or ctx is done.
func (i *DocumentIngestor) Enqueue(ctx context.Context, docID string) error {
	select {
	case i.jobs <- docID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", docID, ctx.Err())
	}
}

// processOne loads a queued document and its upload and runs the pipeline.
func (i *DocumentIngestor) processOne(ctx context.Context, docID string) error {
	doc, err := i.store.GetDocumentByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	res := i.ingest(ctx, doc, func(ctx context.Context) ([]byte, error) {
		return i.obj.GetFile(ctx, doc.StorageKey)
	})
	return res.Err()
}
