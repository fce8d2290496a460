package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
	"github.com/markdave123-py/docchat/internal/metrics"
	"github.com/markdave123-py/docchat/internal/models"
)

type DocumentService struct {
	db       core.DbClient
	storage  core.ObjectClient
	ingestor ingestion_engine.Ingestor
	cfg      *config.Config
	log      zerolog.Logger
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, ing ingestion_engine.Ingestor, cfg *config.Config, log zerolog.Logger) *DocumentService {
	return &DocumentService{
		db:       db,
		storage:  storage,
		ingestor: ing,
		cfg:      cfg,
		log:      log.With().Str("component", "document_service").Logger(),
	}
}

// ResolveContentType returns the media type an upload is gated on. A missing or generic
// declared type falls back to sniffing the content.
func ResolveContentType(declared string, data []byte) string {
	ct := config.NormalizeContentType(declared)
	if ct == "" || ct == "application/octet-stream" {
		ct = config.NormalizeContentType(mimetype.Detect(data).String())
	}
	return ct
}

// CheckContentType applies the allowed content type gate.
func (s *DocumentService) CheckContentType(contentType string) error {
	if s.cfg.IsAllowedContentType(contentType) {
		return nil
	}
	allowed := append([]string(nil), s.cfg.AllowedContentTypes...)
	sort.Strings(allowed)
	return fmt.Errorf("%w: unsupported file type '%s'. Allowed: %s",
		core.ErrUnsupportedMediaType, contentType, strings.Join(allowed, ", "))
}

// Upload gates, stores and registers a new document, then ingests it. In async mode the
// document is queued and returned while still pending; if it cannot be queued the document
// and its upload are removed again. A failed synchronous ingestion
// returns the document in error state together with an error matching core.ErrIngestionFailed.
func (s *DocumentService) Upload(ctx context.Context, filename, declaredType string, data []byte) (*models.Document, error) {
	contentType := ResolveContentType(declaredType, data)
	if err := s.CheckContentType(contentType); err != nil {
		metrics.RecordUpload(contentType, "unsupported")
		return nil, err
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		metrics.RecordUpload(contentType, "too_large")
		return nil, fmt.Errorf("%w: file exceeds maximum size of %d bytes", core.ErrPayloadTooLarge, s.cfg.MaxUploadBytes)
	}

	name := cleanFilename(filename)
	docID := uuid.NewString()
	key := s.objectKey(docID, name)

	if _, err := s.storage.UploadFile(ctx, key, bytes.NewReader(data), contentType); err != nil {
		metrics.RecordUpload(contentType, "storage_error")
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := &models.Document{
		ID:          docID,
		FileName:    name,
		ContentType: contentType,
		StorageKey:  key,
		SizeBytes:   int64(len(data)),
		Status:      models.StatusPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		if derr := s.storage.DeleteFile(context.WithoutCancel(ctx), key); derr != nil {
			s.log.Warn().Err(derr).Str("key", key).Msg("failed to remove orphaned upload")
		}
		metrics.RecordUpload(contentType, "db_error")
		return nil, fmt.Errorf("create document: %w", err)
	}
	metrics.RecordUpload(contentType, "accepted")

	s.log.Info().
		Str("document_id", doc.ID).
		Str("filename", name).
		Str("content_type", contentType).
		Int64("bytes", doc.SizeBytes).
		Msg("document uploaded")

	if s.cfg.IngestAsync {
		if err := s.ingestor.Enqueue(ctx, doc.ID); err != nil {
			s.withdraw(ctx, doc)
			return nil, fmt.Errorf("queue ingestion: %w", err)
		}
		return doc, nil
	}

	res := s.ingestor.Ingest(ctx, doc, data)
	if err := res.Err(); err != nil {
		return doc, err
	}
	return doc, nil
}

// withdraw removes a registered document that never reached the ingestion queue,
// together with its stored upload.
func (s *DocumentService) withdraw(ctx context.Context, doc *models.Document) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	log := s.log.With().Str("document_id", doc.ID).Logger()
	if err := s.db.DeletePendingDocument(ctx, doc.ID); err != nil {
		log.Error().Err(err).Msg("failed to remove unqueued document")
		return
	}
	if err := s.storage.DeleteFile(ctx, doc.StorageKey); err != nil {
		log.Warn().Err(err).Str("key", doc.StorageKey).Msg("failed to remove unqueued upload")
	}
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context) ([]models.Document, error) {
	return s.db.ListDocuments(ctx)
}

// IngestionMessage is the readable reason recorded on a failed document.
func IngestionMessage(doc *models.Document, err error) string {
	if doc != nil && doc.ErrorMessage != nil {
		return *doc.ErrorMessage
	}
	var f *ingestion_engine.IngestFailure
	if errors.As(err, &f) {
		return f.Error()
	}
	return err.Error()
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "unknown"
	}
	return name
}

// objectKey creates a consistent storage key layout.
func (s *DocumentService) objectKey(docID, filename string) string {
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("documents", docID, filename)
}
