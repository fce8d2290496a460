package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/docchat/internal/models"
)

type Ingestor interface {
	Ingest(ctx context.Context, doc *models.Document, raw []byte) IngestResult
	Start(ctx context.Context)
	Enqueue(ctx context.Context, docID string) error
	Wait() error
}
