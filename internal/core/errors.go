package core

import (
	"errors"

	"github.com/markdave123-py/docchat/internal/models"
)

// Errors shared across layers. Handlers map them to HTTP status codes.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrPayloadTooLarge      = errors.New("payload too large")

	// Ingestion-time errors, recorded on the document rather than raised to unrelated callers.
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrExtraction             = errors.New("text extraction failed")
	ErrIngestionFailed        = errors.New("ingestion failed")

	// ErrGeneration wraps any failure of the generation collaborator, including timeouts.
	ErrGeneration = errors.New("generation failed")

	ErrInvalidTransition = models.ErrInvalidTransition
)
