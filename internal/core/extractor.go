package core

import "context"

// TextExtractor defines the interface for extracting text from the supported document types.
type TextExtractor interface {
	// ExtractText returns the raw text of data. The contentType picks the parsing strategy.
	// It fails with ErrUnsupportedContentType or ErrExtraction.
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)

	SupportedContentTypes() []string
}
