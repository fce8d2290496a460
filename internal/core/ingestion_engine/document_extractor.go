package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

var _ core.TextExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// SupportedContentTypes lists the media types ExtractText can parse.
func (e *DocconvExtractor) SupportedContentTypes() []string {
	return append([]string(nil), config.SupportedContentTypes...)
}

// ExtractText returns the full text of data. Plain text is decoded as UTF-8 with invalid
// sequences replaced; PDF and DOCX go through docconv.
func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ct := config.NormalizeContentType(contentType)
	switch ct {
	case config.ContentTypePlainText:
		if utf8.Valid(data) {
			return string(data), nil
		}
		return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil

	case config.ContentTypePDF, config.ContentTypeDocx:
		if len(data) == 0 {
			return "", fmt.Errorf("%w: empty %s payload", core.ErrExtraction, ct)
		}
		res, err := docconv.Convert(bytes.NewReader(data), ct, e.useReadability)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", core.ErrExtraction, ct, err)
		}
		if res.Error != "" {
			return "", fmt.Errorf("%w: %s: %s", core.ErrExtraction, ct, res.Error)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return res.Body, nil

	default:
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedContentType, contentType)
	}
}
