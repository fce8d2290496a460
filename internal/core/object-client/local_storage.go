package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/core"
)

// LocalClient stores raw uploads under a directory on the local filesystem.
type LocalClient struct {
	basePath string
	log      zerolog.Logger
}

var _ core.ObjectClient = (*LocalClient)(nil)

func NewLocalClient(basePath string, log zerolog.Logger) (*LocalClient, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("UPLOAD_DIR not set")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	logger.Info().Str("path", basePath).Msg("local storage initialized")
	return &LocalClient{basePath: basePath, log: logger}, nil
}

// resolve maps a slash-separated key to a path inside basePath.
func (l *LocalClient) resolve(key string) (string, error) {
	full := filepath.Join(l.basePath, filepath.FromSlash(key))
	rel, err := filepath.Rel(l.basePath, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: invalid object key %q", core.ErrInvalidInput, key)
	}
	return full, nil
}

// UploadFile writes data to basePath/key and returns the file path.
func (l *LocalClient) UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fullPath, err := l.resolve(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	written, err := io.Copy(file, data)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	l.log.Debug().
		Str("key", key).
		Str("content_type", contentType).
		Int64("bytes", written).
		Msg("file uploaded to local storage")

	return fullPath, nil
}

func (l *LocalClient) GetFile(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return b, nil
}

// DeleteFile removes basePath/key. Deleting a missing file is not an error.
func (l *LocalClient) DeleteFile(ctx context.Context, key string) error {
	fullPath, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	l.log.Debug().Str("key", key).Msg("file deleted from local storage")
	return nil
}
