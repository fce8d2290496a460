package objectclient

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

// NewObjectClient picks the raw upload backend named by STORAGE_BACKEND.
// It's abstract so S3, MinIO or a local directory can be swapped via config.
func NewObjectClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (core.ObjectClient, error) {
	switch cfg.StorageBackend {
	case "s3":
		c, err := NewS3Client(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "local", "":
		c, err := NewLocalClient(cfg.UploadDir, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}
