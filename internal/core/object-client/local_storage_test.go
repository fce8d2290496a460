package objectclient

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

func TestLocalClient_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewLocalClient(dir, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := c.UploadFile(ctx, "documents/abc/notes.txt", strings.NewReader("hello"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "documents", "abc", "notes.txt"), loc)

	got, err := c.GetFile(ctx, "documents/abc/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, c.DeleteFile(ctx, "documents/abc/notes.txt"))
	_, err = os.Stat(loc)
	assert.True(t, os.IsNotExist(err))

	_, err = c.GetFile(ctx, "documents/abc/notes.txt")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Deleting twice is fine.
	assert.NoError(t, c.DeleteFile(ctx, "documents/abc/notes.txt"))
}

func TestLocalClient_RejectsEscapingKeys(t *testing.T) {
	c, err := NewLocalClient(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = c.UploadFile(context.Background(), "../outside.txt", strings.NewReader("x"), "text/plain")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = c.GetFile(context.Background(), "a/../../etc/passwd")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestNewLocalClient_RequiresPath(t *testing.T) {
	_, err := NewLocalClient("  ", zerolog.Nop())
	assert.Error(t, err)
}

func TestNewObjectClient(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	oc, err := NewObjectClient(context.Background(), &config.Config{StorageBackend: "local", UploadDir: dir}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LocalClient{}, oc)
	assert.DirExists(t, dir)

	_, err = NewObjectClient(context.Background(), &config.Config{StorageBackend: "s3"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewObjectClient(context.Background(), &config.Config{StorageBackend: "gcs"}, zerolog.Nop())
	assert.Error(t, err)
}
