package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

type plainTextExtractor struct{}

func (plainTextExtractor) ExtractText(_ context.Context, data []byte, contentType string) (string, error) {
	if config.NormalizeContentType(contentType) == config.ContentTypePlainText {
		return string(data), nil
	}
	return "", fmt.Errorf("%w: unreadable %s", core.ErrExtraction, contentType)
}

func (plainTextExtractor) SupportedContentTypes() []string { return config.SupportedContentTypes }

type echoGen struct {
	mu  sync.Mutex
	err error
}

func (g *echoGen) Generate(_ context.Context, req core.GenerationRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	return "echo: " + req.Question, nil
}

func (g *echoGen) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type testServer struct {
	app  *App
	gen  *echoGen
	srv  *httptest.Server
	base string
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		ServiceName:         "docchat",
		Version:             "test",
		Port:                "0",
		APIPrefix:           "/api/v1",
		CORSAllowedOrigins:  []string{"http://localhost:5173"},
		ShutdownTimeout:     time.Second,
		DatabaseDriver:      "sqlite",
		DatabaseURL:         filepath.Join(dir, "docchat.db"),
		StorageBackend:      "local",
		UploadDir:           filepath.Join(dir, "uploads"),
		LLMProvider:         "openai",
		GenerationTimeout:   time.Second,
		ChunkSize:           500,
		ChunkOverlap:        50,
		ChatHistoryLimit:    10,
		RetrievalTopK:       3,
		MaxUploadBytes:      2048,
		AllowedContentTypes: append([]string(nil), config.SupportedContentTypes...),
		IngestWorkers:       1,
		IngestQueueSize:     4,
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testConfig(t)
	gen := &echoGen{}
	a, err := NewApp(context.Background(), cfg, zerolog.Nop(), WithGenerationClient(gen), WithTextExtractor(plainTextExtractor{}))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Server.Handler())
	t.Cleanup(srv.Close)
	return &testServer{app: a, gen: gen, srv: srv, base: srv.URL + "/api/v1"}
}

func (ts *testServer) upload(t *testing.T, filename, contentType string, body []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.base+"/documents", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ts *testServer) postJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(ts.base+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ts *testServer) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.base+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) readyDocument(t *testing.T) models.Document {
	t.Helper()
	resp := ts.upload(t, "facts.txt", "text/plain", []byte("Zebras live in Africa. Penguins live in Antarctica."))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	doc := decode[models.Document](t, resp)
	require.Equal(t, models.StatusReady, doc.Status)
	return doc
}

// pdfBlindExtractor parses everything plainTextExtractor does except PDF.
type pdfBlindExtractor struct{ plainTextExtractor }

func (pdfBlindExtractor) SupportedContentTypes() []string {
	return []string{config.ContentTypePlainText, config.ContentTypeDocx}
}

func TestNewApp_AllowListMustMatchExtractor(t *testing.T) {
	cfg := testConfig(t)
	_, err := NewApp(context.Background(), cfg, zerolog.Nop(), WithGenerationClient(&echoGen{}), WithTextExtractor(pdfBlindExtractor{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ContentTypePDF)

	cfg = testConfig(t)
	cfg.AllowedContentTypes = []string{config.ContentTypePlainText, config.ContentTypeDocx}
	a, err := NewApp(context.Background(), cfg, zerolog.Nop(), WithGenerationClient(&echoGen{}), WithTextExtractor(pdfBlindExtractor{}))
	require.NoError(t, err)
	a.Close()
}

func TestHealthAndRoot(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, body["timestamp"])

	root, err := http.Get(ts.srv.URL + "/")
	require.NoError(t, err)
	defer root.Body.Close()
	assert.Equal(t, http.StatusOK, root.StatusCode)

	metrics, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestUploadDocument(t *testing.T) {
	ts := newTestServer(t)

	t.Run("plain text is ingested", func(t *testing.T) {
		doc := ts.readyDocument(t)
		assert.Equal(t, "facts.txt", doc.FileName)
		assert.Equal(t, 1, doc.ChunkCount)
		assert.Nil(t, doc.ErrorMessage)

		resp := ts.do(t, http.MethodGet, "/documents/"+doc.ID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decode[models.Document](t, resp)
		assert.Equal(t, doc.ID, got.ID)

		resp = ts.do(t, http.MethodGet, "/documents")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, decode[[]models.Document](t, resp))
	})

	t.Run("unsupported type", func(t *testing.T) {
		resp := ts.upload(t, "pic.png", "image/png", []byte("\x89PNG"))
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		resp := ts.upload(t, "big.txt", "text/plain", bytes.Repeat([]byte("a"), 4096))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("ingestion failure", func(t *testing.T) {
		resp := ts.upload(t, "broken.pdf", "application/pdf", []byte("%PDF-1.4 junk"))
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.True(t, strings.HasPrefix(body["detail"], "Ingestion failed: "), body["detail"])
		assert.Contains(t, body["detail"], "unreadable")
	})

	t.Run("missing file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("other", "x"))
		require.NoError(t, mw.Close())
		resp, err := http.Post(ts.base+"/documents", mw.FormDataContentType(), &buf)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown document", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/documents/nope").StatusCode)
	})
}

func TestConversationFlow(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.readyDocument(t)

	resp := ts.postJSON(t, "/conversations", map[string]string{"document_id": doc.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decode[models.Conversation](t, resp)
	assert.Equal(t, doc.ID, conv.DocumentID)
	assert.Empty(t, conv.Messages)

	resp = ts.postJSON(t, "/conversations/"+conv.ID+"/messages", map[string]string{"question": "where do zebras live?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chat := decode[map[string]string](t, resp)
	assert.Equal(t, conv.ID, chat["conversation_id"])
	assert.Equal(t, "echo: where do zebras live?", chat["answer"])

	resp = ts.do(t, http.MethodGet, "/conversations/"+conv.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[models.Conversation](t, resp)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, models.RoleUser, got.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, got.Messages[1].Role)

	ts.gen.setErr(errors.New("upstream down"))
	resp = ts.postJSON(t, "/conversations/"+conv.ID+"/messages", map[string]string{"question": "again?"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	ts.gen.setErr(nil)

	resp = ts.do(t, http.MethodGet, "/conversations/"+conv.ID)
	assert.Len(t, decode[models.Conversation](t, resp).Messages, 2)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/conversations/"+conv.ID).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/conversations/"+conv.ID).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/conversations/"+conv.ID).StatusCode)
}

func TestConversationErrors(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusNotFound,
		ts.postJSON(t, "/conversations", map[string]string{"document_id": "ghost"}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		ts.postJSON(t, "/conversations", map[string]string{}).StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		ts.postJSON(t, "/conversations", map[string]string{"document_id": "x", "extra": "y"}).StatusCode)

	pending := &models.Document{ID: "pending-doc", FileName: "p.txt", ContentType: config.ContentTypePlainText, StorageKey: "k"}
	require.NoError(t, ts.app.DBClient.CreateDocument(context.Background(), pending))
	assert.Equal(t, http.StatusConflict,
		ts.postJSON(t, "/conversations", map[string]string{"document_id": pending.ID}).StatusCode)

	assert.Equal(t, http.StatusNotFound,
		ts.postJSON(t, "/conversations/ghost/messages", map[string]string{"question": "hi"}).StatusCode)

	doc := ts.readyDocument(t)
	resp := ts.postJSON(t, "/conversations", map[string]string{"document_id": doc.ID})
	conv := decode[models.Conversation](t, resp)
	assert.Equal(t, http.StatusBadRequest,
		ts.postJSON(t, "/conversations/"+conv.ID+"/messages", map[string]string{"question": ""}).StatusCode)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	ts.app.cfg.IngestAsync = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
