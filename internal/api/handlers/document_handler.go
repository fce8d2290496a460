package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/services"
)

// multipartOverhead is the allowance above MAX_UPLOAD_BYTES for multipart framing.
const multipartOverhead = 1 << 20

type DocumentHandler struct {
	docs *services.DocumentService
	cfg  *config.Config
	log  zerolog.Logger
}

func NewDocumentHandler(docs *services.DocumentService, cfg *config.Config, log zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, cfg: cfg, log: log.With().Str("handler", "documents").Logger()}
}

// UploadDocument handles the multipart upload, storage, registration and ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.log, fmt.Errorf("%w: file exceeds maximum size of %d bytes", core.ErrPayloadTooLarge, h.cfg.MaxUploadBytes))
			return
		}
		writeError(w, h.log, fmt.Errorf("%w: invalid multipart form: %v", core.ErrInvalidInput, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.log, fmt.Errorf("%w: missing file field", core.ErrInvalidInput))
		return
	}
	defer file.Close()

	// Read one byte past the limit so oversized files are detectable.
	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		writeError(w, h.log, fmt.Errorf("read upload: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := h.docs.Upload(ctx, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		if errors.Is(err, core.ErrIngestionFailed) {
			writeDetail(w, http.StatusUnprocessableEntity, "Ingestion failed: "+services.IngestionMessage(doc, err))
			return
		}
		writeError(w, h.log, err)
		return
	}

	status := http.StatusCreated
	if h.cfg.IngestAsync {
		status = http.StatusAccepted
	}
	writeJSON(w, status, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	documents, err := h.docs.List(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
