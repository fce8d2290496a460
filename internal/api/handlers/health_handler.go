package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/markdave123-py/docchat/internal/config"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db  Pinger
	cfg *config.Config
}

func NewHealthHandler(db Pinger, cfg *config.Config) *HealthHandler {
	return &HealthHandler{db: db, cfg: cfg}
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Health answers 200 while the database is reachable and 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Version:   h.cfg.Version,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to " + h.cfg.ServiceName,
		"health":  h.cfg.APIPrefix + "/health",
	})
}
