package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docchat/internal/api/middlewares"
	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, log zerolog.Logger, db handlers.Pinger, docs *services.DocumentService, convs *services.ConversationService) *Server {
	healthHandler := handlers.NewHealthHandler(db, cfg)
	docHandler := handlers.NewDocumentHandler(docs, cfg, log)
	chatHandler := handlers.NewChatHandler(convs, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger(log))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/", healthHandler.Root)
	r.Handle("/metrics", promhttp.Handler())

	routes := func(api chi.Router) {
		api.Get("/health", healthHandler.Health)

		api.Post("/documents", docHandler.UploadDocument)
		api.Get("/documents", docHandler.GetDocuments)
		api.Get("/documents/{id}", docHandler.GetDocument)

		api.Post("/conversations", chatHandler.CreateConversation)
		api.Get("/conversations/{id}", chatHandler.GetConversation)
		api.Post("/conversations/{id}/messages", chatHandler.SendMessage)
		api.Delete("/conversations/{id}", chatHandler.DeleteConversation)
	}
	if cfg.APIPrefix == "" || cfg.APIPrefix == "/" {
		r.Group(routes)
	} else {
		r.Route(cfg.APIPrefix, routes)
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
