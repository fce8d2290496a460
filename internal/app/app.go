package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/conversation_engine"
	db "github.com/markdave123-py/docchat/internal/core/database"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
	"github.com/markdave123-py/docchat/internal/core/llm"
	objectclient "github.com/markdave123-py/docchat/internal/core/object-client"
	"github.com/markdave123-py/docchat/internal/core/retrieval"
	"github.com/markdave123-py/docchat/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient core.ObjectClient
	DocProcessor *ingestion_engine.DocumentIngestor
	Generator    core.GenerationClient
	Server       *Server

	cfg *config.Config
	log zerolog.Logger
}

// Option overrides a collaborator NewApp would otherwise build from config.
type Option func(*options)

type options struct {
	generator core.GenerationClient
	extractor core.TextExtractor
}

func WithGenerationClient(g core.GenerationClient) Option {
	return func(o *options) { o.generator = g }
}

func WithTextExtractor(e core.TextExtractor) Option {
	return func(o *options) { o.extractor = e }
}

// NewApp is the composition root: it builds every collaborator from cfg and wires them.
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.DatabaseDriver).Msg("database initialized and ready")

	a := &App{DBClient: dbClient, cfg: cfg, log: log}

	objClient, err := objectclient.NewObjectClient(appCtx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ObjectClient = objClient
	log.Info().Str("backend", cfg.StorageBackend).Msg("object client initialized and ready")

	generator := o.generator
	if generator == nil {
		generator, err = llm.NewGenerationClient(appCtx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("couldn't initialize the generation client: %w", err)
		}
	}
	a.Generator = generator

	extractor := o.extractor
	if extractor == nil {
		useReadability := false
		extractor = ingestion_engine.NewDocconvExtractor(useReadability)
	}
	if err := checkAllowList(cfg.AllowedContentTypes, extractor); err != nil {
		a.Close()
		return nil, err
	}

	ingCfg := &ingestion_engine.IngestConfig{
		WindowSize: cfg.ChunkSize,
		Overlap:    cfg.ChunkOverlap,
		Workers:    cfg.IngestWorkers,
		QueueSize:  cfg.IngestQueueSize,
	}
	docIngestor, err := ingestion_engine.NewDocumentIngestor(dbClient, objClient, extractor, ingCfg, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ingestion config: %w", err)
	}
	a.DocProcessor = docIngestor

	builder := conversation_engine.NewContextBuilder(dbClient, retrieval.New(), generator, conversation_engine.BuilderConfig{
		HistoryLimit: cfg.ChatHistoryLimit,
		TopK:         cfg.RetrievalTopK,
		Timeout:      cfg.GenerationTimeout,
	}, log)

	docService := services.NewDocumentService(dbClient, objClient, docIngestor, cfg, log)
	convService := services.NewConversationService(dbClient, builder, log)

	a.Server = NewServer(cfg, log, dbClient, docService, convService)
	return a, nil
}

// checkAllowList fails when ALLOWED_CONTENT_TYPES admits a type the extractor cannot parse.
func checkAllowList(allowed []string, extractor core.TextExtractor) error {
	supported := make(map[string]bool)
	for _, ct := range extractor.SupportedContentTypes() {
		supported[config.NormalizeContentType(ct)] = true
	}
	for _, ct := range allowed {
		if !supported[config.NormalizeContentType(ct)] {
			return fmt.Errorf("ALLOWED_CONTENT_TYPES includes %q, which the text extractor cannot parse", ct)
		}
	}
	return nil
}

// Run starts the ingestion workers (in async mode) and the HTTP server, and blocks until
// ctx is cancelled or the server fails. Shutdown drains the server and the workers.
func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if a.cfg.IngestAsync {
		a.DocProcessor.Start(workerCtx)
		a.log.Info().Int("workers", a.cfg.IngestWorkers).Msg("ingestion workers started")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}

	stopWorkers()
	if err := a.DocProcessor.Wait(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func (a *App) Close() {
	if closer, ok := a.Generator.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing generation client")
		}
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
