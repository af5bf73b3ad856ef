package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"voxtailor/internal/catalog"
	"voxtailor/internal/config"
	"voxtailor/internal/detect"
	"voxtailor/internal/engine"
	"voxtailor/internal/intake"
	"voxtailor/internal/logger"
	"voxtailor/internal/pipeline"
	"voxtailor/internal/provision"
	"voxtailor/internal/store"
)

// Application wires configuration, storage, the transcription pipeline and
// the HTTP API into one runnable service
type Application struct {
	config    *config.Configuration
	zapLogger *zap.Logger
	store     *store.Store
	catalog   *catalog.Catalog
	pool      *pipeline.Pool
	server    *http.Server
}

// NewApplication creates a new application instance with all components initialized
func NewApplication() (*Application, error) {
	// Load configuration from config file if CONFIG_PATH is set, otherwise use environment variables
	var cfg *config.Configuration
	var err error

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		cfg, err = config.NewConfigurationFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.NewConfigurationFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	zapLogger, err := logger.NewLoggerFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return newApplication(cfg, zapLogger)
}

// newApplication builds the component graph from an already-loaded
// configuration
func newApplication(cfg *config.Configuration, zapLogger *zap.Logger) (*Application, error) {
	for _, dir := range []string{cfg.GetUploadDir(), cfg.GetTempDir(), cfg.GetModelsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	st, err := store.Open(cfg.GetDatabasePath(), zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The model catalog rows are configuration, not user data, so they are
	// (re)seeded on every start.
	if err := st.SeedModels(context.Background(), catalog.SeedModels(cfg.GetModelBaseURL())); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to seed model catalog: %w", err)
	}

	cat := catalog.NewCatalog(st, cfg.GetModelsDir(), zapLogger)
	detector := detect.NewDetector(cfg.GetFFmpegPath(), cfg.GetClassifierPath(),
		cfg.GetTempDir(), cfg.GetDefaultLanguage(), zapLogger)
	provisioner := provision.NewProvisioner(zapLogger, cfg.GetModelsDir())
	recognizer := engine.NewEngine(cfg.GetFFmpegPath(), cfg.GetRecognizerPath(),
		cfg.GetTempDir(), zapLogger)

	orchestrator := pipeline.NewOrchestrator(detector, cat, provisioner, recognizer, st,
		pipeline.StageTimeouts{
			Detect:     cfg.GetDetectTimeout(),
			Download:   cfg.GetDownloadTimeout(),
			Transcribe: cfg.GetTranscribeTimeout(),
		}, zapLogger)
	pool := pipeline.NewPool(orchestrator, cfg.GetWorkerCount(), cfg.GetQueueDepth(), zapLogger)

	in := intake.NewIntake(st, pool, cfg.GetUploadDir(), cfg.GetMaxUploadBytes(), zapLogger)
	httpServer := &http.Server{
		Addr:              cfg.GetListenAddr(),
		Handler:           NewServer(in, st, cat, zapLogger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		config:    cfg,
		zapLogger: zapLogger,
		store:     st,
		catalog:   cat,
		pool:      pool,
		server:    httpServer,
	}, nil
}

// Run starts the worker pool and HTTP server, then blocks until ctx is
// cancelled or the server fails
func (app *Application) Run(ctx context.Context) error {
	app.zapLogger.Info("starting VoxTailor transcription service",
		zap.String("listen_addr", app.server.Addr),
		zap.String("models_dir", app.config.GetModelsDir()),
		zap.Bool("debug_mode", app.config.GetDebugMode()))

	// Check if context is already cancelled
	select {
	case <-ctx.Done():
		app.zapLogger.Info("context cancelled before startup, shutting down immediately")
		return nil
	default:
	}

	app.logInstalledModels(ctx)
	// Workers get their own lifecycle: cancelling the signal context must not
	// drop queued jobs, so the pool stops via Shutdown's queue close instead.
	app.pool.Start(context.Background())

	serverErr := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		app.zapLogger.Info("shutdown signal received, stopping application")
		return nil
	}
}

// logInstalledModels reports what is already usable offline so operators can
// see whether first jobs will need downloads
func (app *Application) logInstalledModels(ctx context.Context) {
	installed, err := app.catalog.ListInstalled(ctx)
	if err != nil {
		app.zapLogger.Warn("failed to inspect installed models", zap.Error(err))
		return
	}
	app.zapLogger.Info("installed model inventory", zap.Strings("models", installed))
}

// Shutdown gracefully stops all components in reverse order: no new HTTP
// requests, then drain in-flight transcription jobs, then close storage
func (app *Application) Shutdown() error {
	app.zapLogger.Info("shutting down application components")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.zapLogger.Error("error shutting down http server", zap.Error(err))
	}

	app.pool.Shutdown()

	if err := app.store.Close(); err != nil {
		app.zapLogger.Error("error closing database", zap.Error(err))
	}

	app.zapLogger.Info("application shutdown completed")
	return nil
}
