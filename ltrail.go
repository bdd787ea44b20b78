// Package ltrail is the public API for embedding the LTrail trace server.
//
// Consumers who want the server inside their own process construct and
// run it without forking:
//
//	app, err := ltrail.New(
//	    ltrail.WithVersion(version),
//	    ltrail.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: ltrail (root) imports
// internal/*, but internal/* never imports ltrail (root).
package ltrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Nancy-30/LTrail/internal/config"
	"github.com/Nancy-30/LTrail/internal/mcp"
	"github.com/Nancy-30/LTrail/internal/server"
	"github.com/Nancy-30/LTrail/internal/service/ingest"
	"github.com/Nancy-30/LTrail/internal/store"
	"github.com/Nancy-30/LTrail/internal/stream"
	"github.com/Nancy-30/LTrail/internal/telemetry"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        int
	archivePath string
	logger      *slog.Logger
	version     string
	disableMCP  bool
}

// WithPort overrides the TCP port from config (LTRAIL_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithArchivePath overrides the SQLite archive path from config
// (LTRAIL_ARCHIVE_PATH env var). An empty path keeps the archive disabled.
func WithArchivePath(path string) Option {
	return func(o *resolvedOptions) { o.archivePath = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithoutMCP disables mounting the MCP server at /mcp.
func WithoutMCP() Option {
	return func(o *resolvedOptions) { o.disableMCP = true }
}

// App is the LTrail server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	logger       *slog.Logger
	store        *store.Memory
	registry     *stream.Registry
	archive      *store.Archive
	ingest       *ingest.Service
	srv          *server.Server
	otelShutdown telemetry.Shutdown
}

// New constructs a fully wired App. Configuration comes from the
// environment (and .env when present), then options override it.
func New(opts ...Option) (*App, error) {
	var o resolvedOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.archivePath != "" {
		cfg.ArchivePath = o.archivePath
	}

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, o.version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	traceStore := store.NewMemory()
	registry := stream.NewRegistry(logger)

	var archive *store.Archive
	var archiveSink ingest.ArchiveSink
	if cfg.ArchivePath != "" {
		archive, err = store.OpenArchive(cfg.ArchivePath, cfg.ArchiveBuffer, logger)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		archiveSink = archive
	}

	ingestSvc := ingest.New(traceStore, registry, archiveSink, logger)

	srvCfg := server.ServerConfig{
		Store:               traceStore,
		Ingest:              ingestSvc,
		Logger:              logger,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             o.version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		WSSendBuffer:        cfg.WSSendBuffer,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	if !o.disableMCP {
		srvCfg.MCPServer = mcp.New(traceStore, logger).MCPServer()
	}

	return &App{
		cfg:          cfg,
		logger:       logger,
		store:        traceStore,
		registry:     registry,
		archive:      archive,
		ingest:       ingestSvc,
		srv:          server.New(srvCfg),
		otelShutdown: otelShutdown,
	}, nil
}

// Handler returns the root HTTP handler, for mounting the App inside an
// existing server or for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run starts background services and the HTTP server, blocking until ctx
// is cancelled or the server fails. On cancellation it performs a
// graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	if a.archive != nil {
		a.archive.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown performs the phased graceful shutdown: stop accepting HTTP
// requests and drain in-flight ones, disconnect live subscribers, then
// flush the archive. Finally the OTEL providers are shut down.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("ltrail shutting down")

	httpCtx, httpCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	a.registry.CloseAll()

	if a.archive != nil {
		archiveCtx, archiveCancel := context.WithTimeout(ctx, 10*time.Second)
		a.archive.Drain(archiveCtx)
		archiveCancel()
	}

	if err := a.otelShutdown(ctx); err != nil {
		a.logger.Error("otel shutdown error", "error", err)
	}

	a.logger.Info("ltrail stopped")
	return nil
}

// DefaultLogger builds the JSON logger the ltrail binary uses, honoring
// LTRAIL_LOG_LEVEL=debug.
func DefaultLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LTRAIL_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
