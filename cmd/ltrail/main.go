package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
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

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("LTRAIL_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("ltrail starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Canonical in-memory state and the live subscription registry.
	traceStore := store.NewMemory()
	registry := stream.NewRegistry(logger)

	// Optional SQLite snapshot archive.
	var archive *store.Archive
	var archiveSink ingest.ArchiveSink
	if cfg.ArchivePath != "" {
		archive, err = store.OpenArchive(cfg.ArchivePath, cfg.ArchiveBuffer, logger)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		archive.Start()
		archiveSink = archive
		logger.Info("archive: enabled", "path", cfg.ArchivePath)
	} else {
		logger.Info("archive: disabled (no LTRAIL_ARCHIVE_PATH)")
	}

	// Ingestion gateway (shared by HTTP and WebSocket handlers).
	ingestSvc := ingest.New(traceStore, registry, archiveSink, logger)

	// MCP server, mounted at /mcp.
	mcpSrv := mcp.New(traceStore, logger)

	srv := server.New(server.ServerConfig{
		Store:               traceStore,
		Ingest:              ingestSvc,
		Logger:              logger,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		WSSendBuffer:        cfg.WSSendBuffer,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown. Each phase gets its own timeout so early completion
	// doesn't steal budget from later phases. Order: (1) stop accepting new
	// HTTP requests and drain in-flight ones (they may still enqueue archive
	// snapshots), (2) disconnect live subscribers, (3) flush the archive.
	slog.Info("ltrail shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	registry.CloseAll()

	if archive != nil {
		archiveCtx, archiveCancel := context.WithTimeout(context.Background(), 10*time.Second)
		archive.Drain(archiveCtx)
		archiveCancel()
	}

	slog.Info("ltrail stopped")
	return nil
}
