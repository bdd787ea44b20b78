package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Nancy-30/LTrail/internal/service/ingest"
	"github.com/Nancy-30/LTrail/internal/store"
)

// Server is the LTrail HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// MCPServer is optional (nil = disabled).
type ServerConfig struct {
	// Required dependencies.
	Store  store.TraceStore
	Ingest *ingest.Service
	Logger *slog.Logger

	// Optional dependencies (nil = disabled).
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	WSSendBuffer        int
	CORSAllowedOrigins  []string
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		Ingest:              cfg.Ingest,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		WSSendBuffer:        cfg.WSSendBuffer,
	})

	mux := http.NewServeMux()

	// Trace ingestion and query.
	mux.HandleFunc("GET /api/traces", h.HandleListTraces)
	mux.HandleFunc("POST /api/traces", h.HandleCreateTrace)
	mux.HandleFunc("GET /api/traces/{trace_id}", h.HandleGetTrace)
	mux.HandleFunc("POST /api/traces/{trace_id}/steps", h.HandleUpsertStep)

	// Live subscriptions (long-lived connection, no body limit applies).
	mux.HandleFunc("GET /ws/{trace_id}", h.HandleWS)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// Health and liveness banner.
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /{$}", h.HandleRoot)

	// Middleware chain (outermost executes first):
	// request ID → CORS → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
