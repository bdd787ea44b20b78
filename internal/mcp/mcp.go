// Package mcp exposes read access to stored traces over the Model
// Context Protocol, so MCP-compatible agents can inspect pipeline runs
// without going through the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Nancy-30/LTrail/internal/store"
)

// Server wraps the MCP server around the trace store.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     store.TraceStore
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(st store.TraceStore, logger *slog.Logger) *Server {
	s := &Server{
		store:  st,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"ltrail",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// ltrail://traces/recent — the most recently started traces.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"ltrail://traces/recent",
			"Recent Traces",
			mcplib.WithResourceDescription("The most recently started pipeline traces"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleTracesRecent,
	)
}

func (s *Server) registerTools() {
	// ltrail_list_traces — page through trace summaries.
	s.mcpServer.AddTool(
		mcplib.NewTool("ltrail_list_traces",
			mcplib.WithDescription(`List recorded pipeline traces, newest first.

Each entry is a summary: trace id, name, status, step count, and creation
time. Use ltrail_get_trace to fetch a trace's full step sequence.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of traces to return"),
				mcplib.Min(1),
				mcplib.Max(1000),
				mcplib.DefaultNumber(20),
			),
			mcplib.WithNumber("offset",
				mcplib.Description("Number of traces to skip, for paging"),
				mcplib.Min(0),
				mcplib.DefaultNumber(0),
			),
		),
		s.handleListTraces,
	)

	// ltrail_get_trace — fetch one trace with its steps.
	s.mcpServer.AddTool(
		mcplib.NewTool("ltrail_get_trace",
			mcplib.WithDescription(`Fetch one pipeline trace with its full ordered step sequence.

Steps carry input, output, reasoning, duration, and per-item evaluations,
which is usually enough to reconstruct why the pipeline decided what it did.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("trace_id",
				mcplib.Description("The trace identifier"),
				mcplib.Required(),
			),
		),
		s.handleGetTrace,
	)
}

func (s *Server) handleTracesRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	traces, _ := s.store.List(20, 0)

	data, err := json.MarshalIndent(traces, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal traces: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "ltrail://traces/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleListTraces(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 20)
	offset := request.GetInt("offset", 0)

	traces, total := s.store.List(limit, offset)

	resultData, _ := json.MarshalIndent(map[string]any{
		"traces": traces,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}, "", "  ")

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func (s *Server) handleGetTrace(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	traceID := request.GetString("trace_id", "")
	if traceID == "" {
		return errorResult("trace_id is required"), nil
	}

	detail, err := s.store.Get(traceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errorResult(fmt.Sprintf("trace %s not found", traceID)), nil
		}
		return errorResult(fmt.Sprintf("failed to load trace: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(detail, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(resultData)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
