package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Nancy-30/LTrail/internal/model"
	"github.com/Nancy-30/LTrail/internal/store"
)

func newTestMCP(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return New(mem, slog.New(slog.DiscardHandler)), mem
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in tool result")
	return ""
}

func seedTrace(mem *store.Memory, id, createdAt string) {
	mem.CreateOrReplace(model.TraceInput{
		TraceID:   id,
		Name:      "pipeline",
		CreatedAt: createdAt,
		Steps:     []model.Step{{Name: "retrieve"}},
	})
}

func TestHandleGetTrace(t *testing.T) {
	srv, mem := newTestMCP(t)
	seedTrace(mem, "t1", "2026-08-29T10:00:00Z")

	result, err := srv.handleGetTrace(context.Background(), toolRequest("ltrail_get_trace", map[string]any{
		"trace_id": "t1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "get should succeed: %s", parseToolText(t, result))

	var detail model.TraceDetail
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &detail))
	assert.Equal(t, "t1", detail.TraceID)
	require.Len(t, detail.Steps, 1)
}

func TestHandleGetTrace_NotFound(t *testing.T) {
	srv, _ := newTestMCP(t)

	result, err := srv.handleGetTrace(context.Background(), toolRequest("ltrail_get_trace", map[string]any{
		"trace_id": "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "not found")
}

func TestHandleGetTrace_MissingTraceID(t *testing.T) {
	srv, _ := newTestMCP(t)

	result, err := srv.handleGetTrace(context.Background(), toolRequest("ltrail_get_trace", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListTraces(t *testing.T) {
	srv, mem := newTestMCP(t)
	seedTrace(mem, "old", "2026-08-29T08:00:00Z")
	seedTrace(mem, "new", "2026-08-29T10:00:00Z")

	result, err := srv.handleListTraces(context.Background(), toolRequest("ltrail_list_traces", map[string]any{
		"limit": 1,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		Traces []model.Trace `json:"traces"`
		Total  int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Traces, 1)
	assert.Equal(t, "new", resp.Traces[0].TraceID)
}

func TestHandleTracesRecent(t *testing.T) {
	srv, mem := newTestMCP(t)
	seedTrace(mem, "t1", "2026-08-29T10:00:00Z")

	contents, err := srv.handleTracesRecent(context.Background(), mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "ltrail://traces/recent", text.URI)

	var traces []model.Trace
	require.NoError(t, json.Unmarshal([]byte(text.Text), &traces))
	require.Len(t, traces, 1)
}
