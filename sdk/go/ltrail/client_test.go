package ltrail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// mockServer creates an httptest server that mimics the LTrail API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: serverURL + "/api",
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestSendTrace(t *testing.T) {
	var got Trace
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/traces": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-key" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"code": "UNAUTHORIZED", "message": "bad token"},
				})
				return
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode body: %v", err)
			}
			writeJSON(w, http.StatusOK, TraceAck{TraceID: got.TraceID, Status: "created"})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ack, err := c.SendTrace(context.Background(), &Trace{
		TraceID:   "t1",
		Name:      "pipeline",
		CreatedAt: "2026-08-29T10:00:00Z",
		Steps:     []Step{{Name: "retrieve", Status: StepStatusSuccess}},
	})
	if err != nil {
		t.Fatalf("SendTrace failed: %v", err)
	}
	if ack.Status != "created" {
		t.Errorf("ack status = %q, want created", ack.Status)
	}
	if got.Name != "pipeline" || len(got.Steps) != 1 {
		t.Errorf("server received unexpected payload: %+v", got)
	}
}

func TestSendStep(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/traces/{trace_id}/steps": func(w http.ResponseWriter, r *http.Request) {
			var body stepUpdateBody
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if body.TraceID != r.PathValue("trace_id") {
				t.Errorf("body trace_id = %q, want %q", body.TraceID, r.PathValue("trace_id"))
			}
			writeJSON(w, http.StatusOK, StepAck{
				TraceID:  r.PathValue("trace_id"),
				StepName: body.Step.Name,
				Status:   "updated",
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ack, err := c.SendStep(context.Background(), "t1", Step{Name: "rank"})
	if err != nil {
		t.Fatalf("SendStep failed: %v", err)
	}
	if ack.TraceID != "t1" || ack.StepName != "rank" {
		t.Errorf("unexpected ack: %+v", ack)
	}
}

func TestSendStepRequiresTraceID(t *testing.T) {
	c := newTestClient(t, "http://localhost:1")
	if _, err := c.SendStep(context.Background(), "", Step{Name: "x"}); err == nil {
		t.Error("empty traceID accepted")
	}
}

func TestErrorParsing(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /api/traces/{trace_id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "NOT_FOUND", "message": "trace missing not found"},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetTrace(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound = false for %v", err)
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error is not *Error: %v", err)
	}
	if apiErr.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", apiErr.Code)
	}
}

func TestAsyncSwallowsFailures(t *testing.T) {
	var calls atomic.Int32
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /api/traces/{trace_id}/steps": func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": map[string]any{"code": "INTERNAL_ERROR", "message": "boom"},
			})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	// Must not panic or block despite the server failing.
	c.SendStepAsync("t1", Step{Name: "a"})

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Error("async send never reached the server")
	}
}

func TestHealthUsesServerRoot(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, Health{Status: "healthy", TracesCount: 3})
		},
	})
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	health, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Status != "healthy" || health.TracesCount != 3 {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestDefaultBaseURL(t *testing.T) {
	c, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
}
