package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Nancy-30/LTrail/internal/model"
	"github.com/Nancy-30/LTrail/internal/service/ingest"
	"github.com/Nancy-30/LTrail/internal/store"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	store               store.TraceStore
	ingest              *ingest.Service
	logger              *slog.Logger
	version             string
	maxRequestBodyBytes int64
	wsSendBuffer        int
}

// HandlersDeps holds the dependencies for creating Handlers.
type HandlersDeps struct {
	Store               store.TraceStore
	Ingest              *ingest.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	WSSendBuffer        int
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		store:               deps.Store,
		ingest:              deps.Ingest,
		logger:              deps.Logger,
		version:             deps.Version,
		maxRequestBodyBytes: deps.MaxRequestBodyBytes,
		wsSendBuffer:        deps.WSSendBuffer,
	}
}

// HandleRoot answers a minimal liveness banner at /.
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "ltrail",
		"status":  "running",
		"version": h.version,
	})
}

// HandleHealth reports service health and the number of stored traces.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:      "healthy",
		TracesCount: h.store.Count(),
		Version:     h.version,
	})
}

// HandleListTraces returns a page of trace summaries, newest first.
func (h *Handlers) HandleListTraces(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 100)
	offset := queryOffset(r)

	traces, total := h.store.List(limit, offset)
	writeJSON(w, http.StatusOK, model.TraceListResponse{
		Traces: traces,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// HandleGetTrace returns a single trace with its full step sequence.
func (h *Handlers) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("trace_id")

	detail, err := h.store.Get(traceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A few known ids make client-side id mismatches obvious.
			writeError(w, http.StatusNotFound, model.ErrCodeNotFound,
				fmt.Sprintf("trace %s not found", traceID),
				map[string]any{"known_trace_ids": h.store.KnownIDs(5)})
			return
		}
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load trace", nil)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// HandleCreateTrace applies a full trace create/replace.
func (h *Handlers) HandleCreateTrace(w http.ResponseWriter, r *http.Request) {
	var in model.TraceInput
	if err := decodeJSON(w, r, h.maxRequestBodyBytes, &in); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid JSON body: "+err.Error(), nil)
		return
	}

	created, err := h.ingest.CreateTrace(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, model.TraceCreateResponse{
		TraceID: created.TraceID,
		Status:  "created",
	})
}

// HandleUpsertStep inserts or replaces one step of a trace.
func (h *Handlers) HandleUpsertStep(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("trace_id")

	var req model.StepUpdateRequest
	if err := decodeJSON(w, r, h.maxRequestBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid JSON body: "+err.Error(), nil)
		return
	}

	// A body trace id is redundant with the path; when both are present
	// they must agree.
	if req.TraceID != "" && req.TraceID != traceID {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("trace_id mismatch: path %s, body %s", traceID, req.TraceID), nil)
		return
	}

	stored, err := h.ingest.UpsertStep(r.Context(), traceID, req.Step)
	if err != nil {
		writeError(w, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, model.StepUpdateResponse{
		TraceID:  traceID,
		StepName: stored.Name,
		Status:   "updated",
	})
}

// maxQueryLimit is the maximum allowed value for limit query parameters.
const maxQueryLimit = 1000

func queryInt(r *http.Request, key string, defaultVal int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// maxQueryOffset bounds offset values so a bad client cannot force huge scans.
const maxQueryOffset = 100_000

// queryOffset returns a bounded, non-negative offset from query params.
func queryOffset(r *http.Request) int {
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		return 0
	}
	if offset > maxQueryOffset {
		return maxQueryOffset
	}
	return offset
}

// queryLimit returns a bounded limit value from query params.
// Values are clamped to [0, maxQueryLimit]; limit=0 is a valid request
// for an empty page with just the total.
func queryLimit(r *http.Request, defaultVal int) int {
	limit := queryInt(r, "limit", defaultVal)
	if limit < 0 {
		return 0
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
