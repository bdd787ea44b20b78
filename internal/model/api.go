package model

// StepUpdateRequest is the body for POST /api/traces/{trace_id}/steps.
// TraceID, when present, must match the path-level trace id; a mismatch
// is rejected before any state mutation.
type StepUpdateRequest struct {
	TraceID string `json:"trace_id"`
	Step    Step   `json:"step"`
}

// TraceCreateResponse acknowledges a full trace create/replace.
type TraceCreateResponse struct {
	TraceID string `json:"trace_id"`
	Status  string `json:"status"`
}

// StepUpdateResponse acknowledges a step upsert.
type StepUpdateResponse struct {
	TraceID  string `json:"trace_id"`
	StepName string `json:"step_name"`
	Status   string `json:"status"`
}

// TraceListResponse is the paginated trace list envelope.
type TraceListResponse struct {
	Traces []Trace `json:"traces"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	TracesCount int    `json:"traces_count"`
	Version     string `json:"version,omitempty"`
}

// ErrorResponse is the error envelope for all non-2xx responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an API error. Details optionally carries
// structured debugging context, e.g. a sample of known trace ids on a
// not-found response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error code constants for API error responses.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)
