package ltrail

// Trace is the full payload sent to POST /traces. The step sequence is
// ordered by first execution.
type Trace struct {
	TraceID      string         `json:"trace_id"`
	Name         string         `json:"name"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    string         `json:"created_at"`
	Steps        []Step         `json:"steps"`
	FinalOutcome map[string]any `json:"final_outcome,omitempty"`
}

// Step is one named stage of a pipeline run. Name is the upsert key on
// the server: resending a step replaces the earlier record in place.
type Step struct {
	Name        string         `json:"name"`
	StepType    string         `json:"step_type,omitempty"`
	Status      string         `json:"status,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Reasoning   string         `json:"reasoning,omitempty"`
	Duration    *float64       `json:"duration,omitempty"`
	Evaluations []Evaluation   `json:"evaluations,omitempty"`
}

// Evaluation is a per-item judgment recorded inside a step.
type Evaluation struct {
	ItemID string  `json:"item_id"`
	Label  string  `json:"label"`
	Checks []Check `json:"checks,omitempty"`
	Status string  `json:"status,omitempty"`
}

// Check is a single named pass/fail signal inside an evaluation.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Step status values understood by the server.
const (
	StepStatusSuccess = "success"
	StepStatusError   = "error"
)

// TraceAck is the server's acknowledgment of a full trace submission.
type TraceAck struct {
	TraceID string `json:"trace_id"`
	Status  string `json:"status"`
}

// StepAck is the server's acknowledgment of a step update.
type StepAck struct {
	TraceID  string `json:"trace_id"`
	StepName string `json:"step_name"`
	Status   string `json:"status"`
}

// Health is the server's health report.
type Health struct {
	Status      string `json:"status"`
	TracesCount int    `json:"traces_count"`
	Version     string `json:"version,omitempty"`
}

// stepUpdateBody is the wire shape for POST /traces/{id}/steps.
type stepUpdateBody struct {
	TraceID string `json:"trace_id"`
	Step    Step   `json:"step"`
}

// apiErrorEnvelope matches the server's error response shape.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
