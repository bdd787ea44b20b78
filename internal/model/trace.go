// Package model defines the core domain types for LTrail: traces, steps,
// and per-candidate evaluations, plus the wire-level request and response
// shapes of the HTTP API.
//
// Metadata, step input/output, and final outcomes are open JSON-like maps.
// The core never interprets them; it stores and forwards them as-is.
package model

import (
	"fmt"
	"time"
)

// TraceStatus is the derived lifecycle state of a trace. It is never set
// directly by callers: it is recomputed from the step sequence and the
// presence of a final outcome.
type TraceStatus string

const (
	StatusInProgress TraceStatus = "in_progress"
	StatusCompleted  TraceStatus = "completed"
	StatusError      TraceStatus = "error"
)

// StepStatusError is the step status value that forces the parent trace
// into StatusError. Step statuses are otherwise free-form strings.
const StepStatusError = "error"

// StepStatusSuccess is the default step status when the caller omits one.
const StepStatusSuccess = "success"

// PlaceholderTraceName is used when a step arrives for an unknown trace id
// and the store synthesizes the parent trace.
const PlaceholderTraceName = "Unknown"

// Trace is one recorded execution of a monitored pipeline. This is the
// summary form without the step sequence; see TraceDetail.
type Trace struct {
	TraceID      string         `json:"trace_id"`
	Name         string         `json:"name"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    string         `json:"created_at"` // ISO-8601; lexicographic order == chronological order
	Status       TraceStatus    `json:"status"`
	StepCount    int            `json:"step_count"`
	FinalOutcome map[string]any `json:"final_outcome,omitempty"`
}

// TraceDetail is a trace with its embedded ordered step sequence.
type TraceDetail struct {
	Trace
	Steps []Step `json:"steps"`
}

// Step is one named unit of work inside a trace. Steps are keyed by Name
// within their trace: re-submitting a name replaces the prior record in
// place, preserving its position in the ordered sequence.
type Step struct {
	Name        string         `json:"name"`
	StepType    string         `json:"step_type"`
	Status      string         `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Reasoning   string         `json:"reasoning,omitempty"`
	Duration    *float64       `json:"duration,omitempty"` // seconds, set once when the step ends
	Evaluations []Evaluation   `json:"evaluations,omitempty"`
}

// Evaluation is a per-candidate scoring record nested inside a step.
// Evaluations are ordered and append-only; they are not individually
// addressable for update.
type Evaluation struct {
	ItemID string  `json:"item_id"`
	Label  string  `json:"label"`
	Checks []Check `json:"checks"`
	Status string  `json:"status"`
}

// Check is a single pass/fail result inside an evaluation.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// TraceInput is the payload for creating or fully replacing a trace.
type TraceInput struct {
	TraceID      string         `json:"trace_id"`
	Name         string         `json:"name"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"created_at"`
	Steps        []Step         `json:"steps"`
	FinalOutcome map[string]any `json:"final_outcome,omitempty"`
}

// Validate checks the required identity fields of a trace payload.
// Called before any state mutation so a rejected payload never leaves a
// partial write behind.
func (in TraceInput) Validate() error {
	if in.TraceID == "" {
		return fmt.Errorf("trace_id is required")
	}
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ValidateStep checks the identity field of a step payload. The name is
// the upsert key, so an empty name can never be stored.
func ValidateStep(s Step) error {
	if s.Name == "" {
		return fmt.Errorf("step name is required")
	}
	return nil
}

// DeriveStatus computes a trace's status from its step sequence and final
// outcome: error wins over everything, then completed, then in_progress.
func DeriveStatus(steps []Step, finalOutcome map[string]any) TraceStatus {
	for _, s := range steps {
		if s.Status == StepStatusError {
			return StatusError
		}
	}
	if finalOutcome != nil {
		return StatusCompleted
	}
	return StatusInProgress
}

// NewPlaceholderTrace builds the synthetic parent trace created when a
// step arrives for an unknown trace id.
func NewPlaceholderTrace(traceID string) Trace {
	return Trace{
		TraceID:   traceID,
		Name:      PlaceholderTraceName,
		Metadata:  map[string]any{},
		CreatedAt: Timestamp(time.Now().UTC()),
		Status:    StatusInProgress,
	}
}

// Timestamp formats t the way trace created_at fields are stored:
// RFC 3339 in UTC, so string comparison preserves chronological order.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
