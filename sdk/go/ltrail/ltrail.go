package ltrail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder builds one pipeline trace step by step and delivers it to an
// LTrail server. The zero-configuration default delivers asynchronously:
// each finished step is sent fire-and-forget, and delivery failures never
// surface into the instrumented pipeline.
//
// All methods are safe for concurrent use, so parallel pipeline stages
// can record steps on the same Recorder.
type Recorder struct {
	client *Client
	store  *FileStore
	sync   bool

	mu    sync.Mutex
	trace Trace
	done  bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClient sets the delivery client. Without one the Recorder only
// accumulates state locally (useful with WithFileStore or Export).
func WithClient(c *Client) RecorderOption {
	return func(r *Recorder) { r.client = c }
}

// WithTraceID overrides the generated trace id, for correlating with an
// external request id.
func WithTraceID(id string) RecorderOption {
	return func(r *Recorder) { r.trace.TraceID = id }
}

// WithMetadata attaches trace-level metadata such as model names or
// experiment labels.
func WithMetadata(md map[string]any) RecorderOption {
	return func(r *Recorder) { r.trace.Metadata = md }
}

// WithSync makes delivery synchronous: step and trace submissions block
// and report errors instead of being fire-and-forget.
func WithSync() RecorderOption {
	return func(r *Recorder) { r.sync = true }
}

// WithFileStore additionally writes a local JSON snapshot on Complete.
func WithFileStore(fs *FileStore) RecorderOption {
	return func(r *Recorder) { r.store = fs }
}

// NewRecorder starts a trace with a generated id and the current time.
func NewRecorder(name string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		trace: Trace{
			TraceID:   uuid.NewString(),
			Name:      name,
			Metadata:  map[string]any{},
			CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.trace.Metadata == nil {
		r.trace.Metadata = map[string]any{}
	}
	return r
}

// TraceID returns the trace's identifier, for handing to log lines or a
// dashboard link.
func (r *Recorder) TraceID() string {
	return r.trace.TraceID
}

// StartStep begins a named step and starts its duration clock. Reusing a
// name replaces the earlier step when the new one ends.
func (r *Recorder) StartStep(name, stepType string) *StepRecorder {
	return &StepRecorder{
		recorder: r,
		started:  time.Now(),
		step: Step{
			Name:     name,
			StepType: stepType,
		},
	}
}

// Run executes fn inside a step, ending it when fn returns. An error or
// panic marks the step as failed; panics are re-raised after recording.
// In sync mode a step-delivery failure is joined with fn's error, so
// neither is lost.
func (r *Recorder) Run(name, stepType string, fn func(s *StepRecorder) error) error {
	s := r.StartStep(name, stepType)
	defer func() {
		if rec := recover(); rec != nil {
			s.SetStatus(StepStatusError)
			s.SetReasoning(fmt.Sprintf("panic: %v", rec))
			s.End()
			panic(rec)
		}
	}()

	err := fn(s)
	if err != nil {
		s.SetStatus(StepStatusError)
		if s.step.Reasoning == "" {
			s.SetReasoning(err.Error())
		}
	}
	return errors.Join(err, s.End())
}

// Complete marks the trace finished with its final outcome and delivers
// the full trace. With WithSync the delivery error is returned; otherwise
// delivery is fire-and-forget and Complete only reports local snapshot
// failures.
func (r *Recorder) Complete(outcome map[string]any) error {
	r.mu.Lock()
	r.trace.FinalOutcome = outcome
	r.done = true
	snapshot := r.exportLocked()
	r.mu.Unlock()

	var firstErr error
	if r.store != nil {
		if err := r.store.Save(snapshot); err != nil {
			firstErr = err
		}
	}

	if r.client != nil {
		if r.sync {
			ctx, cancel := context.WithTimeout(context.Background(), r.client.timeout)
			defer cancel()
			if _, err := r.client.SendTrace(ctx, snapshot); err != nil && firstErr == nil {
				firstErr = err
			}
		} else {
			r.client.SendTraceAsync(snapshot)
		}
	}
	return firstErr
}

// Export returns a deep copy of the trace accumulated so far.
func (r *Recorder) Export() *Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exportLocked()
}

func (r *Recorder) exportLocked() *Trace {
	out := r.trace
	out.Metadata = copyMap(r.trace.Metadata)
	out.FinalOutcome = copyMap(r.trace.FinalOutcome)
	out.Steps = make([]Step, len(r.trace.Steps))
	for i, s := range r.trace.Steps {
		out.Steps[i] = copyStep(s)
	}
	return &out
}

// record stores a finished step, replacing any earlier step of the same
// name in place, and delivers it.
func (r *Recorder) record(step Step) error {
	r.mu.Lock()
	replaced := false
	for i, s := range r.trace.Steps {
		if s.Name == step.Name {
			r.trace.Steps[i] = step
			replaced = true
			break
		}
	}
	if !replaced {
		r.trace.Steps = append(r.trace.Steps, step)
	}
	traceID := r.trace.TraceID
	r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	if r.sync {
		ctx, cancel := context.WithTimeout(context.Background(), r.client.timeout)
		defer cancel()
		_, err := r.client.SendStep(ctx, traceID, step)
		return err
	}
	r.client.SendStepAsync(traceID, step)
	return nil
}

// StepRecorder accumulates one step's data. Not safe for concurrent use;
// each goroutine should record its own steps.
type StepRecorder struct {
	recorder *Recorder
	started  time.Time
	step     Step
	ended    bool
}

// LogInput records the step's input payload.
func (s *StepRecorder) LogInput(input map[string]any) *StepRecorder {
	s.step.Input = input
	return s
}

// LogOutput records the step's output payload.
func (s *StepRecorder) LogOutput(output map[string]any) *StepRecorder {
	s.step.Output = output
	return s
}

// SetReasoning records why the step decided what it did.
func (s *StepRecorder) SetReasoning(reasoning string) *StepRecorder {
	s.step.Reasoning = reasoning
	return s
}

// SetStatus overrides the step status. Without an override the step ends
// as success.
func (s *StepRecorder) SetStatus(status string) *StepRecorder {
	s.step.Status = status
	return s
}

// AddEvaluation opens a per-item evaluation within the step.
func (s *StepRecorder) AddEvaluation(itemID, label string) *EvaluationRecorder {
	s.step.Evaluations = append(s.step.Evaluations, Evaluation{
		ItemID: itemID,
		Label:  label,
	})
	return &EvaluationRecorder{
		step: s,
		idx:  len(s.step.Evaluations) - 1,
	}
}

// End closes the step, capturing its duration, and delivers it. Safe to
// call more than once; only the first call records. Returns the delivery
// error in sync mode, nil otherwise.
func (s *StepRecorder) End() error {
	if s.ended {
		return nil
	}
	s.ended = true

	duration := time.Since(s.started).Seconds()
	s.step.Duration = &duration
	if s.step.Status == "" {
		s.step.Status = StepStatusSuccess
	}
	return s.recorder.record(s.step)
}

// EvaluationRecorder accumulates checks for one evaluated item.
type EvaluationRecorder struct {
	step *StepRecorder
	idx  int
}

// AddCheck appends a named pass/fail signal.
func (e *EvaluationRecorder) AddCheck(name string, passed bool, detail string) *EvaluationRecorder {
	ev := &e.step.step.Evaluations[e.idx]
	ev.Checks = append(ev.Checks, Check{Name: name, Passed: passed, Detail: detail})
	return e
}

// SetStatus records the overall judgment for the item.
func (e *EvaluationRecorder) SetStatus(status string) *EvaluationRecorder {
	e.step.step.Evaluations[e.idx].Status = status
	return e
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStep(s Step) Step {
	out := s
	out.Input = copyMap(s.Input)
	out.Output = copyMap(s.Output)
	if s.Duration != nil {
		d := *s.Duration
		out.Duration = &d
	}
	out.Evaluations = make([]Evaluation, len(s.Evaluations))
	for i, ev := range s.Evaluations {
		cp := ev
		cp.Checks = make([]Check, len(ev.Checks))
		copy(cp.Checks, ev.Checks)
		out.Evaluations[i] = cp
	}
	return out
}
