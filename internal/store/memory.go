// Package store owns the canonical state of all traces and their step
// sequences. The in-memory implementation is the reference backend; the
// TraceStore interface keeps persistence pluggable, and Archive provides
// an optional durable snapshot sink on the side.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/Nancy-30/LTrail/internal/model"
)

// TraceStore is the storage contract the ingestion and query paths depend
// on. All operations are total over well-formed inputs except Get, which
// reports ErrNotFound for unknown ids.
type TraceStore interface {
	// List returns a page of trace summaries sorted newest-first by
	// created_at, plus the total trace count. Out-of-range offsets yield
	// an empty page, never an error.
	List(limit, offset int) ([]model.Trace, int)

	// Get returns a trace with its embedded step sequence, or ErrNotFound.
	Get(traceID string) (model.TraceDetail, error)

	// CreateOrReplace fully overwrites the trace's metadata fields and its
	// entire step sequence, recomputing status and step_count from the
	// payload. This is distinct from step upsert, which merges.
	CreateOrReplace(in model.TraceInput) model.Trace

	// UpsertStep inserts or replaces a step keyed by name. An unknown
	// trace id synthesizes a placeholder parent trace first. Returns the
	// stored step.
	UpsertStep(traceID string, step model.Step) model.Step

	// Exists reports whether a trace id is known.
	Exists(traceID string) bool

	// Count returns the number of stored traces, for health reporting.
	Count() int

	// KnownIDs returns up to limit known trace ids, as a debugging aid
	// for not-found responses.
	KnownIDs(limit int) []string
}

// Memory is the in-memory TraceStore. A single RWMutex guards both maps;
// expected load does not warrant per-trace locking here (the ingestion
// gateway adds per-trace ordering on top, see service/ingest).
//
// Mutation discipline: stored Step values and the maps nested inside them
// are never modified in place. An upsert swaps whole Step values, so the
// copied slices handed to readers stay consistent even while a concurrent
// mutation runs.
type Memory struct {
	mu     sync.RWMutex
	traces map[string]model.Trace
	steps  map[string][]model.Step
}

// NewMemory creates an empty in-memory trace store.
func NewMemory() *Memory {
	return &Memory{
		traces: make(map[string]model.Trace),
		steps:  make(map[string][]model.Step),
	}
}

func (m *Memory) List(limit, offset int) ([]model.Trace, int) {
	m.mu.RLock()
	all := make([]model.Trace, 0, len(m.traces))
	for _, t := range m.traces {
		all = append(all, t)
	}
	m.mu.RUnlock()

	// created_at is RFC 3339 UTC, so string comparison orders by time.
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt > all[j].CreatedAt
	})

	total := len(all)
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []model.Trace{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total
}

func (m *Memory) Get(traceID string) (model.TraceDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.traces[traceID]
	if !ok {
		return model.TraceDetail{}, ErrNotFound
	}
	return model.TraceDetail{Trace: t, Steps: copySteps(m.steps[traceID])}, nil
}

func (m *Memory) CreateOrReplace(in model.TraceInput) model.Trace {
	steps := make([]model.Step, len(in.Steps))
	for i, s := range in.Steps {
		steps[i] = normalizeStep(s)
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	createdAt := in.CreatedAt
	if createdAt == "" {
		createdAt = model.Timestamp(time.Now())
	}

	t := model.Trace{
		TraceID:      in.TraceID,
		Name:         in.Name,
		Metadata:     metadata,
		CreatedAt:    createdAt,
		Status:       model.DeriveStatus(steps, in.FinalOutcome),
		StepCount:    len(steps),
		FinalOutcome: in.FinalOutcome,
	}

	m.mu.Lock()
	m.traces[in.TraceID] = t
	m.steps[in.TraceID] = steps
	m.mu.Unlock()

	return t
}

func (m *Memory) UpsertStep(traceID string, step model.Step) model.Step {
	step = normalizeStep(step)

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.traces[traceID]
	if !ok {
		t = model.NewPlaceholderTrace(traceID)
	}

	existing := m.steps[traceID]
	idx := -1
	for i, s := range existing {
		if s.Name == step.Name {
			idx = i
			break
		}
	}
	if idx >= 0 {
		// Replace in place: position in the ordered sequence is preserved
		// and step_count is unchanged.
		replaced := copySteps(existing)
		replaced[idx] = step
		m.steps[traceID] = replaced
	} else {
		m.steps[traceID] = append(copySteps(existing), step)
		t.StepCount = len(existing) + 1
	}

	// Monotone toward error: a later non-error upsert never clears it.
	if step.Status == model.StepStatusError {
		t.Status = model.StatusError
	}
	m.traces[traceID] = t

	return step
}

func (m *Memory) Exists(traceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.traces[traceID]
	return ok
}

func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.traces)
}

func (m *Memory) KnownIDs(limit int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, limit)
	for id := range m.traces {
		if len(ids) >= limit {
			break
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// normalizeStep fills the default status so downstream consumers never
// see an empty one.
func normalizeStep(s model.Step) model.Step {
	if s.Status == "" {
		s.Status = model.StepStatusSuccess
	}
	return s
}

func copySteps(steps []model.Step) []model.Step {
	out := make([]model.Step, len(steps))
	copy(out, steps)
	return out
}
