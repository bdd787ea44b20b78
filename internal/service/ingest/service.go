// Package ingest is the write path for traces. It validates incoming
// payloads, applies them to the canonical store, and fans resulting
// events out to live subscribers, serializing all of this per trace so
// a subscriber's initial snapshot never interleaves with a concurrent
// mutation.
package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Nancy-30/LTrail/internal/model"
	"github.com/Nancy-30/LTrail/internal/store"
	"github.com/Nancy-30/LTrail/internal/stream"
)

// ArchiveSink receives trace snapshots after each mutation. Enqueue must
// not block and must not fail the mutation.
type ArchiveSink interface {
	Enqueue(detail model.TraceDetail)
}

// Service coordinates store mutations, live fan-out, and archival.
type Service struct {
	store    store.TraceStore
	registry *stream.Registry
	archive  ArchiveSink // nil when archival is disabled
	logger   *slog.Logger

	// locks holds one mutex per trace id. Entries are never removed;
	// trace cardinality is bounded by the in-memory store anyway.
	locks sync.Map
}

// New creates the ingestion service. archive may be nil.
func New(st store.TraceStore, registry *stream.Registry, archive ArchiveSink, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		registry: registry,
		archive:  archive,
		logger:   logger,
	}
}

func (s *Service) lock(traceID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(traceID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateTrace validates and applies a full trace create/replace, then
// broadcasts the new state to subscribers and queues an archive snapshot.
func (s *Service) CreateTrace(ctx context.Context, in model.TraceInput) (model.Trace, error) {
	if err := in.Validate(); err != nil {
		return model.Trace{}, err
	}

	mu := s.lock(in.TraceID)
	mu.Lock()
	defer mu.Unlock()

	t := s.store.CreateOrReplace(in)
	detail, err := s.store.Get(t.TraceID)
	if err != nil {
		// The trace was just written under the same lock.
		s.logger.Error("ingest: read back created trace", "trace_id", t.TraceID, "error", err)
		return t, nil
	}

	s.registry.Broadcast(t.TraceID, model.TraceUpdatedEvent(detail))
	if s.archive != nil {
		s.archive.Enqueue(detail)
	}

	s.logger.Info("ingest: trace stored",
		"trace_id", t.TraceID, "status", t.Status, "step_count", t.StepCount)
	return t, nil
}

// UpsertStep validates and applies a single step update, synthesizing a
// placeholder trace for unknown ids, then broadcasts the step to
// subscribers and queues an archive snapshot.
func (s *Service) UpsertStep(ctx context.Context, traceID string, step model.Step) (model.Step, error) {
	if err := model.ValidateStep(step); err != nil {
		return model.Step{}, err
	}

	mu := s.lock(traceID)
	mu.Lock()
	defer mu.Unlock()

	stored := s.store.UpsertStep(traceID, step)

	s.registry.Broadcast(traceID, model.StepUpdatedEvent(traceID, stored))
	if s.archive != nil {
		if detail, err := s.store.Get(traceID); err == nil {
			s.archive.Enqueue(detail)
		}
	}

	s.logger.Info("ingest: step stored",
		"trace_id", traceID, "step_name", stored.Name, "step_status", stored.Status)
	return stored, nil
}

// Attach registers a subscriber for a trace and, when the trace already
// exists, sends it the current snapshot. Taking the same per-trace lock
// as the mutation paths guarantees the snapshot and all later events
// form a consistent sequence: the subscriber misses nothing and sees no
// duplicate state.
func (s *Service) Attach(traceID string, sub stream.Subscriber) {
	mu := s.lock(traceID)
	mu.Lock()
	defer mu.Unlock()

	s.registry.Subscribe(traceID, sub)

	detail, err := s.store.Get(traceID)
	if err != nil {
		// Unknown trace: the subscriber waits for the first event.
		return
	}
	if err := sub.Send(model.InitialStateEvent(detail)); err != nil {
		s.registry.Unsubscribe(traceID, sub.ID())
		sub.Close()
	}
}

// Detach removes a subscriber. Safe to call for ids never attached.
func (s *Service) Detach(traceID string, sub stream.Subscriber) {
	s.registry.Unsubscribe(traceID, sub.ID())
}
