// Package stream manages live trace subscriptions and event fan-out to
// WebSocket clients.
package stream

import (
	"log/slog"
	"sync"

	"github.com/Nancy-30/LTrail/internal/model"
)

// Subscriber is a destination for stream events. Send must not block;
// it reports an error when the subscriber can no longer accept events,
// at which point the registry removes and closes it.
type Subscriber interface {
	ID() string
	Send(event model.StreamEvent) error
	Close()
}

// Registry tracks which subscribers watch which trace. Fan-out is best
// effort: a subscriber that fails to accept an event is pruned without
// affecting delivery to the others or the mutation that triggered it.
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[string]Subscriber // trace id -> subscriber id -> subscriber
}

// NewRegistry creates an empty subscription registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		subs:   make(map[string]map[string]Subscriber),
	}
}

// Subscribe registers sub for events on traceID. Registering the same
// subscriber id twice is idempotent.
func (r *Registry) Subscribe(traceID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[traceID]
	if !ok {
		set = make(map[string]Subscriber)
		r.subs[traceID] = set
	}
	set[sub.ID()] = sub
}

// Unsubscribe removes a subscriber from a trace's set. Unknown ids are a
// no-op. The last subscriber leaving removes the trace's entry entirely.
func (r *Registry) Unsubscribe(traceID, subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(traceID, subID)
}

// remove must be called with the write lock held.
func (r *Registry) remove(traceID, subID string) {
	set, ok := r.subs[traceID]
	if !ok {
		return
	}
	delete(set, subID)
	if len(set) == 0 {
		delete(r.subs, traceID)
	}
}

// Broadcast delivers event to every subscriber of traceID. Subscribers
// whose Send fails are collected, then removed and closed. No subscribers
// is a no-op.
func (r *Registry) Broadcast(traceID string, event model.StreamEvent) {
	r.mu.RLock()
	set := r.subs[traceID]
	snapshot := make([]Subscriber, 0, len(set))
	for _, sub := range set {
		snapshot = append(snapshot, sub)
	}
	r.mu.RUnlock()

	var failed []Subscriber
	for _, sub := range snapshot {
		if err := sub.Send(event); err != nil {
			failed = append(failed, sub)
		}
	}
	if len(failed) == 0 {
		return
	}

	r.mu.Lock()
	for _, sub := range failed {
		r.remove(traceID, sub.ID())
	}
	r.mu.Unlock()

	for _, sub := range failed {
		r.logger.Debug("stream: pruned unresponsive subscriber",
			"trace_id", traceID, "subscriber_id", sub.ID())
		sub.Close()
	}
}

// SubscriberCount returns the number of subscribers watching traceID.
func (r *Registry) SubscriberCount(traceID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[traceID])
}

// TraceCount returns the number of traces with at least one subscriber.
func (r *Registry) TraceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// CloseAll disconnects every subscriber, for server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.subs
	r.subs = make(map[string]map[string]Subscriber)
	r.mu.Unlock()

	for _, set := range all {
		for _, sub := range set {
			sub.Close()
		}
	}
}
