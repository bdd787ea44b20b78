package stream

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/Nancy-30/LTrail/internal/model"
)

type fakeSubscriber struct {
	id   string
	fail bool

	mu     sync.Mutex
	events []model.StreamEvent
	closed bool
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(event model.StreamEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSubscriber) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func (f *fakeSubscriber) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.DiscardHandler))
}

func TestRegistryBroadcastDeliversToTraceSubscribers(t *testing.T) {
	r := newTestRegistry()
	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}
	other := &fakeSubscriber{id: "c"}

	r.Subscribe("t1", a)
	r.Subscribe("t1", b)
	r.Subscribe("t2", other)

	r.Broadcast("t1", model.PongEvent("hello"))

	if got := a.received(); got != 1 {
		t.Errorf("subscriber a received %d events, want 1", got)
	}
	if got := b.received(); got != 1 {
		t.Errorf("subscriber b received %d events, want 1", got)
	}
	if got := other.received(); got != 0 {
		t.Errorf("subscriber on other trace received %d events, want 0", got)
	}
}

func TestRegistryBroadcastNoSubscribers(t *testing.T) {
	r := newTestRegistry()
	// Must not panic or error with nobody listening.
	r.Broadcast("unknown", model.PongEvent("x"))
}

func TestRegistryPrunesFailedSubscribers(t *testing.T) {
	r := newTestRegistry()
	good := &fakeSubscriber{id: "good"}
	bad := &fakeSubscriber{id: "bad", fail: true}

	r.Subscribe("t1", good)
	r.Subscribe("t1", bad)

	r.Broadcast("t1", model.PongEvent("x"))

	if got := good.received(); got != 1 {
		t.Errorf("healthy subscriber received %d events, want 1", got)
	}
	if !bad.isClosed() {
		t.Error("failed subscriber was not closed")
	}
	if got := r.SubscriberCount("t1"); got != 1 {
		t.Errorf("SubscriberCount = %d, want 1", got)
	}
}

func TestRegistryUnsubscribePrunesEmptySet(t *testing.T) {
	r := newTestRegistry()
	a := &fakeSubscriber{id: "a"}

	r.Subscribe("t1", a)
	if got := r.TraceCount(); got != 1 {
		t.Fatalf("TraceCount = %d, want 1", got)
	}

	r.Unsubscribe("t1", "a")
	if got := r.TraceCount(); got != 0 {
		t.Errorf("TraceCount after last unsubscribe = %d, want 0", got)
	}

	// Unsubscribing again is a no-op.
	r.Unsubscribe("t1", "a")
	r.Unsubscribe("missing", "a")
}

func TestRegistrySubscribeIdempotent(t *testing.T) {
	r := newTestRegistry()
	a := &fakeSubscriber{id: "a"}

	r.Subscribe("t1", a)
	r.Subscribe("t1", a)

	if got := r.SubscriberCount("t1"); got != 1 {
		t.Errorf("SubscriberCount = %d, want 1", got)
	}

	r.Broadcast("t1", model.PongEvent("x"))
	if got := a.received(); got != 1 {
		t.Errorf("received %d events, want 1", got)
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := newTestRegistry()
	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}

	r.Subscribe("t1", a)
	r.Subscribe("t2", b)

	r.CloseAll()

	if !a.isClosed() || !b.isClosed() {
		t.Error("CloseAll did not close every subscriber")
	}
	if got := r.TraceCount(); got != 0 {
		t.Errorf("TraceCount after CloseAll = %d, want 0", got)
	}
}

func TestRegistryConcurrentBroadcastAndChurn(t *testing.T) {
	r := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sub := &fakeSubscriber{id: string(rune('a' + n))}
			for j := 0; j < 100; j++ {
				r.Subscribe("t1", sub)
				r.Broadcast("t1", model.PongEvent("x"))
				r.Unsubscribe("t1", sub.ID())
			}
		}(i)
	}
	wg.Wait()

	if got := r.TraceCount(); got != 0 {
		t.Errorf("TraceCount after churn = %d, want 0", got)
	}
}
