package watch

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/dispatchlite/internal/dispatch/domain"
)

// subscriptionBuffer bounds how far a slow consumer may lag before events
// are dropped for it.
const subscriptionBuffer = 16

// Subscription is a live feed of dispatch events. Close it with Unsubscribe
// when the consuming view goes away.
type Subscription struct {
	ID    uuid.UUID
	C     <-chan domain.DispatchEvent
	hub   *Hub
	ch    chan domain.DispatchEvent
	types map[domain.EventType]struct{}
}

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.hub.remove(s.ID)
}

func (s *Subscription) wants(t domain.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Hub fans dispatch events out to in-process subscribers. It hides whether a
// client polls or listens: both observe the same event stream. Publishing
// never blocks; a full subscriber simply misses the event and catches up on
// its next poll.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]*Subscription)}
}

// Subscribe registers interest in the given event types. No types means all
// events.
func (h *Hub) Subscribe(types ...domain.EventType) *Subscription {
	ch := make(chan domain.DispatchEvent, subscriptionBuffer)
	sub := &Subscription{
		ID:    uuid.New(),
		C:     ch,
		hub:   h,
		ch:    ch,
		types: make(map[domain.EventType]struct{}, len(types)),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub.ID] = sub
	return sub
}

// Publish implements domain.EventPublisher.
func (h *Hub) Publish(_ context.Context, event domain.DispatchEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

var _ domain.EventPublisher = (*Hub)(nil)

// Fanout publishes each event to every sink, ignoring individual sink
// failures: event delivery is best-effort and must never fail a dispatch
// operation.
type Fanout []domain.EventPublisher

// Publish implements domain.EventPublisher.
func (f Fanout) Publish(ctx context.Context, event domain.DispatchEvent) error {
	for _, sink := range f {
		if sink == nil {
			continue
		}
		_ = sink.Publish(ctx, event)
	}
	return nil
}
