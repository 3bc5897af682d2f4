// Package realtime broadcasts pipeline progress to per-project observers.
// Delivery is fire-and-forget: a missed event is recoverable by the client
// re-fetching state, so nothing here blocks the pipeline.
package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// Event kinds emitted by the pipeline.
const (
	EventVectorized = "document.vectorized"
	EventGenerated  = "documents.generated"
	EventErrored    = "document.errored"
)

// Event is one broadcast message. Payload carries the full, freshly
// re-read document state, never an in-memory copy that may predate the
// pipeline's final writes.
type Event struct {
	ProjectID string `json:"project_id"`
	Kind      string `json:"kind"`
	Payload   any    `json:"payload"`
}

// Notifier publishes events to a project's observers.
type Notifier interface {
	Broadcast(ctx context.Context, event Event)
}

// Subscription is one observer's feed. C is closed when the subscription
// ends.
type Subscription struct {
	C      chan Event
	cancel func()
	once   sync.Once
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Hub fans events out to in-process subscribers keyed by project.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers an observer for one project's events.
func (h *Hub) Subscribe(projectID string) *Subscription {
	sub := &Subscription{C: make(chan Event, 16)}
	sub.cancel = func() {
		h.mu.Lock()
		if set, ok := h.subs[projectID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, projectID)
			}
		}
		h.mu.Unlock()
		close(sub.C)
	}

	h.mu.Lock()
	if h.subs[projectID] == nil {
		h.subs[projectID] = make(map[*Subscription]struct{})
	}
	h.subs[projectID][sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Broadcast delivers the event to every current subscriber of its
// project. Slow subscribers are skipped rather than awaited.
func (h *Hub) Broadcast(_ context.Context, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.ProjectID] {
		select {
		case sub.C <- event:
		default:
			h.logger.Debug("dropping event for slow subscriber",
				"project_id", event.ProjectID,
				"kind", event.Kind,
			)
		}
	}
}
