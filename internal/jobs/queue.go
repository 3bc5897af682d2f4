// Package jobs runs the asynchronous pipeline work: embedding and AI
// generation execute on a worker pool, never inline with the triggering
// request. Delivery is at-least-once; handlers are written so that
// re-dispatching after a crash is safe.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names a job type for handler dispatch.
type Kind string

const (
	KindEmbedDocument        Kind = "embed_document"
	KindGenerateDeliverables Kind = "generate_deliverables"
)

// Job is one unit of pipeline work.
type Job struct {
	ID         string
	Kind       Kind
	ProjectID  string
	DocumentID string
	EnqueuedAt time.Time
}

// Handler executes one job kind.
type Handler interface {
	Run(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Run(ctx context.Context, job Job) error { return f(ctx, job) }

// Registry maps job kinds to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

// Register binds a handler to a kind, replacing any previous binding.
func (r *Registry) Register(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Get returns the handler for a kind.
func (r *Registry) Get(kind Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Queue accepts pipeline jobs for asynchronous execution. The request
// thread only enqueues; workers do the slow provider calls.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// MemoryQueue is a bounded in-process queue feeding the worker pool.
type MemoryQueue struct {
	ch chan Job
}

// NewMemoryQueue creates a queue with the given capacity.
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{ch: make(chan Job, size)}
}

// Enqueue submits a job, assigning an ID when absent. It fails rather
// than blocks when the queue is full, so a slow pipeline surfaces as an
// error on the write path instead of a stalled request.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("job queue full (capacity %d)", cap(q.ch))
	}
}

// Jobs exposes the receive side for the worker pool.
func (q *MemoryQueue) Jobs() <-chan Job { return q.ch }
