package pipeline

import (
	"context"

	"loom/internal/jobs"
)

type pendingKey struct{}

// PendingJobs buffers lifecycle jobs raised inside a database transaction.
// Workers read through the pool, not the transaction, so a job enqueued
// before commit can miss the row entirely or observe its pre-commit
// content. Callers install a buffer with WithPending around the
// transaction and flush it once the commit has returned.
type PendingJobs struct {
	jobs []jobs.Job
}

// WithPending returns a context that routes dispatched jobs into p
// instead of the queue.
func WithPending(ctx context.Context, p *PendingJobs) context.Context {
	return context.WithValue(ctx, pendingKey{}, p)
}

func pendingFrom(ctx context.Context) *PendingJobs {
	p, _ := ctx.Value(pendingKey{}).(*PendingJobs)
	return p
}
