package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Worker drains the queue with a fixed-size goroutine pool. Handler
// panics are contained so one bad job never takes the process down.
type Worker struct {
	queue       *MemoryQueue
	registry    *Registry
	concurrency int
	jobTimeout  time.Duration
	logger      *slog.Logger
}

// NewWorker creates a worker pool over the queue.
func NewWorker(queue *MemoryQueue, registry *Registry, concurrency int, jobTimeout time.Duration, logger *slog.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		registry:    registry,
		concurrency: concurrency,
		jobTimeout:  jobTimeout,
		logger:      logger,
	}
}

// Start launches the pool. It returns immediately; workers stop when ctx
// is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting job worker pool", "concurrency", w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker loop stopped", "worker_id", workerID)
			return
		case job := <-w.queue.Jobs():
			w.runOne(ctx, workerID, job)
		}
	}
}

func (w *Worker) runOne(ctx context.Context, workerID int, job Job) {
	handler, ok := w.registry.Get(job.Kind)
	if !ok {
		w.logger.Warn("no handler registered for job kind",
			"worker_id", workerID,
			"kind", job.Kind,
			"job_id", job.ID,
		)
		return
	}

	// Provider calls block for their duration; the per-job timeout is the
	// upper bound so no job can hold a worker indefinitely.
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job handler panic",
				"worker_id", workerID,
				"job_id", job.ID,
				"kind", job.Kind,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	start := time.Now()
	if err := handler.Run(jobCtx, job); err != nil {
		// Handlers record their own failure state on the document; this is
		// the safety net for errors they could not attribute.
		w.logger.Error("job failed",
			"worker_id", workerID,
			"job_id", job.ID,
			"kind", job.Kind,
			"document_id", job.DocumentID,
			"duration", time.Since(start),
			"error", err,
		)
		return
	}

	w.logger.Debug("job complete",
		"worker_id", workerID,
		"job_id", job.ID,
		"kind", job.Kind,
		"duration", time.Since(start),
	)
}
