// Package pipeline drives the document lifecycle state machine. A single
// dispatcher receives create/update events synchronously on the write path,
// applies the branching rules, and enqueues the slow work as background
// jobs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/jobs"
	"loom/internal/realtime"
)

// Dispatcher is the event subscriber realizing the state machine.
//
// A document is in exactly one of {embedding, awaiting_ai} at any time:
// the branches below are mutually exclusive, which is what serializes the
// embedding and AI jobs for a single document.
type Dispatcher struct {
	docs     repositories.DocumentRepository
	queue    jobs.Queue
	notifier realtime.Notifier
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(docs repositories.DocumentRepository, queue jobs.Queue, notifier realtime.Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		docs:     docs,
		queue:    queue,
		notifier: notifier,
		logger:   logger,
	}
}

// DocumentCreated applies the creation branch:
//
//   - intake documents that were never processed go to awaiting_ai and an
//     AI generation job is enqueued;
//   - otherwise, documents with content but no vector go to embedding and
//     an embedding job is enqueued;
//   - anything else stays unprocessed.
func (d *Dispatcher) DocumentCreated(ctx context.Context, doc *models.Document) error {
	switch {
	case doc.Type == models.TypeIntake && doc.ProcessedAt == nil:
		return d.transition(ctx, doc, models.StateAwaitingAI, jobs.KindGenerateDeliverables)

	case doc.Content != "" && !doc.Embedded():
		return d.transition(ctx, doc, models.StateEmbedding, jobs.KindEmbedDocument)

	default:
		return nil
	}
}

// DocumentUpdated applies the mutation branches. old is the row before the
// write, updated the row after.
//
// A content change unconditionally re-enters embedding: the old vector is
// stale and must not serve search until replaced.
func (d *Dispatcher) DocumentUpdated(ctx context.Context, old, updated *models.Document) error {
	if old.Content != updated.Content {
		if err := d.docs.ClearEmbedding(ctx, updated.ID); err != nil {
			return fmt.Errorf("invalidate stale vector: %w", err)
		}
		// The at-rest marker must be cleared before a reprocessing job is
		// dispatched; the pipeline re-sets it on completion.
		if err := d.docs.SetProcessedAt(ctx, updated.ID, nil); err != nil {
			return fmt.Errorf("clear processed marker: %w", err)
		}
		updated.Embedding = nil
		updated.ProcessedAt = nil
		return d.transition(ctx, updated, models.StateEmbedding, jobs.KindEmbedDocument)
	}

	if old.ProcessedAt == nil && updated.ProcessedAt != nil {
		return d.finishProcessing(ctx, updated.ID, updated.ProjectID)
	}

	return nil
}

// MarkProcessed is called by job handlers on completion: it sets the
// at-rest marker, transitions to processed and emits the vectorized
// notification.
func (d *Dispatcher) MarkProcessed(ctx context.Context, documentID, projectID string) error {
	now := time.Now()
	if err := d.docs.SetProcessedAt(ctx, documentID, &now); err != nil {
		return fmt.Errorf("set processed marker: %w", err)
	}
	return d.finishProcessing(ctx, documentID, projectID)
}

// MarkErrored records a pipeline failure on the document and leaves it in
// the errored state. There is no automatic retry.
func (d *Dispatcher) MarkErrored(ctx context.Context, doc *models.Document, kind string, cause error) error {
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata[models.MetaError] = cause.Error()
	metadata[models.MetaErrorKind] = kind

	if err := d.docs.SetMetadata(ctx, doc.ID, metadata); err != nil {
		return fmt.Errorf("record failure metadata: %w", err)
	}
	if err := d.docs.SetPipelineState(ctx, doc.ID, models.StateErrored); err != nil {
		return fmt.Errorf("mark errored: %w", err)
	}

	d.logger.Error("pipeline run failed",
		"document_id", doc.ID,
		"project_id", doc.ProjectID,
		"error_kind", kind,
		"error", cause,
	)

	d.notifier.Broadcast(ctx, realtime.Event{
		ProjectID: doc.ProjectID,
		Kind:      realtime.EventErrored,
		Payload:   map[string]any{"document_id": doc.ID, "error_kind": kind},
	})

	return nil
}

// finishProcessing re-reads the row before broadcasting. In-flight field
// writes can race the event, so the payload must reflect the persisted
// state, not whatever copy the caller holds.
func (d *Dispatcher) finishProcessing(ctx context.Context, documentID, projectID string) error {
	if err := d.docs.SetPipelineState(ctx, documentID, models.StateProcessed); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	fresh, err := d.docs.GetByID(ctx, documentID, projectID)
	if err != nil {
		return fmt.Errorf("reload document for broadcast: %w", err)
	}

	d.notifier.Broadcast(ctx, realtime.Event{
		ProjectID: projectID,
		Kind:      realtime.EventVectorized,
		Payload:   fresh,
	})

	return nil
}

// FlushJobs enqueues the jobs buffered during a transaction. Call it only
// after the commit has returned, so workers see the committed rows.
func (d *Dispatcher) FlushJobs(ctx context.Context, p *PendingJobs) error {
	for _, job := range p.jobs {
		if err := d.queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("enqueue %s: %w", job.Kind, err)
		}
	}
	return nil
}

func (d *Dispatcher) transition(ctx context.Context, doc *models.Document, state models.PipelineState, kind jobs.Kind) error {
	if err := d.docs.SetPipelineState(ctx, doc.ID, state); err != nil {
		return fmt.Errorf("transition to %s: %w", state, err)
	}
	doc.PipelineState = state

	job := jobs.Job{
		Kind:       kind,
		ProjectID:  doc.ProjectID,
		DocumentID: doc.ID,
	}

	d.logger.Debug("lifecycle transition",
		"document_id", doc.ID,
		"state", state,
		"job_kind", kind,
	)

	// Inside a transaction the job is buffered; the row it targets is not
	// visible to workers until commit.
	if p := pendingFrom(ctx); p != nil {
		p.jobs = append(p.jobs, job)
		return nil
	}

	if err := d.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}

	return nil
}
