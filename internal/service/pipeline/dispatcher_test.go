package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/jobs"
	"loom/internal/realtime"
)

// fakeDocumentRepo is an in-memory DocumentRepository for dispatcher tests.
type fakeDocumentRepo struct {
	docs map[string]*models.Document

	clearedEmbedding []string
	neighbors        []models.ScoredDocument
	lastSearch       repositories.VectorSearchOptions
}

func newFakeDocumentRepo(docs ...*models.Document) *fakeDocumentRepo {
	repo := &fakeDocumentRepo{docs: map[string]*models.Document{}}
	for _, d := range docs {
		repo.docs[d.ID] = d
	}
	return repo
}

func (f *fakeDocumentRepo) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = "doc-" + time.Now().Format("150405.000000000")
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocumentRepo) GetByID(ctx context.Context, id, projectID string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok || doc.ProjectID != projectID {
		return nil, &domain.NotFoundError{Message: "document not found"}
	}
	snapshot := *doc
	return &snapshot, nil
}

func (f *fakeDocumentRepo) ListByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	var out []models.Document
	for _, d := range f.docs {
		if d.ProjectID == projectID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDocumentRepo) Update(ctx context.Context, doc *models.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocumentRepo) Delete(ctx context.Context, id, projectID string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeDocumentRepo) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	f.docs[id].Embedding = vector
	return nil
}

func (f *fakeDocumentRepo) ClearEmbedding(ctx context.Context, id string) error {
	f.clearedEmbedding = append(f.clearedEmbedding, id)
	f.docs[id].Embedding = nil
	return nil
}

func (f *fakeDocumentRepo) SetPipelineState(ctx context.Context, id string, state models.PipelineState) error {
	f.docs[id].PipelineState = state
	return nil
}

func (f *fakeDocumentRepo) SetProcessedAt(ctx context.Context, id string, at *time.Time) error {
	f.docs[id].ProcessedAt = at
	return nil
}

func (f *fakeDocumentRepo) SetMetadata(ctx context.Context, id string, metadata map[string]any) error {
	f.docs[id].Metadata = metadata
	return nil
}

func (f *fakeDocumentRepo) NearestNeighbors(ctx context.Context, query []float32, opts repositories.VectorSearchOptions) ([]models.ScoredDocument, error) {
	f.lastSearch = opts
	return f.neighbors, nil
}

type fakeQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeNotifier struct {
	events []realtime.Event
}

func (n *fakeNotifier) Broadcast(ctx context.Context, event realtime.Event) {
	n.events = append(n.events, event)
}

func newTestDispatcher(repo *fakeDocumentRepo) (*Dispatcher, *fakeQueue, *fakeNotifier) {
	queue := &fakeQueue{}
	notifier := &fakeNotifier{}
	return NewDispatcher(repo, queue, notifier, slog.Default()), queue, notifier
}

func TestDocumentCreatedIntakeTriggersGeneration(t *testing.T) {
	doc := &models.Document{
		ID:        "d1",
		ProjectID: "p1",
		Type:      models.TypeIntake,
		Content:   "build a billing portal",
	}
	repo := newFakeDocumentRepo(doc)
	d, queue, _ := newTestDispatcher(repo)

	if err := d.DocumentCreated(context.Background(), doc); err != nil {
		t.Fatalf("DocumentCreated: %v", err)
	}

	if doc.PipelineState != models.StateAwaitingAI {
		t.Errorf("state = %s, want %s", doc.PipelineState, models.StateAwaitingAI)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].Kind != jobs.KindGenerateDeliverables {
		t.Fatalf("jobs = %+v, want one generate job", queue.jobs)
	}
}

func TestDocumentCreatedContentTriggersEmbedding(t *testing.T) {
	doc := &models.Document{
		ID:        "d1",
		ProjectID: "p1",
		Type:      "user_story",
		Content:   "As a user I want to log in",
	}
	repo := newFakeDocumentRepo(doc)
	d, queue, _ := newTestDispatcher(repo)

	if err := d.DocumentCreated(context.Background(), doc); err != nil {
		t.Fatalf("DocumentCreated: %v", err)
	}

	if doc.PipelineState != models.StateEmbedding {
		t.Errorf("state = %s, want %s", doc.PipelineState, models.StateEmbedding)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].Kind != jobs.KindEmbedDocument {
		t.Fatalf("jobs = %+v, want one embed job", queue.jobs)
	}
}

func TestDocumentCreatedEmptyContentStaysUnprocessed(t *testing.T) {
	doc := &models.Document{
		ID:            "d1",
		ProjectID:     "p1",
		Type:          "user_story",
		PipelineState: models.StateUnprocessed,
	}
	repo := newFakeDocumentRepo(doc)
	d, queue, _ := newTestDispatcher(repo)

	if err := d.DocumentCreated(context.Background(), doc); err != nil {
		t.Fatalf("DocumentCreated: %v", err)
	}

	if doc.PipelineState != models.StateUnprocessed {
		t.Errorf("state = %s, want unchanged", doc.PipelineState)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("jobs = %+v, want none", queue.jobs)
	}
}

func TestDocumentUpdatedContentChangeInvalidatesVector(t *testing.T) {
	processedAt := time.Now()
	doc := &models.Document{
		ID:            "d1",
		ProjectID:     "p1",
		Type:          "user_story",
		Content:       "new content",
		Embedding:     []float32{0.1, 0.2},
		ProcessedAt:   &processedAt,
		PipelineState: models.StateProcessed,
	}
	repo := newFakeDocumentRepo(doc)
	d, queue, _ := newTestDispatcher(repo)

	old := *doc
	old.Content = "old content"

	if err := d.DocumentUpdated(context.Background(), &old, doc); err != nil {
		t.Fatalf("DocumentUpdated: %v", err)
	}

	if len(repo.clearedEmbedding) != 1 {
		t.Error("stale vector was not cleared")
	}
	if doc.ProcessedAt != nil {
		t.Error("processed marker not cleared")
	}
	if doc.PipelineState != models.StateEmbedding {
		t.Errorf("state = %s, want %s", doc.PipelineState, models.StateEmbedding)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].Kind != jobs.KindEmbedDocument {
		t.Fatalf("jobs = %+v, want one embed job", queue.jobs)
	}
}

func TestDocumentUpdatedUnchangedContentNoDispatch(t *testing.T) {
	doc := &models.Document{
		ID:        "d1",
		ProjectID: "p1",
		Content:   "same",
	}
	repo := newFakeDocumentRepo(doc)
	d, queue, _ := newTestDispatcher(repo)

	old := *doc
	if err := d.DocumentUpdated(context.Background(), &old, doc); err != nil {
		t.Fatalf("DocumentUpdated: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("jobs = %+v, want none", queue.jobs)
	}
	if len(repo.clearedEmbedding) != 0 {
		t.Error("vector cleared without a content change")
	}
}

func TestMarkProcessedBroadcastsFreshRow(t *testing.T) {
	doc := &models.Document{
		ID:            "d1",
		ProjectID:     "p1",
		Name:          "story",
		PipelineState: models.StateEmbedding,
	}
	repo := newFakeDocumentRepo(doc)
	d, _, notifier := newTestDispatcher(repo)

	if err := d.MarkProcessed(context.Background(), "d1", "p1"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	if doc.ProcessedAt == nil {
		t.Error("processed marker not set")
	}
	if doc.PipelineState != models.StateProcessed {
		t.Errorf("state = %s, want %s", doc.PipelineState, models.StateProcessed)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("events = %d, want 1", len(notifier.events))
	}
	event := notifier.events[0]
	if event.Kind != realtime.EventVectorized {
		t.Errorf("event kind = %s, want %s", event.Kind, realtime.EventVectorized)
	}
	// The payload must be the re-read row, reflecting the persisted state.
	payload, ok := event.Payload.(*models.Document)
	if !ok {
		t.Fatalf("payload type = %T, want *models.Document", event.Payload)
	}
	if payload.PipelineState != models.StateProcessed || payload.ProcessedAt == nil {
		t.Errorf("broadcast payload is stale: %+v", payload)
	}
}

func TestMarkErroredRecordsFailure(t *testing.T) {
	doc := &models.Document{
		ID:        "d1",
		ProjectID: "p1",
	}
	repo := newFakeDocumentRepo(doc)
	d, _, notifier := newTestDispatcher(repo)

	cause := errors.New("connection refused")
	if err := d.MarkErrored(context.Background(), doc, failureConnection, cause); err != nil {
		t.Fatalf("MarkErrored: %v", err)
	}

	stored := repo.docs["d1"]
	if stored.PipelineState != models.StateErrored {
		t.Errorf("state = %s, want %s", stored.PipelineState, models.StateErrored)
	}
	if stored.Metadata[models.MetaError] != "connection refused" {
		t.Errorf("metadata error = %v", stored.Metadata[models.MetaError])
	}
	if stored.Metadata[models.MetaErrorKind] != failureConnection {
		t.Errorf("metadata error_kind = %v", stored.Metadata[models.MetaErrorKind])
	}

	if len(notifier.events) != 1 || notifier.events[0].Kind != realtime.EventErrored {
		t.Fatalf("events = %+v, want one errored event", notifier.events)
	}
}

func TestTransitionDefersJobsUntilFlush(t *testing.T) {
	doc := &models.Document{
		ID:        "d1",
		ProjectID: "p1",
		Type:      models.TypeIntake,
		Content:   "build a billing portal",
	}
	repo := newFakeDocumentRepo(doc)
	d, queue, _ := newTestDispatcher(repo)

	pending := &PendingJobs{}
	ctx := WithPending(context.Background(), pending)

	if err := d.DocumentCreated(ctx, doc); err != nil {
		t.Fatalf("DocumentCreated: %v", err)
	}

	// The state transition is part of the transaction; the job is not.
	if doc.PipelineState != models.StateAwaitingAI {
		t.Errorf("state = %s, want %s", doc.PipelineState, models.StateAwaitingAI)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("jobs = %+v, want none before flush", queue.jobs)
	}
	if len(pending.jobs) != 1 {
		t.Fatalf("pending = %+v, want one buffered job", pending.jobs)
	}

	if err := d.FlushJobs(context.Background(), pending); err != nil {
		t.Fatalf("FlushJobs: %v", err)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].Kind != jobs.KindGenerateDeliverables {
		t.Fatalf("jobs = %+v, want one generate job after flush", queue.jobs)
	}
}
