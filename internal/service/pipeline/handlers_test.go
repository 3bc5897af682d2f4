package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/jobs"
	"loom/internal/realtime"
	"loom/internal/service/generation"
	"loom/internal/service/llm"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Name() string    { return "stub" }
func (s *stubEmbedder) Dimension() int  { return len(s.vector) }
func (s *stubEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

type stubLLM struct {
	result *llm.Result
}

func (s *stubLLM) Name() string { return "stub" }
func (s *stubLLM) Call(ctx context.Context, systemPrompt, userPrompt string) (*llm.Result, error) {
	return s.result, nil
}

type fakeProjectRepo struct {
	projects map[string]*models.Project
}

func (f *fakeProjectRepo) Create(ctx context.Context, p *models.Project) error { return nil }

func (f *fakeProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "project not found"}
	}
	return p, nil
}

func (f *fakeProjectRepo) ListByOrganization(ctx context.Context, organizationID string) ([]models.Project, error) {
	return nil, nil
}

func (f *fakeProjectRepo) Update(ctx context.Context, p *models.Project) error { return nil }
func (f *fakeProjectRepo) Delete(ctx context.Context, id string) error         { return nil }

type fakeProjectTypeRepo struct {
	types map[string]*models.ProjectType
}

func (f *fakeProjectTypeRepo) Create(ctx context.Context, pt *models.ProjectType) error { return nil }

func (f *fakeProjectTypeRepo) GetByID(ctx context.Context, id string) (*models.ProjectType, error) {
	pt, ok := f.types[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "project type not found"}
	}
	return pt, nil
}

func (f *fakeProjectTypeRepo) Update(ctx context.Context, pt *models.ProjectType) error { return nil }

type fakeTemplateRepo struct {
	templates map[string]*models.AiTemplate
}

func (f *fakeTemplateRepo) Create(ctx context.Context, tpl *models.AiTemplate) error { return nil }

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id string) (*models.AiTemplate, error) {
	tpl, ok := f.templates[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "template not found"}
	}
	return tpl, nil
}

func (f *fakeTemplateRepo) Delete(ctx context.Context, id string) error { return nil }

func embedJob(docID string) jobs.Job {
	return jobs.Job{Kind: jobs.KindEmbedDocument, ProjectID: "p1", DocumentID: docID}
}

func TestEmbedHandlerVanishedDocumentIsNoop(t *testing.T) {
	repo := newFakeDocumentRepo()
	d, queue, notifier := newTestDispatcher(repo)
	h := NewEmbedHandler(repo, &stubEmbedder{vector: []float32{0.1}}, d, slog.Default())

	if err := h.Run(context.Background(), embedJob("gone")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(queue.jobs) != 0 || len(notifier.events) != 0 {
		t.Error("vanished document produced side effects")
	}
}

func TestEmbedHandlerEmptyContentResetsState(t *testing.T) {
	doc := &models.Document{
		ID:            "d1",
		ProjectID:     "p1",
		PipelineState: models.StateEmbedding,
	}
	repo := newFakeDocumentRepo(doc)
	d, _, _ := newTestDispatcher(repo)
	h := NewEmbedHandler(repo, &stubEmbedder{vector: []float32{0.1}}, d, slog.Default())

	if err := h.Run(context.Background(), embedJob("d1")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if doc.PipelineState != models.StateUnprocessed {
		t.Errorf("state = %s, want %s", doc.PipelineState, models.StateUnprocessed)
	}
}

func TestEmbedHandlerSuccess(t *testing.T) {
	doc := &models.Document{
		ID:            "d1",
		ProjectID:     "p1",
		Content:       "login flow",
		PipelineState: models.StateEmbedding,
	}
	repo := newFakeDocumentRepo(doc)
	d, _, notifier := newTestDispatcher(repo)
	h := NewEmbedHandler(repo, &stubEmbedder{vector: []float32{0.1, 0.2}}, d, slog.Default())

	if err := h.Run(context.Background(), embedJob("d1")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(doc.Embedding) != 2 {
		t.Errorf("embedding = %v, want persisted vector", doc.Embedding)
	}
	if doc.PipelineState != models.StateProcessed || doc.ProcessedAt == nil {
		t.Errorf("document not settled: state=%s processedAt=%v", doc.PipelineState, doc.ProcessedAt)
	}
	if len(notifier.events) != 1 || notifier.events[0].Kind != realtime.EventVectorized {
		t.Fatalf("events = %+v, want one vectorized event", notifier.events)
	}
}

func TestEmbedHandlerFailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{
			name:     "provider failure",
			err:      &domain.ProviderError{Provider: "openai", Op: "embeddings", Err: errors.New("status 429")},
			wantKind: failureProvider,
		},
		{
			name:     "empty embedding",
			err:      &domain.EmptyEmbeddingError{Provider: "openai"},
			wantKind: failureEmptyEmbedding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &models.Document{
				ID:        "d1",
				ProjectID: "p1",
				Content:   "login flow",
			}
			repo := newFakeDocumentRepo(doc)
			d, _, notifier := newTestDispatcher(repo)
			h := NewEmbedHandler(repo, &stubEmbedder{err: tt.err}, d, slog.Default())

			if err := h.Run(context.Background(), embedJob("d1")); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if doc.PipelineState != models.StateErrored {
				t.Errorf("state = %s, want %s", doc.PipelineState, models.StateErrored)
			}
			if got := doc.Metadata[models.MetaErrorKind]; got != tt.wantKind {
				t.Errorf("error_kind = %v, want %s", got, tt.wantKind)
			}
			if len(notifier.events) != 1 {
				t.Errorf("events = %d, want one errored event", len(notifier.events))
			}
		})
	}
}

func generateFixture(result *llm.Result) (*fakeDocumentRepo, *fakeQueue, *GenerateHandler, *models.Document) {
	intake := &models.Document{
		ID:            "intake-1",
		ProjectID:     "p1",
		Type:          models.TypeIntake,
		Name:          "Kickoff",
		Content:       "build a billing portal",
		CreatedBy:     "user-1",
		PipelineState: models.StateAwaitingAI,
	}
	repo := newFakeDocumentRepo(intake)
	d, queue, _ := newTestDispatcher(repo)

	projects := &fakeProjectRepo{projects: map[string]*models.Project{
		"p1": {ID: "p1", ClientID: "c1", ProjectTypeID: "pt1", Name: "Billing Portal", Description: "invoicing"},
	}}
	projectTypes := &fakeProjectTypeRepo{types: map[string]*models.ProjectType{
		"pt1": {
			ID:   "pt1",
			Name: "Software Delivery",
			DocumentSchema: []models.SchemaSlot{
				{Key: "intake", Label: "Intake"},
				{Key: "user_story", Label: "User Story"},
			},
			Workflow: []models.WorkflowStep{
				{FromKey: "intake", ToKey: "user_story", AiTemplateID: "tpl1"},
			},
		},
	}}
	templates := &fakeTemplateRepo{templates: map[string]*models.AiTemplate{
		"tpl1": {
			ID:           "tpl1",
			Name:         "stories",
			SystemPrompt: "You write user stories.",
			UserPrompt:   "Project {{project_name}}. Sources:\n{{input}}",
		},
	}}

	generator := generation.NewService(
		&stubEmbedder{vector: []float32{0.1, 0.2}},
		&stubLLM{result: result},
		repo,
		NewCreator(repo, d),
		slog.Default(),
	)
	h := NewGenerateHandler(repo, projects, projectTypes, templates, generator, d, slog.Default())
	return repo, queue, h, intake
}

func generateJob() jobs.Job {
	return jobs.Job{Kind: jobs.KindGenerateDeliverables, ProjectID: "p1", DocumentID: "intake-1"}
}

func TestGenerateHandlerWorkflowStrategyCreatesChildren(t *testing.T) {
	result := &llm.Result{
		Status: llm.StatusOK,
		Items: []llm.Item{
			{Title: "Login", Body: "As a user I can log in", Criteria: []string{"session issued"}},
			{Title: "Invoices", Body: "As a user I can list invoices", Criteria: []string{}},
		},
	}
	repo, queue, h, intake := generateFixture(result)

	if err := h.Run(context.Background(), generateJob()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var children []*models.Document
	for _, d := range repo.docs {
		if d.ParentID != nil && *d.ParentID == intake.ID {
			children = append(children, d)
		}
	}
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
	for _, child := range children {
		if child.Type != "user_story" {
			t.Errorf("child type = %s, want user_story", child.Type)
		}
		if child.CreatedBy != intake.CreatedBy {
			t.Errorf("child created_by = %s, want %s", child.CreatedBy, intake.CreatedBy)
		}
	}

	// Generated children enter the embedding pipeline like user-created ones.
	var embedJobs int
	for _, job := range queue.jobs {
		if job.Kind == jobs.KindEmbedDocument {
			embedJobs++
		}
	}
	if embedJobs != 2 {
		t.Errorf("embed jobs = %d, want 2", embedJobs)
	}

	stored := repo.docs[intake.ID]
	if stored.PipelineState != models.StateProcessed || stored.ProcessedAt == nil {
		t.Errorf("intake not settled: state=%s", stored.PipelineState)
	}
}

func TestGenerateHandlerZeroItemsStillProcessed(t *testing.T) {
	result := &llm.Result{Status: llm.StatusOK, Items: []llm.Item{}}
	repo, queue, h, intake := generateFixture(result)

	if err := h.Run(context.Background(), generateJob()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stored := repo.docs[intake.ID]
	if stored.PipelineState != models.StateProcessed {
		t.Errorf("state = %s, want %s", stored.PipelineState, models.StateProcessed)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("jobs = %+v, want none for a barren result", queue.jobs)
	}
}

func TestGenerateHandlerLLMFailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		result   *llm.Result
		wantKind string
	}{
		{
			name:     "connection failure",
			result:   &llm.Result{Status: llm.StatusError, ErrorType: llm.ErrorTypeConnection, Message: "dial tcp: refused"},
			wantKind: failureConnection,
		},
		{
			name:     "unparseable output",
			result:   &llm.Result{Status: llm.StatusError, ErrorType: llm.ErrorTypeJSONParse, Message: "no JSON found"},
			wantKind: failureJSONParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _, h, intake := generateFixture(tt.result)

			if err := h.Run(context.Background(), generateJob()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			stored := repo.docs[intake.ID]
			if stored.PipelineState != models.StateErrored {
				t.Errorf("state = %s, want %s", stored.PipelineState, models.StateErrored)
			}
			if got := stored.Metadata[models.MetaErrorKind]; got != tt.wantKind {
				t.Errorf("error_kind = %v, want %s", got, tt.wantKind)
			}
			if msg, _ := stored.Metadata[models.MetaError].(string); !strings.Contains(msg, tt.result.Message) {
				t.Errorf("error message = %q, want it to mention %q", msg, tt.result.Message)
			}
		})
	}
}

func TestGenerateHandlerIntakeFallsBackToBuiltinStrategy(t *testing.T) {
	result := &llm.Result{Status: llm.StatusOK, Items: []llm.Item{{Title: "Login", Body: "story", Criteria: []string{}}}}
	repo, _, h, intake := generateFixture(result)

	// Strip the workflow so only the built-in policy can apply.
	h.projectTypes.(*fakeProjectTypeRepo).types["pt1"].Workflow = nil

	if err := h.Run(context.Background(), generateJob()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stored := repo.docs[intake.ID]
	if stored.PipelineState != models.StateProcessed {
		t.Errorf("state = %s, want %s", stored.PipelineState, models.StateProcessed)
	}
}

func TestGenerateHandlerNonIntakeWithoutWorkflowErrors(t *testing.T) {
	result := &llm.Result{Status: llm.StatusOK}
	repo, _, h, intake := generateFixture(result)

	intake.Type = "user_story"
	repo.docs[intake.ID] = intake
	h.projectTypes.(*fakeProjectTypeRepo).types["pt1"].Workflow = nil

	if err := h.Run(context.Background(), generateJob()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stored := repo.docs[intake.ID]
	if stored.PipelineState != models.StateErrored {
		t.Errorf("state = %s, want %s", stored.PipelineState, models.StateErrored)
	}
	if got := stored.Metadata[models.MetaErrorKind]; got != failureInternal {
		t.Errorf("error_kind = %v, want %s", got, failureInternal)
	}
}

func TestGenerateHandlerVanishedDocumentIsNoop(t *testing.T) {
	repo := newFakeDocumentRepo()
	d, queue, _ := newTestDispatcher(repo)
	h := NewGenerateHandler(
		repo,
		&fakeProjectRepo{projects: map[string]*models.Project{}},
		&fakeProjectTypeRepo{types: map[string]*models.ProjectType{}},
		&fakeTemplateRepo{templates: map[string]*models.AiTemplate{}},
		generation.NewService(&stubEmbedder{vector: []float32{0.1}}, &stubLLM{}, repo, NewCreator(repo, d), slog.Default()),
		d,
		slog.Default(),
	)

	if err := h.Run(context.Background(), generateJob()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Errorf("jobs = %+v, want none", queue.jobs)
	}
}
