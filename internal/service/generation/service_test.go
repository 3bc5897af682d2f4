package generation

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/service/llm"
)

type fakeEmbedder struct {
	vec []float32
	err error

	lastText string
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return len(f.vec) }
func (f *fakeEmbedder) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.lastText = text
	return f.vec, f.err
}

type fakeLLM struct {
	result *llm.Result
	err    error

	lastSystem string
	lastUser   string
}

func (f *fakeLLM) Name() string { return "fake-llm" }
func (f *fakeLLM) Call(ctx context.Context, systemPrompt, userPrompt string) (*llm.Result, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	return f.result, f.err
}

// retrievalRepo only answers NearestNeighbors; the rest of the interface
// is unused by the generation service.
type retrievalRepo struct {
	neighbors []models.ScoredDocument
	err       error

	lastOpts repositories.VectorSearchOptions
}

func (r *retrievalRepo) NearestNeighbors(ctx context.Context, query []float32, opts repositories.VectorSearchOptions) ([]models.ScoredDocument, error) {
	r.lastOpts = opts
	return r.neighbors, r.err
}

func (r *retrievalRepo) Create(context.Context, *models.Document) error { return nil }
func (r *retrievalRepo) GetByID(context.Context, string, string) (*models.Document, error) {
	return nil, &domain.NotFoundError{Message: "not found"}
}
func (r *retrievalRepo) ListByProject(context.Context, string) ([]models.Document, error) {
	return nil, nil
}
func (r *retrievalRepo) Update(context.Context, *models.Document) error { return nil }
func (r *retrievalRepo) Delete(context.Context, string, string) error   { return nil }
func (r *retrievalRepo) SetEmbedding(context.Context, string, []float32) error {
	return nil
}
func (r *retrievalRepo) ClearEmbedding(context.Context, string) error { return nil }
func (r *retrievalRepo) SetPipelineState(context.Context, string, models.PipelineState) error {
	return nil
}
func (r *retrievalRepo) SetProcessedAt(context.Context, string, *time.Time) error { return nil }
func (r *retrievalRepo) SetMetadata(context.Context, string, map[string]any) error {
	return nil
}

type recordingCreator struct {
	created []*models.Document
	err     error
}

func (c *recordingCreator) CreateDocument(ctx context.Context, doc *models.Document) error {
	if c.err != nil {
		return c.err
	}
	c.created = append(c.created, doc)
	return nil
}

func scored(docType, name, content string, similarity float64) models.ScoredDocument {
	return models.ScoredDocument{
		Document:   models.Document{Type: docType, Name: name, Content: content},
		Similarity: similarity,
	}
}

func okResult(items ...llm.Item) *llm.Result {
	return &llm.Result{Status: llm.StatusOK, Items: items}
}

func testProject() *models.Project {
	return &models.Project{
		ID:          "p1",
		Name:        "Billing Portal",
		Description: "Self-serve invoicing",
	}
}

func testParent() *models.Document {
	return &models.Document{ID: "intake-1", ProjectID: "p1", Type: models.TypeIntake, CreatedBy: "user-1"}
}

func TestGenerateDeliverablesCreatesChildDocuments(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	repo := &retrievalRepo{neighbors: []models.ScoredDocument{
		scored("intake", "Kickoff notes", "We need invoices", 0.91),
		scored("intake", "Follow-up", "And reminders", 0.74),
	}}
	driver := &fakeLLM{result: okResult(
		llm.Item{Title: "Invoice creation", Body: "As an admin...", Criteria: []string{"PDF export"}},
		llm.Item{Title: "Payment reminders", Body: "As a customer...", Criteria: []string{}},
	)}
	creator := &recordingCreator{}

	svc := NewService(embedder, driver, repo, creator, slog.Default())

	outcome, err := svc.GenerateDeliverables(context.Background(), testProject(), testParent(), SoftwareDeliverablesStrategy{})
	require.NoError(t, err)

	assert.Len(t, outcome.Created, 2)
	assert.Equal(t, 2, outcome.ContextSize)
	assert.False(t, outcome.Degraded)

	// Retrieval is capped and unfloored for generation.
	assert.Equal(t, retrievalK, repo.lastOpts.K)
	assert.Zero(t, repo.lastOpts.MinSimilarity)

	require.Len(t, creator.created, 2)
	first := creator.created[0]
	assert.Equal(t, "p1", first.ProjectID)
	require.NotNil(t, first.ParentID)
	assert.Equal(t, "intake-1", *first.ParentID)
	assert.Equal(t, "user-1", first.CreatedBy)
	assert.Equal(t, []string{"PDF export"}, first.Metadata[models.MetaCriteria])

	// Retrieved context reaches the prompt.
	assert.Contains(t, driver.lastUser, "Kickoff notes")
	assert.Contains(t, driver.lastUser, "Billing Portal")
}

func TestGenerateDeliverablesDegradesOnEmptyRetrieval(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{0.1}}
	repo := &retrievalRepo{}
	driver := &fakeLLM{result: okResult(llm.Item{Title: "A", Body: "B"})}
	creator := &recordingCreator{}

	svc := NewService(embedder, driver, repo, creator, slog.Default())

	outcome, err := svc.GenerateDeliverables(context.Background(), testProject(), testParent(), SoftwareDeliverablesStrategy{})
	require.NoError(t, err)

	assert.True(t, outcome.Degraded)
	assert.Zero(t, outcome.ContextSize)
	assert.Len(t, outcome.Created, 1)
	assert.Contains(t, driver.lastUser, "(no source documents available)")
}

func TestGenerateDeliverablesZeroItemsIsSuccess(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{0.1}}
	repo := &retrievalRepo{neighbors: []models.ScoredDocument{scored("intake", "n", "c", 0.8)}}
	driver := &fakeLLM{result: okResult()}
	creator := &recordingCreator{}

	svc := NewService(embedder, driver, repo, creator, slog.Default())

	outcome, err := svc.GenerateDeliverables(context.Background(), testProject(), testParent(), SoftwareDeliverablesStrategy{})
	require.NoError(t, err)
	assert.Empty(t, outcome.Created)
	assert.Empty(t, creator.created)
}

func TestGenerateDeliverablesEmbeddingFailureAborts(t *testing.T) {
	embedder := &fakeEmbedder{err: &domain.ProviderError{Provider: "fake", Op: "embeddings", Err: errors.New("timeout")}}
	repo := &retrievalRepo{}
	driver := &fakeLLM{}
	creator := &recordingCreator{}

	svc := NewService(embedder, driver, repo, creator, slog.Default())

	_, err := svc.GenerateDeliverables(context.Background(), testProject(), testParent(), SoftwareDeliverablesStrategy{})
	require.Error(t, err)

	var provErr *domain.ProviderError
	assert.ErrorAs(t, err, &provErr)
	assert.Empty(t, creator.created)
}

func TestGenerateDeliverablesLLMFailureIsTyped(t *testing.T) {
	tests := []struct {
		name      string
		result    *llm.Result
		errorType string
	}{
		{
			name:      "connection failure",
			result:    &llm.Result{Status: llm.StatusError, ErrorType: llm.ErrorTypeConnection, Message: "dial tcp: refused"},
			errorType: llm.ErrorTypeConnection,
		},
		{
			name:      "parse failure",
			result:    &llm.Result{Status: llm.StatusError, ErrorType: llm.ErrorTypeJSONParse, Message: "no JSON object or array in output"},
			errorType: llm.ErrorTypeJSONParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := &fakeEmbedder{vec: []float32{0.1}}
			repo := &retrievalRepo{neighbors: []models.ScoredDocument{scored("intake", "n", "c", 0.9)}}
			driver := &fakeLLM{result: tt.result}
			creator := &recordingCreator{}

			svc := NewService(embedder, driver, repo, creator, slog.Default())

			_, err := svc.GenerateDeliverables(context.Background(), testProject(), testParent(), SoftwareDeliverablesStrategy{})
			require.Error(t, err)

			var llmErr *LLMError
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.errorType, llmErr.ErrorType)
			assert.Empty(t, creator.created)
		})
	}
}

func TestRenderTemplate(t *testing.T) {
	out := renderTemplate("Hello {{name}}, {{missing}} and {{name}} again", map[string]string{"name": "world"})
	assert.Equal(t, "Hello world, {{missing}} and world again", out)
}
