package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/jobs"
	"loom/internal/service/embedding"
	"loom/internal/service/generation"
	"loom/internal/service/llm"
)

// Failure kinds recorded in document metadata.
const (
	failureProvider       = "provider"
	failureEmptyEmbedding = "empty_embedding"
	failureJSONParse      = "json_parse"
	failureConnection     = "connection"
	failureInternal       = "internal"
)

// EmbedHandler executes embedding jobs: one provider call, one idempotent
// vector overwrite, then the processed transition.
type EmbedHandler struct {
	docs       repositories.DocumentRepository
	embedder   embedding.Driver
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewEmbedHandler creates the embedding job handler.
func NewEmbedHandler(docs repositories.DocumentRepository, embedder embedding.Driver, dispatcher *Dispatcher, logger *slog.Logger) *EmbedHandler {
	return &EmbedHandler{
		docs:       docs,
		embedder:   embedder,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run embeds the document's content. Provider errors are caught here, the
// job boundary: recorded on the document, logged, never re-raised to crash
// the worker.
func (h *EmbedHandler) Run(ctx context.Context, job jobs.Job) error {
	doc, err := h.docs.GetByID(ctx, job.DocumentID, job.ProjectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Deleted between enqueue and execution; nothing to do.
			h.logger.Debug("embed target vanished", "document_id", job.DocumentID)
			return nil
		}
		return fmt.Errorf("load document: %w", err)
	}

	if doc.Content == "" {
		h.logger.Debug("skipping embed of empty document", "document_id", doc.ID)
		return h.docs.SetPipelineState(ctx, doc.ID, models.StateUnprocessed)
	}

	vector, err := h.embedder.GetEmbedding(ctx, doc.Content)
	if err != nil {
		return h.dispatcher.MarkErrored(ctx, doc, embedFailureKind(err), err)
	}

	// Overwrite is idempotent: a crashed run that already persisted this
	// vector is safely repeated by the redispatch.
	if err := h.docs.SetEmbedding(ctx, doc.ID, vector); err != nil {
		return fmt.Errorf("persist vector: %w", err)
	}

	return h.dispatcher.MarkProcessed(ctx, doc.ID, doc.ProjectID)
}

func embedFailureKind(err error) string {
	var emptyErr *domain.EmptyEmbeddingError
	if errors.As(err, &emptyErr) {
		return failureEmptyEmbedding
	}
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return failureProvider
	}
	return failureInternal
}

// GenerateHandler executes AI generation jobs for intake documents: it
// picks the strategy from the project type's workflow (falling back to the
// built-in software deliverables policy), runs the orchestration service,
// and settles the originating document either way.
type GenerateHandler struct {
	docs         repositories.DocumentRepository
	projects     repositories.ProjectRepository
	projectTypes repositories.ProjectTypeRepository
	templates    repositories.AiTemplateRepository
	generator    *generation.Service
	dispatcher   *Dispatcher
	logger       *slog.Logger
}

// NewGenerateHandler creates the AI generation job handler.
func NewGenerateHandler(
	docs repositories.DocumentRepository,
	projects repositories.ProjectRepository,
	projectTypes repositories.ProjectTypeRepository,
	templates repositories.AiTemplateRepository,
	generator *generation.Service,
	dispatcher *Dispatcher,
	logger *slog.Logger,
) *GenerateHandler {
	return &GenerateHandler{
		docs:         docs,
		projects:     projects,
		projectTypes: projectTypes,
		templates:    templates,
		generator:    generator,
		dispatcher:   dispatcher,
		logger:       logger,
	}
}

// Run generates deliverables from the originating document. Completion
// sets the processed marker even when generation produced zero items, so a
// barren intake can never loop through reprocessing forever.
func (h *GenerateHandler) Run(ctx context.Context, job jobs.Job) error {
	doc, err := h.docs.GetByID(ctx, job.DocumentID, job.ProjectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logger.Debug("generation target vanished", "document_id", job.DocumentID)
			return nil
		}
		return fmt.Errorf("load document: %w", err)
	}

	project, err := h.projects.GetByID(ctx, doc.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	strategy, err := h.pickStrategy(ctx, project, doc)
	if err != nil {
		return h.dispatcher.MarkErrored(ctx, doc, failureInternal, err)
	}

	outcome, err := h.generator.GenerateDeliverables(ctx, project, doc, strategy)
	if err != nil {
		// The lifecycle owns failure recording; generation stays retry-free.
		return h.dispatcher.MarkErrored(ctx, doc, generationFailureKind(err), err)
	}

	h.logger.Info("deliverables generated",
		"document_id", doc.ID,
		"project_id", project.ID,
		"strategy", outcome.Strategy,
		"created", len(outcome.Created),
		"degraded", outcome.Degraded,
	)

	return h.dispatcher.MarkProcessed(ctx, doc.ID, doc.ProjectID)
}

// pickStrategy prefers a workflow edge starting at the document's type;
// without one, intake documents fall back to the built-in policy.
func (h *GenerateHandler) pickStrategy(ctx context.Context, project *models.Project, doc *models.Document) (generation.Strategy, error) {
	pt, err := h.projectTypes.GetByID(ctx, project.ProjectTypeID)
	if err != nil {
		return nil, fmt.Errorf("load project type: %w", err)
	}

	steps := pt.StepsFrom(doc.Type)
	if len(steps) == 0 {
		if doc.Type == models.TypeIntake {
			return generation.SoftwareDeliverablesStrategy{}, nil
		}
		return nil, fmt.Errorf("no workflow step from type %q", doc.Type)
	}

	step := steps[0]
	tpl, err := h.templates.GetByID(ctx, step.AiTemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template for step %s->%s: %w", step.FromKey, step.ToKey, err)
	}

	slot, ok := pt.SlotByKey(step.ToKey)
	if !ok {
		return nil, fmt.Errorf("workflow target %q missing from schema", step.ToKey)
	}

	return generation.NewWorkflowStrategy(step, tpl, slot), nil
}

func generationFailureKind(err error) string {
	var llmErr *generation.LLMError
	if errors.As(err, &llmErr) {
		switch llmErr.ErrorType {
		case llm.ErrorTypeJSONParse:
			return failureJSONParse
		case llm.ErrorTypeConnection:
			return failureConnection
		default:
			return failureProvider
		}
	}
	return embedFailureKind(err)
}

// Creator adapts document creation for the generation service: every
// generated document is persisted and immediately dispatched, so it enters
// the embedding pipeline exactly like a user-created one.
type Creator struct {
	docs       repositories.DocumentRepository
	dispatcher *Dispatcher
}

// NewCreator creates the generation-side document creator.
func NewCreator(docs repositories.DocumentRepository, dispatcher *Dispatcher) *Creator {
	return &Creator{docs: docs, dispatcher: dispatcher}
}

// CreateDocument persists the document and runs the creation branch.
func (c *Creator) CreateDocument(ctx context.Context, doc *models.Document) error {
	if err := c.docs.Create(ctx, doc); err != nil {
		return err
	}
	return c.dispatcher.DocumentCreated(ctx, doc)
}
