package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/service/embedding"
	"loom/internal/service/llm"
)

// retrievalK bounds how many context documents feed one generation.
const retrievalK = 5

// DocumentCreator persists a generated document. The pipeline supplies an
// implementation that also dispatches lifecycle events, so generated
// documents enter the embedding pipeline like user-created ones.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
}

// LLMError reports a generation call that the driver normalized to an
// error result (connection failure or unparseable output).
type LLMError struct {
	Provider  string
	ErrorType string
	Message   string
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s failed (%s): %s", e.Provider, e.ErrorType, e.Message)
}

// Outcome reports what one generation run produced.
type Outcome struct {
	Strategy string
	// Created are the new documents, in item order.
	Created []models.Document
	// ContextSize is how many documents were retrieved as context.
	ContextSize int
	// Degraded is set when retrieval found no context and generation
	// proceeded on project metadata alone.
	Degraded bool
}

// Service orchestrates retrieval-augmented deliverable generation.
type Service struct {
	embedder embedding.Driver
	driver   llm.Driver
	docs     repositories.DocumentRepository
	creator  DocumentCreator
	logger   *slog.Logger
}

// NewService creates a generation service.
func NewService(
	embedder embedding.Driver,
	driver llm.Driver,
	docs repositories.DocumentRepository,
	creator DocumentCreator,
	logger *slog.Logger,
) *Service {
	return &Service{
		embedder: embedder,
		driver:   driver,
		docs:     docs,
		creator:  creator,
		logger:   logger,
	}
}

// GenerateDeliverables runs the full pipeline for one project and
// strategy. parent is the document that triggered generation; created
// documents are parented to it.
//
// Failures stay distinguishable for the caller: embedding failures carry
// *domain.ProviderError or *domain.EmptyEmbeddingError, LLM failures carry
// *LLMError. Empty retrieval degrades instead of aborting.
func (s *Service) GenerateDeliverables(ctx context.Context, project *models.Project, parent *models.Document, strategy Strategy) (*Outcome, error) {
	query := strategy.SearchQuery(project)

	queryVec, err := s.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}

	// Retrieval for generation: no similarity floor, best-effort context
	// even when every match is weak.
	neighbors, err := s.docs.NearestNeighbors(ctx, queryVec, repositories.VectorSearchOptions{
		ProjectID: project.ID,
		Types:     strategy.RequiredDocTypes(),
		K:         retrievalK,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	degraded := len(neighbors) == 0
	if degraded {
		s.logger.Warn("generation proceeding without retrieved context",
			"project_id", project.ID,
			"strategy", strategy.Name(),
			"reason", (&domain.EmptyResultError{Query: query}).Error(),
		)
	}

	userPrompt := renderTemplate(strategy.UserPrompt(), map[string]string{
		"input":               contextBlock(neighbors),
		"project_name":        project.Name,
		"project_description": project.Description,
	})

	result, err := s.driver.Call(ctx, strategy.SystemPrompt(), userPrompt)
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}
	if !result.OK() {
		return nil, &LLMError{
			Provider:  s.driver.Name(),
			ErrorType: result.ErrorType,
			Message:   result.Message,
		}
	}

	outcome := &Outcome{
		Strategy:    strategy.Name(),
		ContextSize: len(neighbors),
		Degraded:    degraded,
	}

	for _, item := range result.Items {
		doc := models.Document{
			ProjectID: project.ID,
			ParentID:  &parent.ID,
			Type:      strategy.TargetType(),
			Name:      item.Title,
			Content:   item.Body,
			Metadata:  map[string]any{models.MetaCriteria: item.Criteria},
			CreatedBy: parent.CreatedBy,
		}
		if err := s.creator.CreateDocument(ctx, &doc); err != nil {
			return nil, fmt.Errorf("persist generated document %q: %w", item.Title, err)
		}
		outcome.Created = append(outcome.Created, doc)
	}

	s.logger.Info("generation complete",
		"project_id", project.ID,
		"strategy", strategy.Name(),
		"context_docs", len(neighbors),
		"items", len(outcome.Created),
	)

	return outcome, nil
}

// contextBlock concatenates retrieved documents, each tagged with its type.
func contextBlock(neighbors []models.ScoredDocument) string {
	if len(neighbors) == 0 {
		return "(no source documents available)"
	}

	var sb strings.Builder
	for i, n := range neighbors {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s] %s\n%s", n.Document.Type, n.Document.Name, n.Document.Content)
	}
	return sb.String()
}
