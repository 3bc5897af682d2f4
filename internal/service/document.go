package service

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/service/embedding"
	"loom/internal/service/pipeline"
	"loom/internal/tenancy"
)

// searchFloor is the similarity floor for user-facing semantic search.
// Retrieval for generation runs without a floor; interactive search is
// better served by no answer than a wrong-looking one.
const searchFloor = 0.45

const defaultSearchLimit = 20

// CreateDocumentRequest represents a document creation request
type CreateDocumentRequest struct {
	ProjectID string  `json:"project_id"`
	ParentID  *string `json:"parent_id,omitempty"`
	Type      string  `json:"type"`
	Name      string  `json:"name"`
	Content   string  `json:"content"`
}

// Validate implements request validation
func (r CreateDocumentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProjectID, validation.Required),
		validation.Field(&r.Type, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
	)
}

// UpdateDocumentRequest represents a document update request
type UpdateDocumentRequest struct {
	Name       *string `json:"name,omitempty"`
	Content    *string `json:"content,omitempty"`
	Status     *string `json:"status,omitempty"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

// SearchDocumentsRequest represents a semantic search request
type SearchDocumentsRequest struct {
	ProjectID string   `json:"project_id"`
	Query     string   `json:"query"`
	Types     []string `json:"types,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// Validate implements request validation
func (r SearchDocumentsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProjectID, validation.Required),
		validation.Field(&r.Query, validation.Required, validation.Length(1, 2000)),
		validation.Field(&r.Limit, validation.Min(0), validation.Max(100)),
	)
}

// DocumentService handles document business logic: tenant authorization,
// validation against the project type schema, persistence and lifecycle
// dispatch.
type DocumentService struct {
	docs         repositories.DocumentRepository
	projects     repositories.ProjectRepository
	projectTypes repositories.ProjectTypeRepository
	memberships  repositories.MembershipRepository
	txManager    repositories.TransactionManager
	dispatcher   *pipeline.Dispatcher
	embedder     embedding.Driver
	logger       *slog.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	docs repositories.DocumentRepository,
	projects repositories.ProjectRepository,
	projectTypes repositories.ProjectTypeRepository,
	memberships repositories.MembershipRepository,
	txManager repositories.TransactionManager,
	dispatcher *pipeline.Dispatcher,
	embedder embedding.Driver,
	logger *slog.Logger,
) *DocumentService {
	return &DocumentService{
		docs:         docs,
		projects:     projects,
		projectTypes: projectTypes,
		memberships:  memberships,
		txManager:    txManager,
		dispatcher:   dispatcher,
		embedder:     embedder,
		logger:       logger,
	}
}

// CreateDocument creates a document and runs the lifecycle creation branch
// in the same transaction, so a document never exists without its state
// transition. Background jobs dispatch only after the commit returns;
// workers read through the pool and must see the committed row.
func (s *DocumentService) CreateDocument(ctx context.Context, tc tenancy.TenantContext, req *CreateDocumentRequest) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	project, err := s.authorizedProject(ctx, tc, req.ProjectID, authzUpdate)
	if err != nil {
		return nil, err
	}

	pt, err := s.projectTypes.GetByID(ctx, project.ProjectTypeID)
	if err != nil {
		return nil, err
	}
	if !pt.HasSlot(req.Type) {
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("document type %q is not part of the %q schema", req.Type, pt.Name),
		}
	}

	doc := &models.Document{
		ProjectID: project.ID,
		ParentID:  req.ParentID,
		Type:      req.Type,
		Name:      req.Name,
		Content:   req.Content,
		CreatedBy: tc.UserID,
	}

	pending := &pipeline.PendingJobs{}
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		txCtx = pipeline.WithPending(txCtx, pending)
		if err := s.docs.Create(txCtx, doc); err != nil {
			return err
		}
		return s.dispatcher.DocumentCreated(txCtx, doc)
	})
	if err != nil {
		return nil, err
	}
	if err := s.dispatcher.FlushJobs(ctx, pending); err != nil {
		return nil, err
	}

	s.logger.Info("document created",
		"document_id", doc.ID,
		"project_id", project.ID,
		"type", doc.Type,
		"state", doc.PipelineState,
	)

	return doc, nil
}

// GetDocument retrieves a document after the tenant check.
func (s *DocumentService) GetDocument(ctx context.Context, tc tenancy.TenantContext, projectID, documentID string) (*models.Document, error) {
	if _, err := s.authorizedProject(ctx, tc, projectID, authzView); err != nil {
		return nil, err
	}
	return s.docs.GetByID(ctx, documentID, projectID)
}

// ListDocuments lists a project's documents after the tenant check.
func (s *DocumentService) ListDocuments(ctx context.Context, tc tenancy.TenantContext, projectID string) ([]models.Document, error) {
	if _, err := s.authorizedProject(ctx, tc, projectID, authzView); err != nil {
		return nil, err
	}
	return s.docs.ListByProject(ctx, projectID)
}

// UpdateDocument applies the requested mutations and runs the lifecycle
// update branch with the before/after pair.
func (s *DocumentService) UpdateDocument(ctx context.Context, tc tenancy.TenantContext, projectID, documentID string, req *UpdateDocumentRequest) (*models.Document, error) {
	if _, err := s.authorizedProject(ctx, tc, projectID, authzUpdate); err != nil {
		return nil, err
	}

	doc, err := s.docs.GetByID(ctx, documentID, projectID)
	if err != nil {
		return nil, err
	}

	old := *doc

	if req.Name != nil {
		doc.Name = *req.Name
	}
	if req.Content != nil {
		doc.Content = *req.Content
	}
	if req.Status != nil {
		doc.Status = *req.Status
	}
	if req.AssignedTo != nil {
		doc.AssignedTo = req.AssignedTo
	}
	doc.UpdatedBy = &tc.UserID

	pending := &pipeline.PendingJobs{}
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		txCtx = pipeline.WithPending(txCtx, pending)
		if err := s.docs.Update(txCtx, doc); err != nil {
			return err
		}
		return s.dispatcher.DocumentUpdated(txCtx, &old, doc)
	})
	if err != nil {
		return nil, err
	}
	if err := s.dispatcher.FlushJobs(ctx, pending); err != nil {
		return nil, err
	}

	return doc, nil
}

// DeleteDocument deletes a document after the tenant check.
func (s *DocumentService) DeleteDocument(ctx context.Context, tc tenancy.TenantContext, projectID, documentID string) error {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, tc, project, authzDelete); err != nil {
		return err
	}
	return s.docs.Delete(ctx, documentID, projectID)
}

// SearchDocuments runs semantic search over the project's embedded
// documents: the query is embedded and matched with the search-mode
// similarity floor. Weak best matches yield an empty result, not the
// least-bad document.
func (s *DocumentService) SearchDocuments(ctx context.Context, tc tenancy.TenantContext, req *SearchDocumentsRequest) ([]models.ScoredDocument, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	if _, err := s.authorizedProject(ctx, tc, req.ProjectID, authzView); err != nil {
		return nil, err
	}

	queryVec, err := s.embedder.GetEmbedding(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	return s.docs.NearestNeighbors(ctx, queryVec, repositories.VectorSearchOptions{
		ProjectID:     req.ProjectID,
		Types:         req.Types,
		K:             limit,
		MinSimilarity: searchFloor,
	})
}

type authzAction int

const (
	authzView authzAction = iota
	authzUpdate
	authzDelete
)

// authorizedProject loads the project and applies the tenant decision for
// the requested action.
func (s *DocumentService) authorizedProject(ctx context.Context, tc tenancy.TenantContext, projectID string, action authzAction) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, tc, project, action); err != nil {
		return nil, err
	}
	return project, nil
}

// authorize applies the tenant decision. Denials surface as not-found so
// cross-tenant probing cannot confirm a resource exists.
func (s *DocumentService) authorize(ctx context.Context, tc tenancy.TenantContext, project *models.Project, action authzAction) error {
	resolver := tenancy.NewResolver(s.memberships, tc.UserID)
	scope := tenancy.Scope{
		OrganizationID: project.OrganizationID,
		ClientID:       project.ClientID,
	}

	var (
		allowed bool
		err     error
	)
	switch action {
	case authzView:
		allowed, err = resolver.CanView(ctx, scope)
	case authzUpdate:
		allowed, err = resolver.CanUpdate(ctx, scope)
	case authzDelete:
		allowed, err = resolver.CanDelete(ctx, scope)
	}
	if err != nil {
		return err
	}
	if !allowed {
		return &domain.NotFoundError{Message: fmt.Sprintf("project %s not found", project.ID)}
	}
	return nil
}
