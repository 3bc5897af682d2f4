package service

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/tenancy"
)

// CreateProjectRequest represents a project creation request
type CreateProjectRequest struct {
	ClientID      string `json:"client_id"`
	ProjectTypeID string `json:"project_type_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
}

// Validate implements request validation
func (r CreateProjectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ClientID, validation.Required),
		validation.Field(&r.ProjectTypeID, validation.Required),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
	)
}

// UpdateProjectRequest represents a project update request
type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ProjectService handles project business logic
type ProjectService struct {
	projects     repositories.ProjectRepository
	projectTypes repositories.ProjectTypeRepository
	clients      repositories.ClientRepository
	memberships  repositories.MembershipRepository
	logger       *slog.Logger
}

// NewProjectService creates a new project service
func NewProjectService(
	projects repositories.ProjectRepository,
	projectTypes repositories.ProjectTypeRepository,
	clients repositories.ClientRepository,
	memberships repositories.MembershipRepository,
	logger *slog.Logger,
) *ProjectService {
	return &ProjectService{
		projects:     projects,
		projectTypes: projectTypes,
		clients:      clients,
		memberships:  memberships,
		logger:       logger,
	}
}

// CreateProject creates a project under a client the caller administers.
// The organization context comes from the client row, never from the
// request, so a forged client_id from another tenant fails the access
// check rather than planting a project there.
func (s *ProjectService) CreateProject(ctx context.Context, tc tenancy.TenantContext, req *CreateProjectRequest) (*models.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	client, err := s.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	resolver := tenancy.NewResolver(s.memberships, tc.UserID)
	allowed, err := resolver.CanUpdate(ctx, tenancy.Scope{OrganizationID: client.OrganizationID})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("client %s not found", req.ClientID)}
	}

	if _, err := s.projectTypes.GetByID(ctx, req.ProjectTypeID); err != nil {
		return nil, err
	}

	project := &models.Project{
		ClientID:       client.ID,
		ProjectTypeID:  req.ProjectTypeID,
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: client.OrganizationID,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project_id", project.ID, "client_id", client.ID)
	return project, nil
}

// GetProject retrieves a project the caller can view.
func (s *ProjectService) GetProject(ctx context.Context, tc tenancy.TenantContext, projectID string) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	resolver := tenancy.NewResolver(s.memberships, tc.UserID)
	allowed, err := resolver.CanView(ctx, tenancy.Scope{
		OrganizationID: project.OrganizationID,
		ClientID:       project.ClientID,
	})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("project %s not found", projectID)}
	}
	return project, nil
}

// ListProjects lists projects in the tenant's organization. A global
// tenant context has no organization to list under and gets an empty
// result rather than an unscoped scan.
func (s *ProjectService) ListProjects(ctx context.Context, tc tenancy.TenantContext) ([]models.Project, error) {
	if tc.OrganizationID == "" {
		return []models.Project{}, nil
	}
	return s.projects.ListByOrganization(ctx, tc.OrganizationID)
}

// UpdateProject applies mutations to a project the caller administers.
func (s *ProjectService) UpdateProject(ctx context.Context, tc tenancy.TenantContext, projectID string, req *UpdateProjectRequest) (*models.Project, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	resolver := tenancy.NewResolver(s.memberships, tc.UserID)
	allowed, err := resolver.CanUpdate(ctx, tenancy.Scope{
		OrganizationID: project.OrganizationID,
		ClientID:       project.ClientID,
	})
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("project %s not found", projectID)}
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if err := s.projects.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// DeleteProject soft-deletes a project the caller administers.
func (s *ProjectService) DeleteProject(ctx context.Context, tc tenancy.TenantContext, projectID string) error {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return err
	}

	resolver := tenancy.NewResolver(s.memberships, tc.UserID)
	allowed, err := resolver.CanDelete(ctx, tenancy.Scope{
		OrganizationID: project.OrganizationID,
		ClientID:       project.ClientID,
	})
	if err != nil {
		return err
	}
	if !allowed {
		return &domain.NotFoundError{Message: fmt.Sprintf("project %s not found", projectID)}
	}
	return s.projects.Delete(ctx, projectID)
}
