package service

import (
	"context"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/tenancy"
)

// CreateProjectTypeRequest represents a project type creation request
type CreateProjectTypeRequest struct {
	Name           string                `json:"name"`
	Schema         []models.SchemaSlot   `json:"schema"`
	Workflow       []models.WorkflowStep `json:"workflow"`
	LifecycleSteps []string              `json:"lifecycle_steps,omitempty"`
}

// Validate implements request validation
func (r CreateProjectTypeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Schema, validation.Required),
	)
}

// CreateTemplateRequest represents an AI template creation request
type CreateTemplateRequest struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
}

// Validate implements request validation
func (r CreateTemplateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.UserPrompt, validation.Required),
	)
}

// ProjectTypeService manages the platform catalog of project types and AI
// templates. The catalog is shared across organizations, so all writes
// require the super-admin grant.
type ProjectTypeService struct {
	projectTypes repositories.ProjectTypeRepository
	templates    repositories.AiTemplateRepository
	memberships  repositories.MembershipRepository
	logger       *slog.Logger
}

// NewProjectTypeService creates a new project type service
func NewProjectTypeService(
	projectTypes repositories.ProjectTypeRepository,
	templates repositories.AiTemplateRepository,
	memberships repositories.MembershipRepository,
	logger *slog.Logger,
) *ProjectTypeService {
	return &ProjectTypeService{
		projectTypes: projectTypes,
		templates:    templates,
		memberships:  memberships,
		logger:       logger,
	}
}

// CreateProjectType creates a catalog entry. Workflow integrity against the
// schema is enforced in the model, so a workflow referencing an undeclared
// slot key never reaches the database.
func (s *ProjectTypeService) CreateProjectType(ctx context.Context, tc tenancy.TenantContext, req *CreateProjectTypeRequest) (*models.ProjectType, error) {
	if err := s.requireSuperAdmin(ctx, tc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	pt := &models.ProjectType{
		Name:           req.Name,
		DocumentSchema: req.Schema,
		Workflow:       req.Workflow,
		LifecycleSteps: req.LifecycleSteps,
	}
	if err := s.projectTypes.Create(ctx, pt); err != nil {
		return nil, err
	}

	s.logger.Info("project type created", "project_type_id", pt.ID, "name", pt.Name)
	return pt, nil
}

// GetProjectType retrieves a catalog entry. The catalog is readable by any
// authenticated user; only writes are restricted.
func (s *ProjectTypeService) GetProjectType(ctx context.Context, projectTypeID string) (*models.ProjectType, error) {
	return s.projectTypes.GetByID(ctx, projectTypeID)
}

// UpdateProjectType replaces the schema and workflow of a catalog entry.
func (s *ProjectTypeService) UpdateProjectType(ctx context.Context, tc tenancy.TenantContext, projectTypeID string, req *CreateProjectTypeRequest) (*models.ProjectType, error) {
	if err := s.requireSuperAdmin(ctx, tc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	pt, err := s.projectTypes.GetByID(ctx, projectTypeID)
	if err != nil {
		return nil, err
	}
	pt.Name = req.Name
	pt.DocumentSchema = req.Schema
	pt.Workflow = req.Workflow
	pt.LifecycleSteps = req.LifecycleSteps
	if err := s.projectTypes.Update(ctx, pt); err != nil {
		return nil, err
	}
	return pt, nil
}

// CreateTemplate creates an AI template.
func (s *ProjectTypeService) CreateTemplate(ctx context.Context, tc tenancy.TenantContext, req *CreateTemplateRequest) (*models.AiTemplate, error) {
	if err := s.requireSuperAdmin(ctx, tc); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	tpl := &models.AiTemplate{
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
	}
	if err := s.templates.Create(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// DeleteTemplate deletes an AI template. The repository rejects deletion
// while any workflow step still references the template.
func (s *ProjectTypeService) DeleteTemplate(ctx context.Context, tc tenancy.TenantContext, templateID string) error {
	if err := s.requireSuperAdmin(ctx, tc); err != nil {
		return err
	}
	return s.templates.Delete(ctx, templateID)
}

func (s *ProjectTypeService) requireSuperAdmin(ctx context.Context, tc tenancy.TenantContext) error {
	resolver := tenancy.NewResolver(s.memberships, tc.UserID)
	super, err := resolver.IsSuperAdmin(ctx)
	if err != nil {
		return err
	}
	if !super {
		return &domain.NotFoundError{Message: "not found"}
	}
	return nil
}
