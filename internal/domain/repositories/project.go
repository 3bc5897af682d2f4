package repositories

import (
	"context"

	"loom/internal/domain/models"
)

// ProjectRepository defines data access operations for projects.
type ProjectRepository interface {
	// Create creates a new project
	Create(ctx context.Context, project *models.Project) error

	// GetByID retrieves a project by ID. OrganizationID is populated from
	// the client join so callers can authorize without a second lookup.
	GetByID(ctx context.Context, id string) (*models.Project, error)

	// ListByOrganization lists live projects owned by clients of the organization.
	ListByOrganization(ctx context.Context, organizationID string) ([]models.Project, error)

	// Update updates name/description of an existing project
	Update(ctx context.Context, project *models.Project) error

	// Delete soft-deletes a project. Documents cascade on hard delete only.
	Delete(ctx context.Context, id string) error
}

// ProjectTypeRepository defines data access operations for project types.
type ProjectTypeRepository interface {
	// Create persists a project type. Workflow edges referencing keys
	// absent from the document schema are rejected.
	Create(ctx context.Context, pt *models.ProjectType) error

	// GetByID retrieves a project type by ID
	GetByID(ctx context.Context, id string) (*models.ProjectType, error)

	// Update replaces schema, workflow and lifecycle steps
	Update(ctx context.Context, pt *models.ProjectType) error
}

// AiTemplateRepository defines data access operations for AI templates.
type AiTemplateRepository interface {
	// Create creates a new template
	Create(ctx context.Context, tpl *models.AiTemplate) error

	// GetByID retrieves a template by ID
	GetByID(ctx context.Context, id string) (*models.AiTemplate, error)

	// Delete removes a template. Fails with a conflict while any project
	// type workflow still references it.
	Delete(ctx context.Context, id string) error
}
