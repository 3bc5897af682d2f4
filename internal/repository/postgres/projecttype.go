package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// PostgresProjectTypeRepository implements the ProjectTypeRepository interface
type PostgresProjectTypeRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewProjectTypeRepository creates a new project type repository
func NewProjectTypeRepository(config *RepositoryConfig) repositories.ProjectTypeRepository {
	return &PostgresProjectTypeRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create persists a project type. Workflow edges referencing keys absent
// from the document schema are rejected before touching the database.
func (r *PostgresProjectTypeRepository) Create(ctx context.Context, pt *models.ProjectType) error {
	if err := pt.Validate(); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}

	schemaJSON, workflowJSON, stepsJSON, err := marshalProjectType(pt)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name, document_schema, workflow, lifecycle_steps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, created_at, updated_at
	`, r.tables.ProjectTypes)

	err = r.pool.QueryRow(ctx, query, pt.Name, schemaJSON, workflowJSON, stepsJSON).
		Scan(&pt.ID, &pt.CreatedAt, &pt.UpdatedAt)

	if err != nil {
		if isPgDuplicateError(err) {
			return fmt.Errorf("project type '%s' already exists: %w", pt.Name, domain.ErrConflict)
		}
		return fmt.Errorf("create project type: %w", err)
	}

	return nil
}

// GetByID retrieves a project type by ID
func (r *PostgresProjectTypeRepository) GetByID(ctx context.Context, id string) (*models.ProjectType, error) {
	query := fmt.Sprintf(`
		SELECT id, name, document_schema, workflow, lifecycle_steps, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, r.tables.ProjectTypes)

	var (
		pt           models.ProjectType
		schemaJSON   []byte
		workflowJSON []byte
		stepsJSON    []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&pt.ID, &pt.Name, &schemaJSON, &workflowJSON, &stepsJSON, &pt.CreatedAt, &pt.UpdatedAt,
	)

	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("project type %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get project type: %w", err)
	}

	if err := json.Unmarshal(schemaJSON, &pt.DocumentSchema); err != nil {
		return nil, fmt.Errorf("decode document schema: %w", err)
	}
	if err := json.Unmarshal(workflowJSON, &pt.Workflow); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	if err := json.Unmarshal(stepsJSON, &pt.LifecycleSteps); err != nil {
		return nil, fmt.Errorf("decode lifecycle steps: %w", err)
	}

	return &pt, nil
}

// Update replaces schema, workflow and lifecycle steps
func (r *PostgresProjectTypeRepository) Update(ctx context.Context, pt *models.ProjectType) error {
	if err := pt.Validate(); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}

	schemaJSON, workflowJSON, stepsJSON, err := marshalProjectType(pt)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $1, document_schema = $2, workflow = $3, lifecycle_steps = $4, updated_at = now()
		WHERE id = $5
	`, r.tables.ProjectTypes)

	result, err := r.pool.Exec(ctx, query, pt.Name, schemaJSON, workflowJSON, stepsJSON, pt.ID)
	if err != nil {
		return fmt.Errorf("update project type: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("project type %s: %w", pt.ID, domain.ErrNotFound)
	}

	return nil
}

func marshalProjectType(pt *models.ProjectType) (schema, workflow, steps []byte, err error) {
	if schema, err = json.Marshal(pt.DocumentSchema); err != nil {
		return nil, nil, nil, fmt.Errorf("encode document schema: %w", err)
	}
	if workflow, err = json.Marshal(pt.Workflow); err != nil {
		return nil, nil, nil, fmt.Errorf("encode workflow: %w", err)
	}
	if steps, err = json.Marshal(pt.LifecycleSteps); err != nil {
		return nil, nil, nil, fmt.Errorf("encode lifecycle steps: %w", err)
	}
	return schema, workflow, steps, nil
}

// PostgresAiTemplateRepository implements the AiTemplateRepository interface
type PostgresAiTemplateRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewAiTemplateRepository creates a new AI template repository
func NewAiTemplateRepository(config *RepositoryConfig) repositories.AiTemplateRepository {
	return &PostgresAiTemplateRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create creates a new template
func (r *PostgresAiTemplateRepository) Create(ctx context.Context, tpl *models.AiTemplate) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, system_prompt, user_prompt, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, created_at, updated_at
	`, r.tables.AiTemplates)

	err := r.pool.QueryRow(ctx, query, tpl.Name, tpl.SystemPrompt, tpl.UserPrompt).
		Scan(&tpl.ID, &tpl.CreatedAt, &tpl.UpdatedAt)

	if err != nil {
		if isPgDuplicateError(err) {
			return fmt.Errorf("template '%s' already exists: %w", tpl.Name, domain.ErrConflict)
		}
		return fmt.Errorf("create template: %w", err)
	}

	return nil
}

// GetByID retrieves a template by ID
func (r *PostgresAiTemplateRepository) GetByID(ctx context.Context, id string) (*models.AiTemplate, error) {
	query := fmt.Sprintf(`
		SELECT id, name, system_prompt, user_prompt, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, r.tables.AiTemplates)

	var tpl models.AiTemplate
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&tpl.ID, &tpl.Name, &tpl.SystemPrompt, &tpl.UserPrompt, &tpl.CreatedAt, &tpl.UpdatedAt,
	)

	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get template: %w", err)
	}

	return &tpl, nil
}

// Delete removes a template unless a project type workflow still references it.
func (r *PostgresAiTemplateRepository) Delete(ctx context.Context, id string) error {
	// Workflow edges live inside project_types.workflow JSON, so the
	// reference check cannot be a plain FK.
	refQuery := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s,
			jsonb_array_elements(workflow) AS step
			WHERE step->>'ai_template_id' = $1
		)
	`, r.tables.ProjectTypes)

	var referenced bool
	if err := r.pool.QueryRow(ctx, refQuery, id).Scan(&referenced); err != nil {
		return fmt.Errorf("check template references: %w", err)
	}
	if referenced {
		return &domain.ConflictError{
			Message:      "template is referenced by a project type workflow",
			ResourceType: "ai_template",
			ResourceID:   id,
		}
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.AiTemplates)

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}

	return nil
}
