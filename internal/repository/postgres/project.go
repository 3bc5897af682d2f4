package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// PostgresProjectRepository implements the ProjectRepository interface
type PostgresProjectRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(config *RepositoryConfig) repositories.ProjectRepository {
	return &PostgresProjectRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Create creates a new project
func (r *PostgresProjectRepository) Create(ctx context.Context, project *models.Project) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (client_id, project_type_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, created_at, updated_at
	`, r.tables.Projects)

	err := r.pool.QueryRow(ctx, query,
		project.ClientID,
		project.ProjectTypeID,
		project.Name,
		project.Description,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)

	if err != nil {
		if isPgForeignKeyError(err) {
			return fmt.Errorf("client or project type does not exist: %w", domain.ErrValidation)
		}
		return fmt.Errorf("create project: %w", err)
	}

	return nil
}

// GetByID retrieves a project with its organization resolved through the client.
func (r *PostgresProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.client_id, p.project_type_id, p.name, p.description,
		       p.created_at, p.updated_at, p.deleted_at, c.organization_id
		FROM %s p
		JOIN %s c ON c.id = p.client_id
		WHERE p.id = $1 AND p.deleted_at IS NULL
	`, r.tables.Projects, r.tables.Clients)

	var project models.Project
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&project.ID,
		&project.ClientID,
		&project.ProjectTypeID,
		&project.Name,
		&project.Description,
		&project.CreatedAt,
		&project.UpdatedAt,
		&project.DeletedAt,
		&project.OrganizationID,
	)

	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}

	return &project, nil
}

// ListByOrganization lists live projects owned by clients of the organization.
func (r *PostgresProjectRepository) ListByOrganization(ctx context.Context, organizationID string) ([]models.Project, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.client_id, p.project_type_id, p.name, p.description,
		       p.created_at, p.updated_at, p.deleted_at, c.organization_id
		FROM %s p
		JOIN %s c ON c.id = p.client_id
		WHERE c.organization_id = $1 AND p.deleted_at IS NULL
		ORDER BY p.created_at DESC
	`, r.tables.Projects, r.tables.Clients)

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(
			&p.ID, &p.ClientID, &p.ProjectTypeID, &p.Name, &p.Description,
			&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt, &p.OrganizationID,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// Update updates name/description of an existing project
func (r *PostgresProjectRepository) Update(ctx context.Context, project *models.Project) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $1, description = $2, updated_at = now()
		WHERE id = $3 AND deleted_at IS NULL
	`, r.tables.Projects)

	result, err := r.pool.Exec(ctx, query, project.Name, project.Description, project.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", project.ID, domain.ErrNotFound)
	}

	return nil
}

// Delete soft-deletes a project
func (r *PostgresProjectRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, r.tables.Projects)

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}

	return nil
}
