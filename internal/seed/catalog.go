// Package seed loads the project type catalog from YAML fixtures into the
// database. Fixtures are idempotent: re-running the seeder updates existing
// entries in place instead of duplicating them.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"loom/internal/domain/models"
	"loom/internal/repository/postgres"
)

// CatalogFixture is the root of a catalog YAML file.
type CatalogFixture struct {
	Templates    []TemplateFixture    `yaml:"templates"`
	ProjectTypes []ProjectTypeFixture `yaml:"project_types"`
}

// TemplateFixture declares one AI template. The ID is fixed in the fixture
// so workflow steps can reference it by name across re-seeds.
type TemplateFixture struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	UserPrompt   string `yaml:"user_prompt"`
}

// ProjectTypeFixture declares one project type with its schema and workflow.
type ProjectTypeFixture struct {
	ID             string                `yaml:"id"`
	Name           string                `yaml:"name"`
	Schema         []models.SchemaSlot   `yaml:"schema"`
	Workflow       []models.WorkflowStep `yaml:"workflow"`
	LifecycleSteps []string              `yaml:"lifecycle_steps"`
}

// CatalogSeeder writes catalog fixtures into the database.
type CatalogSeeder struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewCatalogSeeder creates a new catalog seeder
func NewCatalogSeeder(pool *pgxpool.Pool, tables *postgres.TableNames, logger *slog.Logger) *CatalogSeeder {
	return &CatalogSeeder{
		pool:   pool,
		tables: tables,
		logger: logger,
	}
}

// LoadFixture parses a catalog YAML file and validates every project type
// before anything is written.
func LoadFixture(path string) (*CatalogFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var fixture CatalogFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	for _, pt := range fixture.ProjectTypes {
		model := models.ProjectType{
			Name:           pt.Name,
			DocumentSchema: pt.Schema,
			Workflow:       pt.Workflow,
		}
		if err := model.Validate(); err != nil {
			return nil, fmt.Errorf("project type %q: %w", pt.Name, err)
		}
	}

	return &fixture, nil
}

// Seed upserts templates first, then project types, so workflow references
// always point at existing templates.
func (s *CatalogSeeder) Seed(ctx context.Context, fixture *CatalogFixture) error {
	now := time.Now()

	for _, tpl := range fixture.Templates {
		query := `INSERT INTO ` + s.tables.AiTemplates + ` (id, name, system_prompt, user_prompt, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				system_prompt = EXCLUDED.system_prompt,
				user_prompt = EXCLUDED.user_prompt,
				updated_at = EXCLUDED.updated_at`
		if _, err := s.pool.Exec(ctx, query, tpl.ID, tpl.Name, tpl.SystemPrompt, tpl.UserPrompt, now); err != nil {
			return fmt.Errorf("seed template %q: %w", tpl.Name, err)
		}
		s.logger.Info("seeded template", "id", tpl.ID, "name", tpl.Name)
	}

	for _, pt := range fixture.ProjectTypes {
		schema, err := yamlToJSON(pt.Schema)
		if err != nil {
			return fmt.Errorf("encode schema for %q: %w", pt.Name, err)
		}
		workflow, err := yamlToJSON(pt.Workflow)
		if err != nil {
			return fmt.Errorf("encode workflow for %q: %w", pt.Name, err)
		}
		steps, err := yamlToJSON(pt.LifecycleSteps)
		if err != nil {
			return fmt.Errorf("encode lifecycle steps for %q: %w", pt.Name, err)
		}

		query := `INSERT INTO ` + s.tables.ProjectTypes + ` (id, name, document_schema, workflow, lifecycle_steps, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				document_schema = EXCLUDED.document_schema,
				workflow = EXCLUDED.workflow,
				lifecycle_steps = EXCLUDED.lifecycle_steps,
				updated_at = EXCLUDED.updated_at`
		if _, err := s.pool.Exec(ctx, query, pt.ID, pt.Name, schema, workflow, steps, now); err != nil {
			return fmt.Errorf("seed project type %q: %w", pt.Name, err)
		}
		s.logger.Info("seeded project type", "id", pt.ID, "name", pt.Name)
	}

	return nil
}
