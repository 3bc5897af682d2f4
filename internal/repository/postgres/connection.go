package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Organizations string
	Clients       string
	Users         string
	Memberships   string
	ClientUsers   string
	ProjectTypes  string
	AiTemplates   string
	Projects      string
	Documents     string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Organizations: prefix + "organizations",
		Clients:       prefix + "clients",
		Users:         prefix + "users",
		Memberships:   prefix + "organization_members",
		ClientUsers:   prefix + "client_users",
		ProjectTypes:  prefix + "project_types",
		AiTemplates:   prefix + "ai_templates",
		Projects:      prefix + "projects",
		Documents:     prefix + "documents",
	}
}

// CreateConnectionPool creates a new pgx connection pool.
//
// Port 6543 is the transaction pooler convention (PgBouncer); it does not
// support prepared statements, so cache_describe mode is selected there.
// An explicit default_query_exec_mode in the connection string takes
// precedence over the auto-detection.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
