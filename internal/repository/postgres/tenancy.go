package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// PostgresMembershipRepository implements the MembershipRepository interface
type PostgresMembershipRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(config *RepositoryConfig) repositories.MembershipRepository {
	return &PostgresMembershipRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// GlobalRoles returns tenant-independent grants (organization_id IS NULL).
func (r *PostgresMembershipRepository) GlobalRoles(ctx context.Context, userID string) ([]models.Membership, error) {
	query := fmt.Sprintf(`
		SELECT user_id, organization_id, role
		FROM %s
		WHERE user_id = $1 AND organization_id IS NULL
	`, r.tables.Memberships)

	return r.scanMemberships(ctx, query, userID)
}

// RolesInOrganization returns grants scoped to one organization.
func (r *PostgresMembershipRepository) RolesInOrganization(ctx context.Context, userID, organizationID string) ([]models.Membership, error) {
	query := fmt.Sprintf(`
		SELECT user_id, organization_id, role
		FROM %s
		WHERE user_id = $1 AND organization_id = $2
	`, r.tables.Memberships)

	return r.scanMemberships(ctx, query, userID, organizationID)
}

// OrganizationsForUser lists the user's organizations in membership creation order.
func (r *PostgresMembershipRepository) OrganizationsForUser(ctx context.Context, userID string) ([]models.Organization, error) {
	query := fmt.Sprintf(`
		SELECT o.id, o.name, o.created_at, o.updated_at
		FROM %s o
		JOIN %s m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY m.created_at, o.id
	`, r.tables.Organizations, r.tables.Memberships)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var org models.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// HasClientAccess reports whether a direct client access grant exists.
func (r *PostgresMembershipRepository) HasClientAccess(ctx context.Context, userID, clientID string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s WHERE user_id = $1 AND client_id = $2
		)
	`, r.tables.ClientUsers)

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, clientID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check client access: %w", err)
	}

	return exists, nil
}

func (r *PostgresMembershipRepository) scanMemberships(ctx context.Context, query string, args ...interface{}) ([]models.Membership, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.UserID, &m.OrganizationID, &m.Role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	return memberships, rows.Err()
}

// PostgresClientRepository implements the ClientRepository interface
type PostgresClientRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewClientRepository creates a new client repository
func NewClientRepository(config *RepositoryConfig) repositories.ClientRepository {
	return &PostgresClientRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// GetByID retrieves a client by ID
func (r *PostgresClientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, name, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, r.tables.Clients)

	var client models.Client
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&client.ID,
		&client.OrganizationID,
		&client.Name,
		&client.CreatedAt,
		&client.UpdatedAt,
	)

	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get client: %w", err)
	}

	return &client, nil
}
