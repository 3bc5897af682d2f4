package repositories

import (
	"context"

	"loom/internal/domain/models"
)

// MembershipRepository resolves role grants for authorization decisions.
type MembershipRepository interface {
	// GlobalRoles returns tenant-independent grants for the user
	// (organization_id IS NULL rows, i.e. super-admin).
	GlobalRoles(ctx context.Context, userID string) ([]models.Membership, error)

	// RolesInOrganization returns the user's grants scoped to one organization.
	RolesInOrganization(ctx context.Context, userID, organizationID string) ([]models.Membership, error)

	// OrganizationsForUser lists organizations the user belongs to, in
	// membership creation order. Used as the tenant-resolution fallback.
	OrganizationsForUser(ctx context.Context, userID string) ([]models.Organization, error)

	// HasClientAccess reports whether the user holds a direct access grant
	// on the client.
	HasClientAccess(ctx context.Context, userID, clientID string) (bool, error)
}

// ClientRepository reads tenant customer records.
type ClientRepository interface {
	// GetByID retrieves a client by ID
	GetByID(ctx context.Context, id string) (*models.Client, error)
}
