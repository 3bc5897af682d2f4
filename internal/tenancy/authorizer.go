package tenancy

import (
	"context"

	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// Scope identifies the ownership of the entity being authorized.
// OrganizationID is the entity's owning organization (resolved through its
// client, never taken from the request). ClientID is set for client-scoped
// entities (documents, tasks), which honor direct access grants.
type Scope struct {
	OrganizationID string
	ClientID       string
}

// Resolver answers role questions for a single user, memoizing membership
// lookups for the lifetime of one request. Entries are keyed by
// organization, so consulting a different organization mid-request can
// never observe a stale grant.
type Resolver struct {
	repo   repositories.MembershipRepository
	userID string

	globalLoaded bool
	global       []models.Membership
	orgRoles     map[string][]models.Membership
	clientGrants map[string]bool
}

// NewResolver creates a resolver for one user.
func NewResolver(repo repositories.MembershipRepository, userID string) *Resolver {
	return &Resolver{
		repo:         repo,
		userID:       userID,
		orgRoles:     make(map[string][]models.Membership),
		clientGrants: make(map[string]bool),
	}
}

// UserID returns the user this resolver answers for.
func (r *Resolver) UserID() string { return r.userID }

// IsSuperAdmin reports whether the user holds the global super-admin grant.
// Super-admin is evaluated under the no-tenant context: the grant is not
// tied to any organization and bypasses all per-organization checks.
func (r *Resolver) IsSuperAdmin(ctx context.Context) (bool, error) {
	if !r.globalLoaded {
		grants, err := r.repo.GlobalRoles(ctx, r.userID)
		if err != nil {
			return false, err
		}
		r.global = grants
		r.globalLoaded = true
	}
	for _, m := range r.global {
		if m.Role == models.RoleSuperAdmin {
			return true, nil
		}
	}
	return false, nil
}

// IsOrgAdmin reports whether the user holds org-admin for the given
// organization. The role must be held for that organization specifically;
// holding it elsewhere does not count.
func (r *Resolver) IsOrgAdmin(ctx context.Context, organizationID string) (bool, error) {
	roles, err := r.rolesIn(ctx, organizationID)
	if err != nil {
		return false, err
	}
	for _, m := range roles {
		if m.Role == models.RoleOrgAdmin {
			return true, nil
		}
	}
	return false, nil
}

// CanView reports whether the user may read the entity.
func (r *Resolver) CanView(ctx context.Context, scope Scope) (bool, error) {
	return r.decide(ctx, scope)
}

// CanUpdate reports whether the user may mutate the entity.
func (r *Resolver) CanUpdate(ctx context.Context, scope Scope) (bool, error) {
	return r.decide(ctx, scope)
}

// CanDelete reports whether the user may delete the entity.
func (r *Resolver) CanDelete(ctx context.Context, scope Scope) (bool, error) {
	return r.decide(ctx, scope)
}

// decide implements the single decision procedure: super-admin bypasses
// everything; org-admin must be held for the entity's owning organization;
// client-scoped entities additionally allow direct client access grants.
func (r *Resolver) decide(ctx context.Context, scope Scope) (bool, error) {
	super, err := r.IsSuperAdmin(ctx)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}

	if scope.OrganizationID != "" {
		admin, err := r.IsOrgAdmin(ctx, scope.OrganizationID)
		if err != nil {
			return false, err
		}
		if admin {
			return true, nil
		}
	}

	if scope.ClientID != "" {
		granted, err := r.hasClientAccess(ctx, scope.ClientID)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}

	return false, nil
}

func (r *Resolver) isMember(ctx context.Context, organizationID string) (bool, error) {
	roles, err := r.rolesIn(ctx, organizationID)
	if err != nil {
		return false, err
	}
	return len(roles) > 0, nil
}

func (r *Resolver) rolesIn(ctx context.Context, organizationID string) ([]models.Membership, error) {
	if roles, ok := r.orgRoles[organizationID]; ok {
		return roles, nil
	}
	roles, err := r.repo.RolesInOrganization(ctx, r.userID, organizationID)
	if err != nil {
		return nil, err
	}
	r.orgRoles[organizationID] = roles
	return roles, nil
}

func (r *Resolver) hasClientAccess(ctx context.Context, clientID string) (bool, error) {
	if granted, ok := r.clientGrants[clientID]; ok {
		return granted, nil
	}
	granted, err := r.repo.HasClientAccess(ctx, r.userID, clientID)
	if err != nil {
		return false, err
	}
	r.clientGrants[clientID] = granted
	return granted, nil
}
