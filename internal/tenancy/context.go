// Package tenancy implements the multi-tenant authorization model: an
// explicit per-request tenant context and role-based access decisions.
//
// The active organization is carried as a value through every policy call.
// There is no process-wide "current tenant" and therefore no cross-request
// leakage to guard against.
package tenancy

import (
	"context"

	"loom/internal/domain"
	"loom/internal/domain/repositories"
)

// ContextSource records how the active organization was chosen.
type ContextSource string

const (
	SourceParam    ContextSource = "param"    // explicit request parameter
	SourceSession  ContextSource = "session"  // session cookie
	SourceFallback ContextSource = "fallback" // user's first organization
	SourceGlobal   ContextSource = "global"   // super-admin with no organization
)

// TenantContext is the resolved authorization context for one request.
// OrganizationID is empty only under SourceGlobal.
type TenantContext struct {
	UserID         string
	OrganizationID string
	Source         ContextSource
}

// ResolveTenant picks the active organization for a request. Precedence:
// explicit parameter, then session value, then the user's first
// organization. A super-admin without any organization membership resolves
// to the global (no-tenant) context; anyone else without an organization is
// unauthorized.
//
// The explicit parameter and session value are validated against the user's
// memberships so a request cannot pivot into an organization the user does
// not belong to. Super-admins may select any organization.
func ResolveTenant(ctx context.Context, repo repositories.MembershipRepository, userID, param, session string) (TenantContext, error) {
	resolver := NewResolver(repo, userID)

	super, err := resolver.IsSuperAdmin(ctx)
	if err != nil {
		return TenantContext{}, err
	}

	for _, candidate := range []struct {
		id     string
		source ContextSource
	}{
		{param, SourceParam},
		{session, SourceSession},
	} {
		if candidate.id == "" {
			continue
		}
		if super {
			return TenantContext{UserID: userID, OrganizationID: candidate.id, Source: candidate.source}, nil
		}
		member, err := resolver.isMember(ctx, candidate.id)
		if err != nil {
			return TenantContext{}, err
		}
		if member {
			return TenantContext{UserID: userID, OrganizationID: candidate.id, Source: candidate.source}, nil
		}
		// A named organization the user does not belong to is treated the
		// same as a missing one: not found, never forbidden.
		return TenantContext{}, &domain.NotFoundError{Message: "organization not found"}
	}

	orgs, err := repo.OrganizationsForUser(ctx, userID)
	if err != nil {
		return TenantContext{}, err
	}
	if len(orgs) > 0 {
		return TenantContext{UserID: userID, OrganizationID: orgs[0].ID, Source: SourceFallback}, nil
	}

	if super {
		return TenantContext{UserID: userID, Source: SourceGlobal}, nil
	}

	return TenantContext{}, &domain.UnauthorizedError{Message: "user belongs to no organization"}
}

type tenantContextKey struct{}

// WithTenant attaches the resolved tenant context to ctx.
func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// FromContext retrieves the tenant context set by the middleware.
func FromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey{}).(TenantContext)
	return tc, ok
}
