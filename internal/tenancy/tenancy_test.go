package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/domain"
	"loom/internal/domain/models"
)

// fakeMemberships answers role lookups from fixed maps and counts queries
// so memoization is observable.
type fakeMemberships struct {
	global       []models.Membership
	orgRoles     map[string][]models.Membership // key: userID|orgID
	orgs         map[string][]models.Organization
	clientGrants map[string]bool // key: userID|clientID

	orgRoleQueries int
}

func key(a, b string) string { return a + "|" + b }

func (f *fakeMemberships) GlobalRoles(ctx context.Context, userID string) ([]models.Membership, error) {
	var out []models.Membership
	for _, m := range f.global {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemberships) RolesInOrganization(ctx context.Context, userID, organizationID string) ([]models.Membership, error) {
	f.orgRoleQueries++
	return f.orgRoles[key(userID, organizationID)], nil
}

func (f *fakeMemberships) OrganizationsForUser(ctx context.Context, userID string) ([]models.Organization, error) {
	return f.orgs[userID], nil
}

func (f *fakeMemberships) HasClientAccess(ctx context.Context, userID, clientID string) (bool, error) {
	return f.clientGrants[key(userID, clientID)], nil
}

func orgAdminOf(userID, orgID string) models.Membership {
	return models.Membership{UserID: userID, OrganizationID: &orgID, Role: models.RoleOrgAdmin}
}

func TestResolverOrgAdminScopedToOwningOrg(t *testing.T) {
	repo := &fakeMemberships{
		orgRoles: map[string][]models.Membership{
			key("alice", "org-a"): {orgAdminOf("alice", "org-a")},
		},
	}
	r := NewResolver(repo, "alice")

	// Admin of org A may update entities owned by org A.
	allowed, err := r.CanUpdate(context.Background(), Scope{OrganizationID: "org-a"})
	require.NoError(t, err)
	assert.True(t, allowed)

	// The same grant buys nothing in org B.
	allowed, err = r.CanUpdate(context.Background(), Scope{OrganizationID: "org-b"})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestResolverSuperAdminBypassesOrgChecks(t *testing.T) {
	repo := &fakeMemberships{
		global: []models.Membership{
			{UserID: "root", Role: models.RoleSuperAdmin},
		},
	}
	r := NewResolver(repo, "root")

	for _, scope := range []Scope{
		{OrganizationID: "org-a"},
		{OrganizationID: "org-b", ClientID: "client-1"},
		{},
	} {
		allowed, err := r.CanDelete(context.Background(), scope)
		require.NoError(t, err)
		assert.True(t, allowed, "scope %+v", scope)
	}
}

func TestResolverClientGrant(t *testing.T) {
	repo := &fakeMemberships{
		clientGrants: map[string]bool{
			key("carol", "client-1"): true,
		},
	}
	r := NewResolver(repo, "carol")

	// No org role, but a direct client grant.
	allowed, err := r.CanView(context.Background(), Scope{OrganizationID: "org-a", ClientID: "client-1"})
	require.NoError(t, err)
	assert.True(t, allowed)

	// The grant does not extend to other clients.
	allowed, err = r.CanView(context.Background(), Scope{OrganizationID: "org-a", ClientID: "client-2"})
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestResolverMemoizesRoleLookups(t *testing.T) {
	repo := &fakeMemberships{
		orgRoles: map[string][]models.Membership{
			key("alice", "org-a"): {orgAdminOf("alice", "org-a")},
		},
	}
	r := NewResolver(repo, "alice")

	scope := Scope{OrganizationID: "org-a"}
	for i := 0; i < 3; i++ {
		_, err := r.CanView(context.Background(), scope)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, repo.orgRoleQueries, "per-org roles should be fetched once per request")
}

func TestResolveTenantPrecedence(t *testing.T) {
	repo := &fakeMemberships{
		orgRoles: map[string][]models.Membership{
			key("alice", "org-a"): {orgAdminOf("alice", "org-a")},
			key("alice", "org-b"): {{UserID: "alice", Role: models.RoleMember}},
		},
		orgs: map[string][]models.Organization{
			"alice": {{ID: "org-a"}, {ID: "org-b"}},
		},
	}

	tests := []struct {
		name       string
		param      string
		session    string
		wantOrg    string
		wantSource ContextSource
	}{
		{name: "param wins", param: "org-b", session: "org-a", wantOrg: "org-b", wantSource: SourceParam},
		{name: "session when no param", session: "org-b", wantOrg: "org-b", wantSource: SourceSession},
		{name: "fallback to first org", wantOrg: "org-a", wantSource: SourceFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := ResolveTenant(context.Background(), repo, "alice", tt.param, tt.session)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrg, tc.OrganizationID)
			assert.Equal(t, tt.wantSource, tc.Source)
		})
	}
}

func TestResolveTenantForeignOrgIsNotFound(t *testing.T) {
	repo := &fakeMemberships{
		orgs: map[string][]models.Organization{
			"alice": {{ID: "org-a"}},
		},
	}

	_, err := ResolveTenant(context.Background(), repo, "alice", "org-of-someone-else", "")
	require.Error(t, err)

	// Cross-tenant lookups must read as not-found, never forbidden.
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf), "got %T: %v", err, err)
}

func TestResolveTenantSuperAdminGlobalContext(t *testing.T) {
	repo := &fakeMemberships{
		global: []models.Membership{{UserID: "root", Role: models.RoleSuperAdmin}},
	}

	tc, err := ResolveTenant(context.Background(), repo, "root", "", "")
	require.NoError(t, err)
	assert.Equal(t, SourceGlobal, tc.Source)
	assert.Empty(t, tc.OrganizationID)

	// A super-admin may also pivot into any named organization.
	tc, err = ResolveTenant(context.Background(), repo, "root", "org-x", "")
	require.NoError(t, err)
	assert.Equal(t, "org-x", tc.OrganizationID)
	assert.Equal(t, SourceParam, tc.Source)
}

func TestResolveTenantNoOrgsUnauthorized(t *testing.T) {
	repo := &fakeMemberships{}

	_, err := ResolveTenant(context.Background(), repo, "nobody", "", "")
	require.Error(t, err)

	var unauth *domain.UnauthorizedError
	assert.True(t, errors.As(err, &unauth), "got %T: %v", err, err)
}
