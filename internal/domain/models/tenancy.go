package models

import (
	"time"
)

// Role names recorded on organization memberships. SuperAdmin is a global
// grant (organization_id NULL) and is never scoped to a tenant.
const (
	RoleSuperAdmin = "super-admin"
	RoleOrgAdmin   = "org-admin"
	RoleMember     = "member"
)

// Organization is the top-level isolation boundary. Every client, project
// and document traces to exactly one organization.
type Organization struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Client is a tenant's customer record; it owns projects.
type Client struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Membership records a user's role. OrganizationID is nil only for the
// global super-admin grant; org-scoped roles are per-(user, organization).
type Membership struct {
	UserID         string  `json:"user_id" db:"user_id"`
	OrganizationID *string `json:"organization_id,omitempty" db:"organization_id"`
	Role           string  `json:"role" db:"role"`
}

// IsGlobal reports whether the membership is a tenant-independent grant.
func (m Membership) IsGlobal() bool {
	return m.OrganizationID == nil
}
