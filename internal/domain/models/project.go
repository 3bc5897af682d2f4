package models

import (
	"time"
)

// Project groups documents for one client engagement. Its organization
// context is derived transitively through the owning client.
type Project struct {
	ID            string     `json:"id" db:"id"`
	ClientID      string     `json:"client_id" db:"client_id"`
	ProjectTypeID string     `json:"project_type_id" db:"project_type_id"`
	Name          string     `json:"name" db:"name"`
	Description   string     `json:"description" db:"description"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	// OrganizationID is resolved via the client join, not stored on the row.
	OrganizationID string `json:"organization_id,omitempty"`
}
