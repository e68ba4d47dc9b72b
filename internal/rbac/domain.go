// Package rbac implements the permission graph: roles, their permission
// assignments, application users, and the authorization decisions derived
// from them.
package rbac

import (
	"time"

	"github.com/palisade-app/palisade/internal/permission"
)

// Role is a named bundle of permissions assignable to users.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Color       string    `json:"color,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RoleWithPermissions couples a role with its assigned permission keys.
type RoleWithPermissions struct {
	Role
	Permissions []string `json:"permissions"`
}

// RoleUpdate carries a partial-field role mutation. Nil fields are untouched.
type RoleUpdate struct {
	Name        *string
	Description *string
	Enabled     *bool
	Color       *string
}

// IsEmpty reports whether no recognized field was supplied.
func (u RoleUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Enabled == nil && u.Color == nil
}

// User is the application-level identity record. Its ID matches the external
// identity provider's subject. RoleID is nil when no role is assigned.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	RoleID    *string   `json:"roleId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CatalogEntry is one recognized entity/operation pair.
type CatalogEntry struct {
	Key       permission.Permission `json:"perm_key"`
	Entity    string                `json:"entity"`
	Operation string                `json:"operation"`
}

// Classification holds the coarse-grained role flags used for bulk UI gating.
type Classification struct {
	IsAdministrator bool `json:"isAdministrator"`
	IsManager       bool `json:"isManager"`
}
