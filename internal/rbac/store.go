package rbac

import (
	"context"

	"github.com/palisade-app/palisade/internal/permission"
)

// Store is the durable permission graph port. Implementations report
// shared.ErrNotFound for unknown ids, shared.ErrAlreadyAssigned for duplicate
// role-permission pairs, and shared.ErrConflict for id collisions. Removing an
// absent assignment succeeds; that asymmetry with assignment is deliberate and
// callers rely on it.
type Store interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListRolesWithPermissions(ctx context.Context) ([]RoleWithPermissions, error)
	GetRole(ctx context.Context, id string) (Role, error)
	InsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, id string, update RoleUpdate) (Role, error)
	// DeleteRole cascades: permission assignments are removed and users
	// referencing the role have their reference cleared.
	DeleteRole(ctx context.Context, id string) error

	RolePermissions(ctx context.Context, roleID string) ([]string, error)
	InsertAssignment(ctx context.Context, roleID string, perm permission.Permission) error
	DeleteAssignment(ctx context.Context, roleID string, perm permission.Permission) error

	ListPermissionCatalog(ctx context.Context) ([]CatalogEntry, error)
	CatalogContains(ctx context.Context, perm permission.Permission) (bool, error)
	EnsureCatalog(ctx context.Context, entries []CatalogEntry) error

	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	InsertUser(ctx context.Context, user User) error
	SetUserRole(ctx context.Context, userID string, roleID *string) error
}
