package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/shared"
)

// ErrPermissionUnknown marks an assignment against a key missing from the
// catalog. Handlers surface it as a 400, not a 404.
var ErrPermissionUnknown = fmt.Errorf("%w: permission not in catalog", shared.ErrNotFound)

// Service orchestrates permission graph mutations over a Store.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Store exposes the underlying port for read paths that need no orchestration.
func (s *Service) Store() Store {
	return s.store
}

// ListRoles returns all roles without their permissions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// ListRolesWithPermissions returns all roles with assigned permission keys.
func (s *Service) ListRolesWithPermissions(ctx context.Context) ([]RoleWithPermissions, error) {
	return s.store.ListRolesWithPermissions(ctx)
}

// ListUsers returns all application users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// ListPermissionCatalog returns the global entity/operation enumeration.
func (s *Service) ListPermissionCatalog(ctx context.Context) ([]CatalogEntry, error) {
	return s.store.ListPermissionCatalog(ctx)
}

// CreateRoleInput carries role creation fields. ID is optional; anything that
// is not a well-formed UUID is replaced with a generated one.
type CreateRoleInput struct {
	ID          string
	Name        string
	Description string
	Enabled     *bool
	Color       string
}

// CreateRole validates and persists a new role.
func (s *Service) CreateRole(ctx context.Context, input CreateRoleInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}

	id := input.ID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	return s.store.InsertRole(ctx, Role{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Enabled:     enabled,
		Color:       input.Color,
	})
}

// UpdateRole applies a partial update. An empty patch is a validation error.
func (s *Service) UpdateRole(ctx context.Context, id string, update RoleUpdate) (Role, error) {
	if update.IsEmpty() {
		return Role{}, fmt.Errorf("%w: no valid update fields provided", shared.ErrValidation)
	}
	if update.Name != nil {
		trimmed := strings.TrimSpace(*update.Name)
		if trimmed == "" {
			return Role{}, fmt.Errorf("%w: name required", shared.ErrValidation)
		}
		update.Name = &trimmed
	}
	return s.store.UpdateRole(ctx, id, update)
}

// DeleteRole removes a role. Assignments cascade away and users referencing
// the role fall back to "no role", which denies by default.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	return s.store.DeleteRole(ctx, id)
}

// AssignPermission adds a permission to a role after checking the key against
// the catalog. A duplicate pair surfaces as shared.ErrAlreadyAssigned: the
// HTTP layer reports it as 409 and idempotent callers absorb it as success.
func (s *Service) AssignPermission(ctx context.Context, roleID string, perm permission.Permission) error {
	known, err := s.store.CatalogContains(ctx, perm)
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("%w: %q", ErrPermissionUnknown, perm)
	}
	return s.store.InsertAssignment(ctx, roleID, perm)
}

// RemovePermission drops a permission from a role. Removing an absent pair is
// a no-op success; unlike assignment no conflict absorption is needed.
func (s *Service) RemovePermission(ctx context.Context, roleID string, perm permission.Permission) error {
	return s.store.DeleteAssignment(ctx, roleID, perm)
}

// AssignUserRole reassigns a user's role; nil clears the assignment.
func (s *Service) AssignUserRole(ctx context.Context, userID string, roleID *string) error {
	return s.store.SetUserRole(ctx, userID, roleID)
}

// CreateUser persists an application user record.
func (s *Service) CreateUser(ctx context.Context, user User) error {
	return s.store.InsertUser(ctx, user)
}

// CreateUserIfAbsent provisions the application-level record on first
// authentication. An existing id is left untouched and reported as success.
func (s *Service) CreateUserIfAbsent(ctx context.Context, user User) error {
	if _, err := s.store.GetUser(ctx, user.ID); err == nil {
		return nil
	}
	err := s.store.InsertUser(ctx, user)
	if shared.IsConflict(err) {
		// Lost a race with a concurrent first login; the record exists.
		return nil
	}
	return err
}

// SeedCatalog registers the entity cross product of the four operations,
// falling back to the default entity list when none are given.
func (s *Service) SeedCatalog(ctx context.Context, entities []string) error {
	if len(entities) == 0 {
		entities = permission.DefaultEntities
	}
	entries := make([]CatalogEntry, 0, len(entities)*len(permission.Operations))
	for _, entity := range entities {
		for _, op := range permission.Operations {
			entries = append(entries, CatalogEntry{
				Key:       permission.Compose(entity, string(op)),
				Entity:    entity,
				Operation: string(op),
			})
		}
	}
	return s.store.EnsureCatalog(ctx, entries)
}
