package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/shared"
)

// MemStore is an in-memory Store with the same conflict semantics as the
// Postgres repository. It backs tests and credential-less development runs.
type MemStore struct {
	mu          sync.Mutex
	roles       map[string]Role
	roleOrder   []string
	assignments map[string]map[permission.Permission]struct{}
	catalog     map[permission.Permission]CatalogEntry
	catalogSeq  []permission.Permission
	users       map[string]User
	userOrder   []string
	now         func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		roles:       make(map[string]Role),
		assignments: make(map[string]map[permission.Permission]struct{}),
		catalog:     make(map[permission.Permission]CatalogEntry),
		users:       make(map[string]User),
		now:         time.Now,
	}
}

var _ Store = (*MemStore)(nil)

// ListRoles returns roles in insertion order.
func (m *MemStore) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := make([]Role, 0, len(m.roleOrder))
	for _, id := range m.roleOrder {
		roles = append(roles, m.roles[id])
	}
	return roles, nil
}

// ListRolesWithPermissions returns roles with sorted permission keys.
func (m *MemStore) ListRolesWithPermissions(ctx context.Context) ([]RoleWithPermissions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoleWithPermissions, 0, len(m.roleOrder))
	for _, id := range m.roleOrder {
		perms := make([]string, 0, len(m.assignments[id]))
		for p := range m.assignments[id] {
			perms = append(perms, string(p))
		}
		sort.Strings(perms)
		out = append(out, RoleWithPermissions{Role: m.roles[id], Permissions: perms})
	}
	return out, nil
}

// GetRole fetches a role by id.
func (m *MemStore) GetRole(ctx context.Context, id string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
	}
	return role, nil
}

// InsertRole persists a new role, rejecting id collisions.
func (m *MemStore) InsertRole(ctx context.Context, role Role) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.roles[role.ID]; exists {
		return Role{}, fmt.Errorf("%w: role id %s", shared.ErrConflict, role.ID)
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = m.now()
	}
	m.roles[role.ID] = role
	m.roleOrder = append(m.roleOrder, role.ID)
	m.assignments[role.ID] = make(map[permission.Permission]struct{})
	return role, nil
}

// UpdateRole applies a partial update.
func (m *MemStore) UpdateRole(ctx context.Context, id string, update RoleUpdate) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
	}
	if update.Name != nil {
		role.Name = *update.Name
	}
	if update.Description != nil {
		role.Description = *update.Description
	}
	if update.Enabled != nil {
		role.Enabled = *update.Enabled
	}
	if update.Color != nil {
		role.Color = *update.Color
	}
	m.roles[id] = role
	return role, nil
}

// DeleteRole removes a role, its assignments, and nulls user references.
func (m *MemStore) DeleteRole(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
	}
	delete(m.roles, id)
	delete(m.assignments, id)
	for i, rid := range m.roleOrder {
		if rid == id {
			m.roleOrder = append(m.roleOrder[:i], m.roleOrder[i+1:]...)
			break
		}
	}
	for uid, user := range m.users {
		if user.RoleID != nil && *user.RoleID == id {
			user.RoleID = nil
			m.users[uid] = user
		}
	}
	return nil
}

// RolePermissions returns the permission keys assigned to a role.
func (m *MemStore) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perms := make([]string, 0, len(m.assignments[roleID]))
	for p := range m.assignments[roleID] {
		perms = append(perms, string(p))
	}
	sort.Strings(perms)
	return perms, nil
}

// InsertAssignment adds a role-permission pair, conflicting on duplicates.
func (m *MemStore) InsertAssignment(ctx context.Context, roleID string, perm permission.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.assignments[roleID]
	if !ok {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, roleID)
	}
	if _, dup := set[perm]; dup {
		return shared.ErrAlreadyAssigned
	}
	set[perm] = struct{}{}
	return nil
}

// DeleteAssignment removes a role-permission pair, succeeding when absent.
func (m *MemStore) DeleteAssignment(ctx context.Context, roleID string, perm permission.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.assignments[roleID]; ok {
		delete(set, perm)
	}
	return nil
}

// ListPermissionCatalog returns the catalog in registration order.
func (m *MemStore) ListPermissionCatalog(ctx context.Context) ([]CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]CatalogEntry, 0, len(m.catalogSeq))
	for _, key := range m.catalogSeq {
		entries = append(entries, m.catalog[key])
	}
	return entries, nil
}

// CatalogContains reports whether perm is a registered catalog key.
func (m *MemStore) CatalogContains(ctx context.Context, perm permission.Permission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.catalog[perm]
	return ok, nil
}

// EnsureCatalog registers entries, skipping ones already present.
func (m *MemStore) EnsureCatalog(ctx context.Context, entries []CatalogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		if _, ok := m.catalog[entry.Key]; ok {
			continue
		}
		m.catalog[entry.Key] = entry
		m.catalogSeq = append(m.catalogSeq, entry.Key)
	}
	return nil
}

// ListUsers returns users in insertion order.
func (m *MemStore) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		users = append(users, m.users[id])
	}
	return users, nil
}

// GetUser fetches a user by id.
func (m *MemStore) GetUser(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	return user, nil
}

// InsertUser persists a new user, rejecting id collisions.
func (m *MemStore) InsertUser(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("%w: user id %s", shared.ErrConflict, user.ID)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now()
	}
	m.users[user.ID] = user
	m.userOrder = append(m.userOrder, user.ID)
	return nil
}

// SetUserRole reassigns (or with nil clears) a user's role.
func (m *MemStore) SetUserRole(ctx context.Context, userID string, roleID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", shared.ErrNotFound, userID)
	}
	user.RoleID = roleID
	m.users[userID] = user
	return nil
}
