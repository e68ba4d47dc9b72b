package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/platform/db"
	"github.com/palisade-app/palisade/internal/shared"
)

// Postgres error codes translated at this boundary.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository provides PostgreSQL backed persistence for the permission graph.
// The pool is acquired lazily so that a service started without credentials
// fails per call, not at boot.
type Repository struct {
	lazy *db.Lazy
}

// NewRepository constructs a repository over a lazily connected pool.
func NewRepository(lazy *db.Lazy) *Repository {
	return &Repository{lazy: lazy}
}

var _ Store = (*Repository)(nil)

func (r *Repository) pool(ctx context.Context) (*pgxpool.Pool, error) {
	return r.lazy.Acquire(ctx)
}

// ListRoles returns all roles in creation order.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	pool, err := r.pool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT id, name, COALESCE(description, ''), enabled, COALESCE(color, ''), created_at FROM roles ORDER BY created_at, id`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Enabled, &role.Color, &role.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		roles = append(roles, role)
	}
	return roles, storeErr(rows.Err())
}

// ListRolesWithPermissions returns all roles with their assigned permission
// keys attached, grouping the assignment rows in memory.
func (r *Repository) ListRolesWithPermissions(ctx context.Context) ([]RoleWithPermissions, error) {
	roles, err := r.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := r.pool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT role_id, permission FROM role_permissions`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	byRole := make(map[string][]string)
	for rows.Next() {
		var roleID, perm string
		if err := rows.Scan(&roleID, &perm); err != nil {
			return nil, storeErr(err)
		}
		byRole[roleID] = append(byRole[roleID], perm)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}

	out := make([]RoleWithPermissions, 0, len(roles))
	for _, role := range roles {
		perms := byRole[role.ID]
		if perms == nil {
			perms = []string{}
		}
		out = append(out, RoleWithPermissions{Role: role, Permissions: perms})
	}
	return out, nil
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id string) (Role, error) {
	pool, err := r.pool(ctx)
	if err != nil {
		return Role{}, err
	}
	var role Role
	err = pool.QueryRow(ctx, `SELECT id, name, COALESCE(description, ''), enabled, COALESCE(color, ''), created_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.Enabled, &role.Color, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
		}
		return Role{}, storeErr(err)
	}
	return role, nil
}

// InsertRole persists a new role. A colliding id is a conflict.
func (r *Repository) InsertRole(ctx context.Context, role Role) (Role, error) {
	pool, err := r.pool(ctx)
	if err != nil {
		return Role{}, err
	}
	err = pool.QueryRow(ctx,
		`INSERT INTO roles (id, name, description, enabled, color) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		role.ID, role.Name, role.Description, role.Enabled, role.Color,
	).Scan(&role.CreatedAt)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return Role{}, fmt.Errorf("%w: role id %s", shared.ErrConflict, role.ID)
		}
		return Role{}, storeErr(err)
	}
	return role, nil
}

// UpdateRole applies a partial update and returns the updated row.
func (r *Repository) UpdateRole(ctx context.Context, id string, update RoleUpdate) (Role, error) {
	pool, err := r.pool(ctx)
	if err != nil {
		return Role{}, err
	}
	var role Role
	err = pool.QueryRow(ctx,
		`UPDATE roles SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			enabled = COALESCE($4, enabled),
			color = COALESCE($5, color)
		WHERE id = $1
		RETURNING id, name, COALESCE(description, ''), enabled, COALESCE(color, ''), created_at`,
		id, update.Name, update.Description, update.Enabled, update.Color,
	).Scan(&role.ID, &role.Name, &role.Description, &role.Enabled, &role.Color, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
		}
		return Role{}, storeErr(err)
	}
	return role, nil
}

// DeleteRole removes a role. The schema cascades assignment rows and nulls
// user references.
func (r *Repository) DeleteRole(ctx context.Context, id string) error {
	pool, err := r.pool(ctx)
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
	}
	return nil
}

// RolePermissions returns the permission keys assigned to a role.
func (r *Repository) RolePermissions(ctx context.Context, roleID string) ([]string, error) {
	pool, err := r.pool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT permission FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, storeErr(err)
		}
		perms = append(perms, perm)
	}
	return perms, storeErr(rows.Err())
}

// InsertAssignment adds a role-permission pair. The unique index makes
// concurrent duplicate submissions safe: one insert wins, the rest observe
// the 23505 translated here.
func (r *Repository) InsertAssignment(ctx context.Context, roleID string, perm permission.Permission) error {
	pool, err := r.pool(ctx)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `INSERT INTO role_permissions (role_id, permission) VALUES ($1, $2)`, roleID, string(perm))
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return shared.ErrAlreadyAssigned
		}
		if isPgCode(err, pgForeignKeyViolation) {
			return fmt.Errorf("%w: role %s", shared.ErrNotFound, roleID)
		}
		return storeErr(err)
	}
	return nil
}

// DeleteAssignment removes a role-permission pair, succeeding when absent.
func (r *Repository) DeleteAssignment(ctx context.Context, roleID string, perm permission.Permission) error {
	pool, err := r.pool(ctx)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission = $2`, roleID, string(perm))
	return storeErr(err)
}

// ListPermissionCatalog returns every recognized entity/operation pair.
func (r *Repository) ListPermissionCatalog(ctx context.Context) ([]CatalogEntry, error) {
	pool, err := r.pool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT perm_key, entity, operation FROM permissions ORDER BY entity, operation`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var entry CatalogEntry
		if err := rows.Scan(&entry.Key, &entry.Entity, &entry.Operation); err != nil {
			return nil, storeErr(err)
		}
		entries = append(entries, entry)
	}
	return entries, storeErr(rows.Err())
}

// CatalogContains reports whether perm is a registered catalog key.
func (r *Repository) CatalogContains(ctx context.Context, perm permission.Permission) (bool, error) {
	pool, err := r.pool(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE perm_key = $1)`, string(perm)).Scan(&exists)
	if err != nil {
		return false, storeErr(err)
	}
	return exists, nil
}

// EnsureCatalog upserts catalog entries, leaving existing rows untouched.
func (r *Repository) EnsureCatalog(ctx context.Context, entries []CatalogEntry) error {
	pool, err := r.pool(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		_, err := pool.Exec(ctx,
			`INSERT INTO permissions (perm_key, entity, operation) VALUES ($1, $2, $3) ON CONFLICT (perm_key) DO NOTHING`,
			string(entry.Key), entry.Entity, entry.Operation,
		)
		if err != nil {
			return storeErr(err)
		}
	}
	return nil
}

// ListUsers returns all application users in creation order.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	pool, err := r.pool(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT id, COALESCE(name, ''), COALESCE(email, ''), role_id, created_at FROM app_users ORDER BY created_at, id`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.RoleID, &user.CreatedAt); err != nil {
			return nil, storeErr(err)
		}
		users = append(users, user)
	}
	return users, storeErr(rows.Err())
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	pool, err := r.pool(ctx)
	if err != nil {
		return User{}, err
	}
	var user User
	err = pool.QueryRow(ctx, `SELECT id, COALESCE(name, ''), COALESCE(email, ''), role_id, created_at FROM app_users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.Email, &user.RoleID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
		}
		return User{}, storeErr(err)
	}
	return user, nil
}

// InsertUser persists a new application user.
func (r *Repository) InsertUser(ctx context.Context, user User) error {
	pool, err := r.pool(ctx)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO app_users (id, name, email, role_id) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Name, user.Email, user.RoleID,
	)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return fmt.Errorf("%w: user id %s", shared.ErrConflict, user.ID)
		}
		return storeErr(err)
	}
	return nil
}

// SetUserRole reassigns (or with nil clears) a user's role.
func (r *Repository) SetUserRole(ctx context.Context, userID string, roleID *string) error {
	pool, err := r.pool(ctx)
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, `UPDATE app_users SET role_id = $2 WHERE id = $1`, userID, roleID)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", shared.ErrNotFound, userID)
	}
	return nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// storeErr wraps persistence failures so handlers surface them as opaque 500s.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
}
