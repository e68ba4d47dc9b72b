package syncstate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/palisade-app/palisade/internal/permission"
)

// Bulk matrix operations. Each toggle computes its target set from the cached
// snapshot and issues the individual assign/remove calls concurrently with
// all-settled semantics: a failing operation is logged and skipped, siblings
// continue, and only a batch where every operation failed is an error.
// Conflicts never count as failures (AssignPermission absorbs them).

// ToggleRow flips every operation for one entity on the role: if the role
// holds the full row it is cleared, otherwise the missing cells are filled.
func (c *Client) ToggleRow(ctx context.Context, roleID, entity string) error {
	target := make([]permission.Permission, 0, len(permission.Operations))
	for _, op := range permission.Operations {
		target = append(target, permission.Compose(entity, string(op)))
	}
	return c.toggle(ctx, roleID, target)
}

// ToggleColumn flips one operation across every catalog entity on the role.
func (c *Client) ToggleColumn(ctx context.Context, roleID string, op permission.Operation) error {
	entities, err := c.Entities(ctx)
	if err != nil {
		return err
	}
	target := make([]permission.Permission, 0, len(entities))
	for _, entity := range entities {
		target = append(target, permission.Compose(entity, string(op)))
	}
	return c.toggle(ctx, roleID, target)
}

// ToggleAll flips the entire matrix on the role.
func (c *Client) ToggleAll(ctx context.Context, roleID string) error {
	entities, err := c.Entities(ctx)
	if err != nil {
		return err
	}
	target := make([]permission.Permission, 0, len(entities)*len(permission.Operations))
	for _, entity := range entities {
		for _, op := range permission.Operations {
			target = append(target, permission.Compose(entity, string(op)))
		}
	}
	return c.toggle(ctx, roleID, target)
}

func (c *Client) toggle(ctx context.Context, roleID string, target []permission.Permission) error {
	held, err := c.rolePermissionSet(ctx, roleID)
	if err != nil {
		return err
	}

	hasAll := true
	for _, p := range target {
		if !held.Contains(p) {
			hasAll = false
			break
		}
	}

	// Assign only what is missing, remove only what is present, like the
	// matrix UI does; the store would tolerate the rest but there is no
	// point issuing known no-ops.
	var ops []func(context.Context) error
	for _, p := range target {
		p := p
		if hasAll {
			if held.Contains(p) {
				ops = append(ops, func(ctx context.Context) error { return c.removeForBulk(ctx, roleID, p) })
			}
		} else if !held.Contains(p) {
			ops = append(ops, func(ctx context.Context) error { return c.assignForBulk(ctx, roleID, p) })
		}
	}
	if len(ops) == 0 {
		return nil
	}

	var g errgroup.Group
	results := make([]error, len(ops))
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			// All-settled: record the outcome, never abort siblings.
			results[i] = op(ctx)
			return nil
		})
	}
	_ = g.Wait()

	failures := 0
	var last error
	for _, err := range results {
		if err != nil {
			failures++
			last = err
			if c.logger != nil {
				c.logger.Warn("bulk toggle operation failed",
					slog.String("role", roleID), slog.Any("error", err))
			}
		}
	}

	c.InvalidateRoles()

	if failures == len(ops) {
		return fmt.Errorf("syncstate: bulk toggle: all %d operations failed: %w", failures, last)
	}
	return nil
}

// assignForBulk/removeForBulk call the API without the per-call invalidation;
// the batch invalidates once at the end.
func (c *Client) assignForBulk(ctx context.Context, roleID string, perm permission.Permission) error {
	err := c.do(ctx, http.MethodPost, "/api/roles/"+url.PathEscape(roleID)+"/permissions",
		map[string]string{"permission": string(perm)}, nil)
	if err != nil && isConflictMessage(err) {
		return nil
	}
	return err
}

func (c *Client) removeForBulk(ctx context.Context, roleID string, perm permission.Permission) error {
	path := "/api/roles/" + url.PathEscape(roleID) + "/permissions?permission=" + url.QueryEscape(string(perm))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) rolePermissionSet(ctx context.Context, roleID string) (permission.Set, error) {
	roles, err := c.Roles(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role.ID == roleID {
			return permission.NewSet(role.Permissions...), nil
		}
	}
	return permission.Set{}, nil
}
