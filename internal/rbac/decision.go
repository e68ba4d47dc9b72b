package rbac

import (
	"context"
	"log/slog"
	"strings"

	"github.com/palisade-app/palisade/internal/permission"
)

// Decider answers authorization questions over the store's current snapshot.
// It is stateless: every call resolves the user-role-permissions chain fresh.
type Decider struct {
	store  Store
	logger *slog.Logger
}

// NewDecider constructs a Decider.
func NewDecider(store Store, logger *slog.Logger) *Decider {
	return &Decider{store: store, logger: logger}
}

// ResolvePermissions returns the permission set granted to userID through its
// assigned role. A missing user, missing role assignment, or failed lookup is
// "no privileges", never an error: enforcement is fail-closed.
func (d *Decider) ResolvePermissions(ctx context.Context, userID string) permission.Set {
	user, err := d.store.GetUser(ctx, userID)
	if err != nil || user.RoleID == nil {
		if err != nil && d.logger != nil {
			d.logger.Debug("resolve permissions: user lookup", slog.String("user", userID), slog.Any("error", err))
		}
		return permission.Set{}
	}
	perms, err := d.store.RolePermissions(ctx, *user.RoleID)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("resolve permissions: role lookup", slog.String("role", *user.RoleID), slog.Any("error", err))
		}
		return permission.Set{}
	}
	return permission.NewSet(perms...)
}

// Can reports whether userID may perform the required operation, honoring
// entity.* and *.operation wildcard grants.
func (d *Decider) Can(ctx context.Context, userID string, required permission.Permission) bool {
	return d.ResolvePermissions(ctx, userID).Matches(required)
}

// Classify derives the coarse administrator/manager flags. Two independent
// predicates feed each flag: a case-insensitive marker in the role's display
// name, kept so legacy name-based roles continue to work, and evidence from
// the role's actual grants. Either suffices.
func (d *Decider) Classify(ctx context.Context, userID string) Classification {
	var roleName string
	if user, err := d.store.GetUser(ctx, userID); err == nil && user.RoleID != nil {
		if role, err := d.store.GetRole(ctx, *user.RoleID); err == nil {
			roleName = role.Name
		}
	}
	held := d.ResolvePermissions(ctx, userID)

	return Classification{
		IsAdministrator: nameHasMarker(roleName, "admin") || adminGrantEvidence(held),
		IsManager:       nameHasMarker(roleName, "manager") || managerGrantEvidence(held),
	}
}

func nameHasMarker(name, marker string) bool {
	return strings.Contains(strings.ToLower(name), marker)
}

// adminGrantEvidence: the role can rewrite the role graph itself (both
// roles.update and roles.delete), or holds an entity-wide or *.admin grant.
func adminGrantEvidence(held permission.Set) bool {
	if held.Contains("roles.update") && held.Contains("roles.delete") {
		return true
	}
	for p := range held {
		if p.Operation() == permission.Wildcard || p.Operation() == "admin" {
			return true
		}
	}
	return false
}

// managerGrantEvidence: any *.manage style grant.
func managerGrantEvidence(held permission.Set) bool {
	for p := range held {
		if p.Operation() == "manage" {
			return true
		}
	}
	return false
}
