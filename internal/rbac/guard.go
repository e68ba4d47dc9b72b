package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/shared"
)

// Guard is the in-handler enforcement point. Privileged mutation handlers
// call Require before touching the store: the edge interceptor only covers
// page navigation, so API mutations must verify independently. The principal
// is re-derived from the request's own session context; identity supplied in
// a request body is never trusted.
type Guard struct {
	Decider *Decider
	Logger  *slog.Logger
}

// Require returns nil when the session principal holds the required
// permission, shared.ErrUnauthenticated when there is no principal, and
// shared.ErrForbidden otherwise (including any lookup failure, which denies).
func (g Guard) Require(ctx context.Context, required permission.Permission) error {
	principal := shared.PrincipalID(ctx)
	if principal == "" {
		return shared.ErrUnauthenticated
	}
	if !g.Decider.Can(ctx, principal, required) {
		if g.Logger != nil {
			g.Logger.Info("guard denial",
				slog.String("user", principal),
				slog.String("required", string(required)))
		}
		return fmt.Errorf("%w: requires %s", shared.ErrForbidden, required)
	}
	return nil
}
