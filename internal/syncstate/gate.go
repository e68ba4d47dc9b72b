package syncstate

import (
	"context"
	"errors"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/shared"
)

// GateState is what a protected view should render.
type GateState int

const (
	// GateLoading: the principal snapshot is still being resolved.
	GateLoading GateState = iota
	// GateForbidden: render the forbidden placeholder, not the children.
	GateForbidden
	// GateAllowed: render the children.
	GateAllowed
)

func (s GateState) String() string {
	switch s {
	case GateLoading:
		return "loading"
	case GateForbidden:
		return "forbidden"
	case GateAllowed:
		return "allowed"
	}
	return "unknown"
}

// Gate is the presentation-layer enforcement point. It is cosmetic: it decides
// what to render and which controls to enable, while the real boundary stays
// on the server. Denial here is a placeholder state, never an error.
type Gate struct {
	client *Client
}

// NewGate wraps a synchronization client.
func NewGate(client *Client) *Gate {
	return &Gate{client: client}
}

// State resolves the gate for a view requiring perm. Context expiry while the
// snapshot is still in flight reports GateLoading so the view can keep its
// spinner; an unauthenticated or failed resolution reports GateForbidden
// (fail closed).
func (g *Gate) State(ctx context.Context, perm permission.Permission) GateState {
	me, err := g.client.Me(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return GateLoading
		}
		return GateForbidden
	}
	if permission.NewSet(me.Permissions...).Matches(perm) {
		return GateAllowed
	}
	return GateForbidden
}

// CanEdit reports whether mutation controls (matrix checkboxes, create/delete
// buttons) should be enabled: administrators and managers only.
func (g *Gate) CanEdit(ctx context.Context) bool {
	me, err := g.client.Me(ctx)
	if err != nil {
		return false
	}
	return me.IsAdministrator || me.IsManager
}

// Can reports whether the signed-in principal holds perm, for per-control
// gating. Unresolved snapshots deny.
func (g *Gate) Can(ctx context.Context, perm permission.Permission) bool {
	me, err := g.client.Me(ctx)
	if err != nil {
		return false
	}
	return permission.NewSet(me.Permissions...).Matches(perm)
}

// Principal returns the snapshot's user id, or ErrUnauthenticated.
func (g *Gate) Principal(ctx context.Context) (string, error) {
	me, err := g.client.Me(ctx)
	if err != nil {
		return "", err
	}
	if me.User.ID == "" {
		return "", shared.ErrUnauthenticated
	}
	return me.User.ID, nil
}
