package rbac_test

import (
	"context"
	"errors"
	"testing"

	"github.com/palisade-app/palisade/internal/rbac"
	"github.com/palisade-app/palisade/internal/shared"
)

func contextWithPrincipal(userID string) context.Context {
	sess := &shared.Session{}
	sess.SetUser(userID)
	return shared.ContextWithSession(context.Background(), sess)
}

func TestGuardRequire(t *testing.T) {
	store := rbac.NewMemStore()
	guard := rbac.Guard{Decider: rbac.NewDecider(store, nil)}
	userID := seedViewer(t, store, "roles.read")

	if err := guard.Require(contextWithPrincipal(userID), "roles.read"); err != nil {
		t.Fatalf("expected grant, got %v", err)
	}

	err := guard.Require(contextWithPrincipal(userID), "roles.delete")
	if !errors.Is(err, shared.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGuardRequireAnonymous(t *testing.T) {
	guard := rbac.Guard{Decider: rbac.NewDecider(rbac.NewMemStore(), nil)}

	err := guard.Require(context.Background(), "roles.read")
	if !errors.Is(err, shared.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestGuardFailsClosedOnUnknownPrincipal(t *testing.T) {
	guard := rbac.Guard{Decider: rbac.NewDecider(rbac.NewMemStore(), nil)}

	err := guard.Require(contextWithPrincipal("ghost"), "roles.read")
	if !errors.Is(err, shared.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
