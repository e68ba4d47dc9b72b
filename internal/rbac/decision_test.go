package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palisade-app/palisade/internal/permission"
)

// seedPrincipal creates a user bound to a role holding perms and returns the
// user id.
func seedPrincipal(t *testing.T, store *MemStore, roleName string, perms ...permission.Permission) string {
	t.Helper()
	ctx := context.Background()

	role, err := store.InsertRole(ctx, Role{ID: "role-" + roleName, Name: roleName, Enabled: true})
	require.NoError(t, err)
	for _, p := range perms {
		require.NoError(t, store.InsertAssignment(ctx, role.ID, p))
	}
	userID := "user-" + roleName
	require.NoError(t, store.InsertUser(ctx, User{ID: userID, RoleID: &role.ID}))
	return userID
}

func TestCanDeniesByDefault(t *testing.T) {
	store := NewMemStore()
	decider := NewDecider(store, nil)
	ctx := context.Background()

	// Unknown user.
	assert.False(t, decider.Can(ctx, "ghost", "roles.read"))

	// Known user without a role.
	require.NoError(t, store.InsertUser(ctx, User{ID: "u1"}))
	assert.False(t, decider.Can(ctx, "u1", "roles.read"))
}

func TestCanWildcards(t *testing.T) {
	store := NewMemStore()
	decider := NewDecider(store, nil)
	ctx := context.Background()

	exact := seedPrincipal(t, store, "exact", "roles.read")
	entityWide := seedPrincipal(t, store, "entitywide", "roles.*")
	opWide := seedPrincipal(t, store, "opwide", "*.read")
	starStar := seedPrincipal(t, store, "starstar", "*.*")

	assert.True(t, decider.Can(ctx, exact, "roles.read"))
	assert.False(t, decider.Can(ctx, exact, "roles.update"))

	assert.True(t, decider.Can(ctx, entityWide, "roles.read"))
	assert.True(t, decider.Can(ctx, entityWide, "roles.delete"))
	assert.False(t, decider.Can(ctx, entityWide, "users.read"))

	assert.True(t, decider.Can(ctx, opWide, "users.read"))
	assert.False(t, decider.Can(ctx, opWide, "users.update"))

	// The double wildcard is not a recognized universal grant.
	assert.False(t, decider.Can(ctx, starStar, "roles.read"))
}

func TestResolvePermissions(t *testing.T) {
	store := NewMemStore()
	decider := NewDecider(store, nil)
	ctx := context.Background()

	userID := seedPrincipal(t, store, "editor", "roles.read", "roles.update")

	held := decider.ResolvePermissions(ctx, userID)
	assert.Len(t, held, 2)
	assert.True(t, held.Contains("roles.read"))

	assert.Empty(t, decider.ResolvePermissions(ctx, "ghost"))
}

func TestClassifyByRoleName(t *testing.T) {
	store := NewMemStore()
	decider := NewDecider(store, nil)
	ctx := context.Background()

	cases := []struct {
		roleName string
		admin    bool
		manager  bool
	}{
		{"Administrator", true, false},
		{"site-admin", true, false},
		{"Project Manager", false, true},
		{"MANAGER", false, true},
		{"Viewer", false, false},
	}
	for _, tc := range cases {
		userID := seedPrincipal(t, store, tc.roleName)
		got := decider.Classify(ctx, userID)
		assert.Equal(t, tc.admin, got.IsAdministrator, "role %q admin", tc.roleName)
		assert.Equal(t, tc.manager, got.IsManager, "role %q manager", tc.roleName)
	}
}

func TestClassifyByGrantEvidence(t *testing.T) {
	store := NewMemStore()
	decider := NewDecider(store, nil)
	ctx := context.Background()

	// Holding both roles.update and roles.delete marks an administrator even
	// with a neutral role name.
	graphEditor := seedPrincipal(t, store, "graph-editor", "roles.update", "roles.delete")
	got := decider.Classify(ctx, graphEditor)
	assert.True(t, got.IsAdministrator)
	assert.False(t, got.IsManager)

	// An entity-wide grant is administrator evidence on its own.
	wildcarded := seedPrincipal(t, store, "operator", "documents.*")
	assert.True(t, decider.Classify(ctx, wildcarded).IsAdministrator)

	// A manage-operation grant marks a manager.
	overseer := seedPrincipal(t, store, "overseer", "projects.manage")
	got = decider.Classify(ctx, overseer)
	assert.False(t, got.IsAdministrator)
	assert.True(t, got.IsManager)

	// roles.update alone is not enough for either flag.
	partial := seedPrincipal(t, store, "partial", "roles.update")
	got = decider.Classify(ctx, partial)
	assert.False(t, got.IsAdministrator)
	assert.False(t, got.IsManager)
}

func TestClassifyAnonymous(t *testing.T) {
	decider := NewDecider(NewMemStore(), nil)
	got := decider.Classify(context.Background(), "ghost")
	assert.False(t, got.IsAdministrator)
	assert.False(t, got.IsManager)
}
