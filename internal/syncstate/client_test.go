package syncstate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/palisade-app/palisade/internal/rbac"
	"github.com/palisade-app/palisade/internal/shared"
	"github.com/palisade-app/palisade/internal/syncstate"
	_ "github.com/palisade-app/palisade/testing"
)

// apiStub is a scriptable stand-in for the server API that counts fetches.
type apiStub struct {
	mu sync.Mutex

	roles       []rbac.RoleWithPermissions
	users       []rbac.User
	catalog     []rbac.CatalogEntry
	me          *syncstate.Me
	meStatus    int
	rolesCalls  int
	usersCalls  int
	assignCalls int

	// assignStatus lets tests force the assign endpoint's response.
	assignStatus int
	assignBody   string
}

func (s *apiStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/roles/with-perms", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.rolesCalls++
		roles := s.roles
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"roles": roles})
	})
	mux.HandleFunc("GET /api/users", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.usersCalls++
		users := s.users
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"users": users})
	})
	mux.HandleFunc("GET /api/permissions", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		catalog := s.catalog
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"permissions": catalog})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		me, status := s.me, s.meStatus
		s.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
			return
		}
		_ = json.NewEncoder(w).Encode(me)
	})
	mux.HandleFunc("POST /api/roles", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		role := rbac.Role{ID: "generated", Name: payload.Name, Enabled: true}
		s.mu.Lock()
		s.roles = append(s.roles, rbac.RoleWithPermissions{Role: role, Permissions: []string{}})
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"role": role})
	})
	mux.HandleFunc("POST /api/roles/{id}/permissions", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.assignCalls++
		status, body := s.assignStatus, s.assignBody
		s.mu.Unlock()
		if status == 0 {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
		if body != "" {
			_, _ = w.Write([]byte(body))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("DELETE /api/roles/{id}/permissions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("PATCH /api/users/{id}/role", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	return mux
}

func newClientHarness(t *testing.T, stub *apiStub) *syncstate.Client {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)
	return syncstate.NewClient(server.URL, server.Client(), nil)
}

func (s *apiStub) roleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolesCalls
}

func TestRolesServedFromCache(t *testing.T) {
	stub := &apiStub{roles: []rbac.RoleWithPermissions{
		{Role: rbac.Role{ID: "r1", Name: "Viewer", Enabled: true}, Permissions: []string{"roles.read"}},
	}}
	client := newClientHarness(t, stub)
	ctx := context.Background()

	first, err := client.Roles(ctx)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	second, err := client.Roles(ctx)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("unexpected role slices %v %v", first, second)
	}
	if got := stub.roleCount(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
}

func TestMutationInvalidatesAndRefetches(t *testing.T) {
	stub := &apiStub{}
	client := newClientHarness(t, stub)
	ctx := context.Background()

	if _, err := client.Roles(ctx); err != nil {
		t.Fatalf("roles: %v", err)
	}

	role, err := client.AddRole(ctx, rbac.CreateRoleInput{Name: "Editor"})
	if err != nil {
		t.Fatalf("add role: %v", err)
	}
	if role.Name != "Editor" {
		t.Fatalf("unexpected role %+v", role)
	}

	// The write invalidated the slice; the next read hits the server and sees
	// the new role.
	roles, err := client.Roles(ctx)
	if err != nil {
		t.Fatalf("roles after write: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "Editor" {
		t.Fatalf("stale roles after invalidation: %v", roles)
	}
	if got := stub.roleCount(); got != 2 {
		t.Fatalf("expected a refetch after the write, got %d fetches", got)
	}
}

func TestAssignPermissionAbsorbsConflict(t *testing.T) {
	stub := &apiStub{
		assignStatus: http.StatusConflict,
		assignBody:   `{"error":"permission already assigned to role"}`,
	}
	client := newClientHarness(t, stub)

	if err := client.AssignPermission(context.Background(), "r1", "roles.read"); err != nil {
		t.Fatalf("conflict must read as success, got %v", err)
	}
}

func TestAssignPermissionSurfacesOtherErrors(t *testing.T) {
	stub := &apiStub{
		assignStatus: http.StatusBadRequest,
		assignBody:   `{"error":"permission not in catalog"}`,
	}
	client := newClientHarness(t, stub)

	err := client.AssignPermission(context.Background(), "r1", "widgets.launch")
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *syncstate.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestUnauthenticatedMapsToSentinel(t *testing.T) {
	stub := &apiStub{meStatus: http.StatusUnauthorized}
	client := newClientHarness(t, stub)

	_, err := client.Me(context.Background())
	if !errors.Is(err, shared.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestEntitiesDerivedFromCatalog(t *testing.T) {
	stub := &apiStub{catalog: []rbac.CatalogEntry{
		{Key: "projects.create", Entity: "projects", Operation: "create"},
		{Key: "projects.read", Entity: "projects", Operation: "read"},
		{Key: "tasks.read", Entity: "tasks", Operation: "read"},
	}}
	client := newClientHarness(t, stub)

	entities, err := client.Entities(context.Background())
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	if len(entities) != 2 || entities[0] != "projects" || entities[1] != "tasks" {
		t.Fatalf("unexpected entities %v", entities)
	}
}

func TestEntitiesFallBackOnEmptyCatalog(t *testing.T) {
	stub := &apiStub{}
	client := newClientHarness(t, stub)

	entities, err := client.Entities(context.Background())
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	if len(entities) == 0 {
		t.Fatalf("expected default entity list")
	}
}

func TestSnapshotAggregatesSlices(t *testing.T) {
	stub := &apiStub{
		roles: []rbac.RoleWithPermissions{
			{Role: rbac.Role{ID: "r1", Name: "Viewer", Enabled: true}, Permissions: []string{"roles.read"}},
		},
		users: []rbac.User{{ID: "u1", Name: "Ada"}},
		catalog: []rbac.CatalogEntry{
			{Key: "projects.read", Entity: "projects", Operation: "read"},
		},
	}
	client := newClientHarness(t, stub)
	ctx := context.Background()

	snap, err := client.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Roles) != 1 || snap.Roles[0].Name != "Viewer" {
		t.Fatalf("unexpected roles %v", snap.Roles)
	}
	if len(snap.Users) != 1 || snap.Users[0].ID != "u1" {
		t.Fatalf("unexpected users %v", snap.Users)
	}
	if len(snap.Permissions) != 1 || len(snap.Entities) != 1 || snap.Entities[0] != "projects" {
		t.Fatalf("unexpected catalog view %v %v", snap.Permissions, snap.Entities)
	}
	if len(snap.Operations) != 4 {
		t.Fatalf("unexpected operations %v", snap.Operations)
	}

	// A second snapshot is fully cache-served.
	if _, err := client.Snapshot(ctx); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if got := stub.roleCount(); got != 1 {
		t.Fatalf("expected a single roles fetch across snapshots, got %d", got)
	}
}

func TestCanceledContextLeavesCacheInvalid(t *testing.T) {
	stub := &apiStub{}
	client := newClientHarness(t, stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Roles(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// A later call with a live context still succeeds.
	if _, err := client.Roles(context.Background()); err != nil {
		t.Fatalf("roles after cancellation: %v", err)
	}
}
