package syncstate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/rbac"
	"github.com/palisade-app/palisade/internal/syncstate"
)

// matrixStub tracks assignments per role and can fail selected permissions.
type matrixStub struct {
	mu       sync.Mutex
	held     map[string]map[string]bool
	failing  map[string]int // permission key -> status to return
	catalog  []rbac.CatalogEntry
	assigned []string
	removed  []string
}

func newMatrixStub(entities ...string) *matrixStub {
	s := &matrixStub{
		held:    map[string]map[string]bool{"r1": {}},
		failing: map[string]int{},
	}
	for _, entity := range entities {
		for _, op := range permission.Operations {
			key := permission.Compose(entity, string(op))
			s.catalog = append(s.catalog, rbac.CatalogEntry{
				Key:       key,
				Entity:    entity,
				Operation: string(op),
			})
		}
	}
	return s
}

func (s *matrixStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/permissions", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		catalog := s.catalog
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"permissions": catalog})
	})
	mux.HandleFunc("GET /api/roles/with-perms", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var out []rbac.RoleWithPermissions
		for id, perms := range s.held {
			keys := make([]string, 0, len(perms))
			for p := range perms {
				keys = append(keys, p)
			}
			sort.Strings(keys)
			out = append(out, rbac.RoleWithPermissions{
				Role:        rbac.Role{ID: id, Name: "Role " + id, Enabled: true},
				Permissions: keys,
			})
		}
		s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"roles": out})
	})
	mux.HandleFunc("POST /api/roles/{id}/permissions", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Permission string `json:"permission"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		roleID := r.PathValue("id")

		s.mu.Lock()
		defer s.mu.Unlock()
		if status, ok := s.failing[payload.Permission]; ok {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "injected failure"})
			return
		}
		if s.held[roleID][payload.Permission] {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "permission already assigned to role"})
			return
		}
		s.held[roleID][payload.Permission] = true
		s.assigned = append(s.assigned, payload.Permission)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("DELETE /api/roles/{id}/permissions", func(w http.ResponseWriter, r *http.Request) {
		roleID := r.PathValue("id")
		key := r.URL.Query().Get("permission")

		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.held[roleID], key)
		s.removed = append(s.removed, key)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	return mux
}

func newMatrixClient(t *testing.T, stub *matrixStub) *syncstate.Client {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)
	return syncstate.NewClient(server.URL, server.Client(), nil)
}

func (s *matrixStub) heldKeys(roleID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.held[roleID]))
	for p := range s.held[roleID] {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	return keys
}

func TestToggleRowFillsMissingCells(t *testing.T) {
	stub := newMatrixStub("projects", "tasks")
	stub.held["r1"]["projects.read"] = true
	client := newMatrixClient(t, stub)

	if err := client.ToggleRow(context.Background(), "r1", "projects"); err != nil {
		t.Fatalf("toggle row: %v", err)
	}

	want := []string{"projects.create", "projects.delete", "projects.read", "projects.update"}
	got := stub.heldKeys("r1")
	if len(got) != len(want) {
		t.Fatalf("expected full row %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected full row %v, got %v", want, got)
		}
	}
}

func TestToggleRowClearsFullRow(t *testing.T) {
	stub := newMatrixStub("projects")
	for _, op := range permission.Operations {
		stub.held["r1"][string(permission.Compose("projects", string(op)))] = true
	}
	client := newMatrixClient(t, stub)

	if err := client.ToggleRow(context.Background(), "r1", "projects"); err != nil {
		t.Fatalf("toggle row: %v", err)
	}
	if got := stub.heldKeys("r1"); len(got) != 0 {
		t.Fatalf("expected cleared row, got %v", got)
	}
}

func TestToggleColumn(t *testing.T) {
	stub := newMatrixStub("projects", "tasks")
	client := newMatrixClient(t, stub)

	if err := client.ToggleColumn(context.Background(), "r1", permission.OpRead); err != nil {
		t.Fatalf("toggle column: %v", err)
	}
	got := stub.heldKeys("r1")
	if len(got) != 2 || got[0] != "projects.read" || got[1] != "tasks.read" {
		t.Fatalf("unexpected held set %v", got)
	}
}

func TestToggleAll(t *testing.T) {
	stub := newMatrixStub("projects", "tasks")
	client := newMatrixClient(t, stub)

	if err := client.ToggleAll(context.Background(), "r1"); err != nil {
		t.Fatalf("toggle all: %v", err)
	}
	if got := stub.heldKeys("r1"); len(got) != 2*len(permission.Operations) {
		t.Fatalf("expected the full matrix, got %v", got)
	}
}

func TestTogglePartialFailureTolerated(t *testing.T) {
	stub := newMatrixStub("projects")
	stub.failing["projects.delete"] = http.StatusInternalServerError
	client := newMatrixClient(t, stub)

	// One failing cell does not abort the batch or surface an error.
	if err := client.ToggleRow(context.Background(), "r1", "projects"); err != nil {
		t.Fatalf("partial failure must be tolerated, got %v", err)
	}
	got := stub.heldKeys("r1")
	if len(got) != 3 {
		t.Fatalf("expected the three surviving cells, got %v", got)
	}
}

func TestToggleAllOperationsFailingErrors(t *testing.T) {
	stub := newMatrixStub("projects")
	for _, op := range permission.Operations {
		stub.failing[string(permission.Compose("projects", string(op)))] = http.StatusInternalServerError
	}
	client := newMatrixClient(t, stub)

	if err := client.ToggleRow(context.Background(), "r1", "projects"); err == nil {
		t.Fatalf("expected error when every operation fails")
	}
}

func TestToggleAbsorbsConflicts(t *testing.T) {
	stub := newMatrixStub("projects")
	client := newMatrixClient(t, stub)

	// Prime the cache, then mutate the server behind the cache's back so the
	// toggle's assign calls hit existing pairs.
	if _, err := client.Roles(context.Background()); err != nil {
		t.Fatalf("roles: %v", err)
	}
	stub.mu.Lock()
	stub.held["r1"]["projects.read"] = true
	stub.mu.Unlock()

	if err := client.ToggleRow(context.Background(), "r1", "projects"); err != nil {
		t.Fatalf("conflicting assigns must be absorbed, got %v", err)
	}
	if got := stub.heldKeys("r1"); len(got) != len(permission.Operations) {
		t.Fatalf("expected full row, got %v", got)
	}
}
