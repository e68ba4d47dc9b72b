package rbac_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/palisade-app/palisade/internal/rbac"
)

func TestListPermissionCatalogEndpoint(t *testing.T) {
	store := rbac.NewMemStore()
	service := rbac.NewService(store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := rbac.NewPermissionsHandler(logger, service)

	router := chi.NewRouter()
	handler.MountRoutes(router)

	// Empty catalog answers with an empty array, not null.
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Body.String() != "{\"permissions\":[]}\n" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}

	if err := service.SeedCatalog(context.Background(), []string{"projects"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
	var body struct {
		Permissions []rbac.CatalogEntry `json:"permissions"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Permissions) != 4 {
		t.Fatalf("expected four entries, got %v", body.Permissions)
	}
	if body.Permissions[0].Key != "projects.create" || body.Permissions[0].Entity != "projects" {
		t.Fatalf("unexpected first entry %+v", body.Permissions[0])
	}
}
