package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/palisade-app/palisade/internal/auth"
	"github.com/palisade-app/palisade/internal/observability"
	"github.com/palisade-app/palisade/internal/platform/httpx"
	"github.com/palisade-app/palisade/internal/rbac"
	"github.com/palisade-app/palisade/internal/roles"
	"github.com/palisade-app/palisade/internal/shared"
	"github.com/palisade-app/palisade/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *rbac.PermissionsHandler
	Interceptor        rbac.Interceptor
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Palisade defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.Interceptor.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Navigation endpoints the edge interceptor protects. Rendering is the
	// frontend's concern; these answer with the view the client should show,
	// which also gives the interceptor's redirects somewhere to land.
	for _, page := range []string{"/", "/dashboard", "/login", "/register", "/403", "/roles", "/users", "/permissions"} {
		page := page
		r.Get(page, func(w http.ResponseWriter, r *http.Request) {
			httpx.JSON(w, http.StatusOK, map[string]string{"view": page})
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
	})

	return r
}
