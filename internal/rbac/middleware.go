package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/platform/httpx"
	"github.com/palisade-app/palisade/internal/shared"
)

// Default navigation targets for the edge interceptor.
const (
	LoginPath     = "/login"
	RegisterPath  = "/register"
	ForbiddenPath = "/403"
	HomePath      = "/"
)

// RoutePermission maps a protected page route to the permission its
// navigation requires. The second return is false for routes that only need
// an authenticated principal.
func RoutePermission(path string) (permission.Permission, bool) {
	switch {
	case strings.HasPrefix(path, "/permissions"):
		return "permissions.read", true
	case strings.HasPrefix(path, "/roles"):
		return "roles.read", true
	case strings.HasPrefix(path, "/users"):
		return "users.read", true
	}
	return "", false
}

// Interceptor is the edge enforcement point: it runs before any handler and
// resolves the principal from the transport session. Page navigation is denied
// with a redirect, API reads with problem JSON; any failure in the
// user-role-permissions lookup chain denies (fail closed).
type Interceptor struct {
	Decider *Decider
	Logger  *slog.Logger
}

// apiReadPermission returns the permission guarding an API read route, reusing
// the page route table. API mutations verify inside their handlers; reads are
// intercepted here so the permission graph is never served to an anonymous or
// unprivileged caller.
func apiReadPermission(r *http.Request) (permission.Permission, bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return "", false
	}
	rest, ok := strings.CutPrefix(r.URL.Path, "/api")
	if !ok {
		return "", false
	}
	return RoutePermission(rest)
}

// protected is the route set the interceptor watches; everything else passes
// through untouched (API calls carry their own handler guards).
func (i Interceptor) protected(path string) bool {
	for _, prefix := range []string{"/dashboard", "/users", "/roles", "/permissions", LoginPath, RegisterPath} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return path == HomePath
}

func isAuthPage(path string) bool {
	return strings.HasPrefix(path, LoginPath) || strings.HasPrefix(path, RegisterPath)
}

// Middleware wraps next with the edge interception rules.
func (i Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// API reads answer with problem JSON rather than redirects; a JSON
		// client cannot follow a 303 to a login page.
		if required, ok := apiReadPermission(r); ok {
			principal := shared.PrincipalID(r.Context())
			if principal == "" {
				httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if !i.Decider.Can(r.Context(), principal, required) {
				if i.Logger != nil {
					i.Logger.Info("edge denial",
						slog.String("path", path),
						slog.String("user", principal),
						slog.String("required", string(required)))
				}
				httpx.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if !i.protected(path) {
			next.ServeHTTP(w, r)
			return
		}

		principal := shared.PrincipalID(r.Context())

		// Anonymous users go to sign-in; signed-in users bounce off the
		// sign-in and registration pages to avoid re-authentication loops.
		if principal == "" {
			if isAuthPage(path) {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		if isAuthPage(path) {
			http.Redirect(w, r, HomePath, http.StatusSeeOther)
			return
		}

		if required, ok := RoutePermission(path); ok {
			if !i.Decider.Can(r.Context(), principal, required) {
				if i.Logger != nil {
					i.Logger.Info("edge denial",
						slog.String("path", path),
						slog.String("user", principal),
						slog.String("required", string(required)))
				}
				http.Redirect(w, r, ForbiddenPath, http.StatusSeeOther)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
