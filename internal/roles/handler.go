// Package roles exposes the role management HTTP surface.
package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/platform/httpx"
	"github.com/palisade-app/palisade/internal/rbac"
	"github.com/palisade-app/palisade/internal/shared"
)

// Handler manages role endpoints.
type Handler struct {
	logger  *slog.Logger
	service *rbac.Service
	guard   rbac.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service, guard rbac.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Get("/with-perms", h.listRolesWithPerms)
	r.Post("/", h.createRole)
	r.Patch("/{id}", h.updateRole)
	r.Delete("/{id}", h.deleteRole)
	r.Post("/{id}/permissions", h.assignPermission)
	r.Delete("/{id}/permissions", h.removePermission)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) listRolesWithPerms(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRolesWithPermissions(r.Context())
	if err != nil {
		h.logger.Error("list roles with perms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []rbac.RoleWithPermissions{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type createRolePayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     *bool  `json:"enabled"`
	Color       string `json:"color"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.Require(r.Context(), "roles.create"); err != nil {
		httpx.Error(w, http.StatusForbidden, "forbidden")
		return
	}

	var payload createRolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}

	role, err := h.service.CreateRole(r.Context(), rbac.CreateRoleInput{
		ID:          payload.ID,
		Name:        payload.Name,
		Description: payload.Description,
		Enabled:     payload.Enabled,
		Color:       payload.Color,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"role": role})
}

type updateRolePayload struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Enabled     *bool   `json:"enabled"`
	Color       *string `json:"color"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload updateRolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}

	// Only recognized keys reach the store; anything else in the body is
	// dropped by the decode above.
	role, err := h.service.UpdateRole(r.Context(), id, rbac.RoleUpdate{
		Name:        payload.Name,
		Description: payload.Description,
		Enabled:     payload.Enabled,
		Color:       payload.Color,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK)
}

type assignPermissionPayload struct {
	Permission string `json:"permission"`
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.Require(r.Context(), "roles.update"); err != nil {
		httpx.Error(w, http.StatusForbidden, "forbidden")
		return
	}

	var payload assignPermissionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil || payload.Permission == "" {
		httpx.Error(w, http.StatusBadRequest, "permission required")
		return
	}
	perm, err := permission.Parse(payload.Permission)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.AssignPermission(r.Context(), chi.URLParam(r, "id"), perm); err != nil {
		switch {
		case errors.Is(err, rbac.ErrPermissionUnknown):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		case shared.IsConflict(err):
			httpx.Error(w, http.StatusConflict, shared.ErrAlreadyAssigned.Error())
		default:
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.OK(w, http.StatusCreated)
}

func (h *Handler) removePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.guard.Require(r.Context(), "roles.update"); err != nil {
		httpx.Error(w, http.StatusForbidden, "forbidden")
		return
	}

	raw := r.URL.Query().Get("permission")
	if raw == "" {
		httpx.Error(w, http.StatusBadRequest, "permission query param required")
		return
	}
	perm, err := permission.Parse(raw)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.RemovePermission(r.Context(), chi.URLParam(r, "id"), perm); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK)
}
