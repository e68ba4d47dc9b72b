// Package users exposes the application user HTTP surface.
package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/palisade-app/palisade/internal/platform/httpx"
	"github.com/palisade-app/palisade/internal/rbac"
)

// Handler manages user endpoints.
type Handler struct {
	logger  *slog.Logger
	service *rbac.Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Post("/", h.createUser)
	r.Patch("/{id}/role", h.assignRole)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []rbac.User{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

type createUserPayload struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	RoleID *string `json:"roleId"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var payload createUserPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	err := h.service.CreateUser(r.Context(), rbac.User{
		ID:     payload.ID,
		Name:   payload.Name,
		Email:  payload.Email,
		RoleID: payload.RoleID,
	})
	if err != nil {
		h.logger.Error("create user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated)
}

type assignRolePayload struct {
	RoleID *string `json:"roleId"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var payload assignRolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	// A null roleId clears the assignment; the user falls back to the
	// deny-by-default empty permission set.
	if err := h.service.AssignUserRole(r.Context(), chi.URLParam(r, "id"), payload.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK)
}
