package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/palisade-app/palisade/internal/platform/httpx"
	"github.com/palisade-app/palisade/internal/rbac"
	"github.com/palisade-app/palisade/internal/shared"
)

// Handler owns the authentication endpoints.
type Handler struct {
	logger     *slog.Logger
	idp        *IdPClient
	service    *rbac.Service
	decider    *rbac.Decider
	sessions   *shared.SessionManager
	csrfTokens *shared.CSRFManager
	validator  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, idp *IdPClient, service *rbac.Service, decider *rbac.Decider, sessions *shared.SessionManager, csrfTokens *shared.CSRFManager) *Handler {
	return &Handler{
		logger:     logger,
		idp:        idp,
		service:    service,
		decider:    decider,
		sessions:   sessions,
		csrfTokens: csrfTokens,
		validator:  validator.New(),
	}
}

// MountRoutes registers auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/register", h.register)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
	r.Get("/csrf", h.csrf)
}

// csrf issues the session-bound token mutating API calls must echo in the
// X-CSRF-Token header.
func (h *Handler) csrf(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		httpx.Error(w, http.StatusInternalServerError, "session middleware missing")
		return
	}
	token, err := h.csrfTokens.EnsureToken(sess)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

type credentialsPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "email and password required")
		return
	}

	principal, err := h.idp.SignIn(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.respondIdPError(w, err)
		return
	}

	if err := h.establish(w, r, principal); err != nil {
		h.logger.Error("establish session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true, "user": principal})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Error(w, http.StatusBadRequest, "email and password required")
		return
	}

	principal, err := h.idp.SignUp(r.Context(), payload.Email, payload.Password, payload.Name)
	if err != nil {
		h.respondIdPError(w, err)
		return
	}

	if err := h.establish(w, r, principal); err != nil {
		h.logger.Error("establish session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"ok": true, "user": principal})
}

// establish provisions the application-level user record on first sign-in
// (idempotent) and binds the principal to a fresh session.
func (h *Handler) establish(w http.ResponseWriter, r *http.Request, principal Principal) error {
	err := h.service.CreateUserIfAbsent(r.Context(), rbac.User{
		ID:    principal.ID,
		Name:  principal.Name,
		Email: principal.Email,
	})
	if err != nil {
		return err
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return errors.New("auth: session middleware missing")
	}
	h.sessions.Rotate(r.Context(), sess)
	sess.SetUser(principal.ID)
	return nil
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Destroy(sess)
	}
	httpx.OK(w, http.StatusOK)
}

// me reports the session principal together with its resolved permissions and
// classification. This is the snapshot the client gate consumes.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalID(r.Context())
	if principal == "" {
		httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	user, err := h.service.Store().GetUser(r.Context(), principal)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		httpx.RespondError(w, err)
		return
	}

	held := h.decider.ResolvePermissions(r.Context(), principal)
	classification := h.decider.Classify(r.Context(), principal)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":            user,
		"permissions":     held.Keys(),
		"isAdministrator": classification.IsAdministrator,
		"isManager":       classification.IsManager,
	})
}

func (h *Handler) respondIdPError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProviderUnconfigured):
		httpx.Error(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Error(w, http.StatusUnauthorized, "invalid credentials")
	default:
		h.logger.Error("identity provider", slog.Any("error", err))
		httpx.Error(w, http.StatusBadGateway, "identity provider unavailable")
	}
}
