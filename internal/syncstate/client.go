// Package syncstate keeps a client-side snapshot of the permission graph in
// step with the server. Reads serve from cache; every mutation calls through
// to the API and then invalidates the affected slices, forcing a refetch.
// There is no optimistic local mutation: state changes only after the server
// confirms.
package syncstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/palisade-app/palisade/internal/permission"
	"github.com/palisade-app/palisade/internal/rbac"
	"github.com/palisade-app/palisade/internal/shared"
)

// Me is the resolved principal snapshot served by /api/auth/me.
type Me struct {
	User            rbac.User `json:"user"`
	Permissions     []string  `json:"permissions"`
	IsAdministrator bool      `json:"isAdministrator"`
	IsManager       bool      `json:"isManager"`
}

// Client is the synchronization cache over the HTTP API.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger

	mu sync.Mutex

	perms      []rbac.CatalogEntry
	permsValid bool
	permsGen   uint64

	roles      []rbac.RoleWithPermissions
	rolesValid bool
	rolesGen   uint64

	users      []rbac.User
	usersValid bool
	usersGen   uint64

	me      *Me
	meValid bool
	meGen   uint64

	csrfToken string

	flight singleflight.Group
}

// NewClient constructs a Client for the API at baseURL. A nil httpc gets a
// cookie-jar client so the session survives across calls.
func NewClient(baseURL string, httpc *http.Client, logger *slog.Logger) *Client {
	if httpc == nil {
		jar, _ := cookiejar.New(nil)
		httpc = &http.Client{Jar: jar}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		logger:  logger,
	}
}

// Permissions returns the catalog, fetching it if the cached slice is stale.
func (c *Client) Permissions(ctx context.Context) ([]rbac.CatalogEntry, error) {
	c.mu.Lock()
	if c.permsValid {
		out := c.perms
		c.mu.Unlock()
		return out, nil
	}
	gen := c.permsGen
	c.mu.Unlock()

	val, err := c.shareFetch(ctx, "permissions", func(ctx context.Context) (any, error) {
		var out struct {
			Permissions []rbac.CatalogEntry `json:"permissions"`
		}
		if err := c.get(ctx, "/api/permissions", &out); err != nil {
			return nil, err
		}
		return out.Permissions, nil
	})
	if err != nil {
		return nil, err
	}
	perms := val.([]rbac.CatalogEntry)

	c.mu.Lock()
	if c.permsGen == gen {
		c.perms, c.permsValid = perms, true
	}
	c.mu.Unlock()
	return perms, nil
}

// Roles returns all roles with their permission lists.
func (c *Client) Roles(ctx context.Context) ([]rbac.RoleWithPermissions, error) {
	c.mu.Lock()
	if c.rolesValid {
		out := c.roles
		c.mu.Unlock()
		return out, nil
	}
	gen := c.rolesGen
	c.mu.Unlock()

	val, err := c.shareFetch(ctx, "roles", func(ctx context.Context) (any, error) {
		var out struct {
			Roles []rbac.RoleWithPermissions `json:"roles"`
		}
		if err := c.get(ctx, "/api/roles/with-perms", &out); err != nil {
			return nil, err
		}
		return out.Roles, nil
	})
	if err != nil {
		return nil, err
	}
	roles := val.([]rbac.RoleWithPermissions)

	c.mu.Lock()
	if c.rolesGen == gen {
		c.roles, c.rolesValid = roles, true
	}
	c.mu.Unlock()
	return roles, nil
}

// Users returns all application users.
func (c *Client) Users(ctx context.Context) ([]rbac.User, error) {
	c.mu.Lock()
	if c.usersValid {
		out := c.users
		c.mu.Unlock()
		return out, nil
	}
	gen := c.usersGen
	c.mu.Unlock()

	val, err := c.shareFetch(ctx, "users", func(ctx context.Context) (any, error) {
		var out struct {
			Users []rbac.User `json:"users"`
		}
		if err := c.get(ctx, "/api/users", &out); err != nil {
			return nil, err
		}
		return out.Users, nil
	})
	if err != nil {
		return nil, err
	}
	users := val.([]rbac.User)

	c.mu.Lock()
	if c.usersGen == gen {
		c.users, c.usersValid = users, true
	}
	c.mu.Unlock()
	return users, nil
}

// Me returns the principal snapshot used for gating.
func (c *Client) Me(ctx context.Context) (*Me, error) {
	c.mu.Lock()
	if c.meValid {
		out := c.me
		c.mu.Unlock()
		return out, nil
	}
	gen := c.meGen
	c.mu.Unlock()

	val, err := c.shareFetch(ctx, "me", func(ctx context.Context) (any, error) {
		var out Me
		if err := c.get(ctx, "/api/auth/me", &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	me := val.(*Me)

	c.mu.Lock()
	if c.meGen == gen {
		c.me, c.meValid = me, true
	}
	c.mu.Unlock()
	return me, nil
}

// Entities derives the entity axis of the matrix from the catalog, falling
// back to the default list when the catalog is empty.
func (c *Client) Entities(ctx context.Context) ([]string, error) {
	perms, err := c.Permissions(ctx)
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		return permission.DefaultEntities, nil
	}
	seen := make(map[string]struct{})
	var entities []string
	for _, p := range perms {
		if _, ok := seen[p.Entity]; ok {
			continue
		}
		seen[p.Entity] = struct{}{}
		entities = append(entities, p.Entity)
	}
	return entities, nil
}

// Snapshot is the full synchronized view of the permission graph.
type Snapshot struct {
	Permissions []rbac.CatalogEntry
	Entities    []string
	Operations  []permission.Operation
	Roles       []rbac.RoleWithPermissions
	Users       []rbac.User
}

// Snapshot fetches every stale slice and returns the aggregate view. Fresh
// slices are served from cache; a failure on any slice fails the whole read.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	perms, err := c.Permissions(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := c.Entities(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := c.Roles(ctx)
	if err != nil {
		return nil, err
	}
	users, err := c.Users(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Permissions: perms,
		Entities:    entities,
		Operations:  permission.Operations,
		Roles:       roles,
		Users:       users,
	}, nil
}

// SignIn authenticates against the API. The cookie jar keeps the issued
// session; the principal snapshot is invalidated so gates re-resolve.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, nil); err != nil {
		return err
	}
	c.InvalidateMe()
	return nil
}

// SignOut tears the session down and drops the principal snapshot.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return err
	}
	c.InvalidateMe()
	return nil
}

// AddRole creates a role and refreshes the role slice.
func (c *Client) AddRole(ctx context.Context, payload rbac.CreateRoleInput) (rbac.Role, error) {
	var out struct {
		Role rbac.Role `json:"role"`
	}
	body := map[string]any{"name": payload.Name, "description": payload.Description, "color": payload.Color}
	if payload.ID != "" {
		body["id"] = payload.ID
	}
	if payload.Enabled != nil {
		body["enabled"] = *payload.Enabled
	}
	if err := c.do(ctx, http.MethodPost, "/api/roles", body, &out); err != nil {
		return rbac.Role{}, err
	}
	c.InvalidateRoles()
	return out.Role, nil
}

// UpdateRole applies a partial role update and refreshes the role slice.
func (c *Client) UpdateRole(ctx context.Context, id string, updates map[string]any) error {
	if err := c.do(ctx, http.MethodPatch, "/api/roles/"+url.PathEscape(id), updates, nil); err != nil {
		return err
	}
	c.InvalidateRoles()
	return nil
}

// DeleteRole removes a role and refreshes the role slice.
func (c *Client) DeleteRole(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/roles/"+url.PathEscape(id), nil, nil); err != nil {
		return err
	}
	c.InvalidateRoles()
	return nil
}

// AssignPermission grants perm to the role. A conflict ("already assigned" or
// a 409) means the grant is already in place and is absorbed as success, so
// double-toggles in the matrix never surface an error.
func (c *Client) AssignPermission(ctx context.Context, roleID string, perm permission.Permission) error {
	err := c.do(ctx, http.MethodPost, "/api/roles/"+url.PathEscape(roleID)+"/permissions",
		map[string]string{"permission": string(perm)}, nil)
	if err != nil {
		if isConflictMessage(err) {
			c.InvalidateRoles()
			return nil
		}
		return err
	}
	c.InvalidateRoles()
	return nil
}

// RemovePermission revokes perm from the role.
func (c *Client) RemovePermission(ctx context.Context, roleID string, perm permission.Permission) error {
	path := "/api/roles/" + url.PathEscape(roleID) + "/permissions?permission=" + url.QueryEscape(string(perm))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}
	c.InvalidateRoles()
	return nil
}

// AddUser creates an application user and refreshes the user slice.
func (c *Client) AddUser(ctx context.Context, user rbac.User) error {
	body := map[string]any{"id": user.ID, "name": user.Name, "email": user.Email, "roleId": user.RoleID}
	if err := c.do(ctx, http.MethodPost, "/api/users", body, nil); err != nil {
		return err
	}
	c.InvalidateUsers()
	return nil
}

// AssignRoleToUser reassigns a user's role (nil clears it) and refreshes both
// the user and role slices, matching the write's blast radius.
func (c *Client) AssignRoleToUser(ctx context.Context, userID string, roleID *string) error {
	body := map[string]any{"roleId": roleID}
	if err := c.do(ctx, http.MethodPatch, "/api/users/"+url.PathEscape(userID)+"/role", body, nil); err != nil {
		return err
	}
	c.InvalidateUsers()
	c.InvalidateRoles()
	return nil
}

// InvalidateRoles marks the role slice stale. A fetch already in flight is
// superseded: its result will not be applied.
func (c *Client) InvalidateRoles() {
	c.mu.Lock()
	c.rolesGen++
	c.rolesValid = false
	c.mu.Unlock()
	c.flight.Forget("roles")
}

// InvalidateUsers marks the user slice stale.
func (c *Client) InvalidateUsers() {
	c.mu.Lock()
	c.usersGen++
	c.usersValid = false
	c.mu.Unlock()
	c.flight.Forget("users")
}

// InvalidatePermissions marks the catalog slice stale.
func (c *Client) InvalidatePermissions() {
	c.mu.Lock()
	c.permsGen++
	c.permsValid = false
	c.mu.Unlock()
	c.flight.Forget("permissions")
}

// InvalidateMe marks the principal snapshot stale, e.g. after sign-in/out.
// The cached token is dropped too since it is bound to the session.
func (c *Client) InvalidateMe() {
	c.mu.Lock()
	c.meGen++
	c.meValid = false
	c.me = nil
	c.csrfToken = ""
	c.mu.Unlock()
	c.flight.Forget("me")
}

// shareFetch deduplicates concurrent refetches of the same slice while
// letting each waiter honor its own context: a caller whose view goes away
// stops waiting without tearing down the shared fetch, and the generation
// check at the apply site discards results that a newer invalidation
// superseded (last request wins).
func (c *Client) shareFetch(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	ch := c.flight.DoChan(key, func() (any, error) {
		return fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// ensureCSRF fetches the session-bound token once and caches it. A failed
// fetch is tolerated here; a server that enforces the token will reject the
// mutation and that rejection is the error the caller sees.
func (c *Client) ensureCSRF(ctx context.Context) string {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" {
		return token
	}

	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.get(ctx, "/api/auth/csrf", &out); err != nil {
		if c.logger != nil {
			c.logger.Debug("csrf token fetch", slog.Any("error", err))
		}
		return ""
	}

	c.mu.Lock()
	c.csrfToken = out.CSRFToken
	c.mu.Unlock()
	return out.CSRFToken
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("syncstate: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("syncstate: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		if token := c.ensureCSRF(ctx); token != "" {
			req.Header.Set(shared.CSRFHeader, token)
		}
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("syncstate: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return apiError(res)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// APIError is a structured non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("syncstate: status %d: %s", e.Status, e.Message)
}

func apiError(res *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(res.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	switch res.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrUnauthenticated, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", shared.ErrForbidden, msg)
	}
	return &APIError{Status: res.StatusCode, Message: msg}
}

func isConflictMessage(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusConflict || strings.Contains(apiErr.Message, "already assigned")
	}
	return false
}
