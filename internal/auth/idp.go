// Package auth integrates the external identity provider and owns the
// session-facing authentication endpoints. Credential issuance and
// verification stay on the provider's side; this package only exchanges
// credentials for a verified principal.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrProviderUnconfigured indicates the IdP endpoint/key pair is absent.
	// Startup tolerates this; authentication calls do not.
	ErrProviderUnconfigured = errors.New("auth: identity provider not configured")
	// ErrInvalidCredentials indicates the provider rejected the credentials.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// Principal is the provider-verified identity.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// IdPClient talks to the external identity provider over HTTP.
type IdPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewIdPClient constructs a client; baseURL or apiKey may be empty, in which
// case every call fails with ErrProviderUnconfigured.
func NewIdPClient(baseURL, apiKey string) *IdPClient {
	return &IdPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether the endpoint/key pair was supplied.
func (c *IdPClient) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

type idpUser struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"user_metadata"`
}

func (u idpUser) principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, Name: u.Metadata["full_name"]}
}

// SignIn exchanges email/password for a verified principal.
func (c *IdPClient) SignIn(ctx context.Context, email, password string) (Principal, error) {
	var out struct {
		User idpUser `json:"user"`
	}
	err := c.post(ctx, "/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return Principal{}, err
	}
	return out.User.principal(), nil
}

// SignUp registers a new identity with the provider.
func (c *IdPClient) SignUp(ctx context.Context, email, password, name string) (Principal, error) {
	var out struct {
		User idpUser `json:"user"`
		// Some providers return the user at top level on signup.
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	err := c.post(ctx, "/signup", map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"full_name": name},
	}, &out)
	if err != nil {
		return Principal{}, err
	}
	if out.User.ID != "" {
		p := out.User.principal()
		if p.Name == "" {
			p.Name = name
		}
		return p, nil
	}
	return Principal{ID: out.ID, Email: out.Email, Name: name}, nil
}

func (c *IdPClient) post(ctx context.Context, path string, body any, out any) error {
	if !c.Configured() {
		return ErrProviderUnconfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("auth: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("auth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: identity provider call: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		return json.NewDecoder(res.Body).Decode(out)
	case res.StatusCode == http.StatusBadRequest, res.StatusCode == http.StatusUnauthorized,
		res.StatusCode == http.StatusUnprocessableEntity:
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("auth: identity provider status %d", res.StatusCode)
	}
}
