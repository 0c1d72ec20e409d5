package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nimbusdash/aegis/internal/models"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// the server deliberately does not distinguish them.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired means the server rejected the token. The session
	// must be discarded and the user sent back to login.
	ErrSessionExpired = errors.New("session expired, please log in again")
	// ErrNotEntitled means the caller asked for a tenant outside their
	// assignment list.
	ErrNotEntitled = errors.New("not entitled to tenant")
)

const defaultTimeout = 15 * time.Second

// API is a thin HTTP client for the auth endpoints.
type API struct {
	baseURL string
	http    *http.Client
}

type APIOption func(*API)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *API) { a.http = c }
}

func NewAPI(baseURL string, opts ...APIOption) *API {
	api := &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(api)
	}
	return api
}

func (a *API) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := a.do(ctx, http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{
		Email:    email,
		Password: password,
	}, &resp)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusUnauthorized {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return &resp, nil
}

func (a *API) Me(ctx context.Context, token string) (*models.PrincipalView, error) {
	var view models.PrincipalView
	if err := a.do(ctx, http.MethodGet, "/api/v1/auth/me", token, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (a *API) Verify(ctx context.Context, token string) error {
	return a.do(ctx, http.MethodGet, "/api/v1/auth/verify", token, nil, nil)
}

func (a *API) HasPermission(ctx context.Context, token, name string) (bool, error) {
	var resp struct {
		HasPermission bool `json:"has_permission"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/v1/auth/permission/"+name, token, nil, &resp); err != nil {
		return false, err
	}
	return resp.HasPermission, nil
}

func (a *API) SwitchTenant(ctx context.Context, token, tenantID string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := a.do(ctx, http.MethodPost, "/api/v1/auth/switch-tenant", token, models.SwitchTenantRequest{
		TenantID: tenantID,
	}, &resp)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusForbidden {
			return nil, ErrNotEntitled
		}
		return nil, err
	}
	return &resp, nil
}

func (a *API) Tenants(ctx context.Context, token string) ([]models.Tenant, error) {
	var resp struct {
		Tenants []models.Tenant `json:"tenants"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/v1/tenants", token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tenants, nil
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.status, e.message)
}

func (a *API) do(ctx context.Context, method, path, token string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		return ErrSessionExpired
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{status: resp.StatusCode, message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
