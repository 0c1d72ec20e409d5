package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nimbusdash/aegis/internal/models"
)

func TestAPI_LoginMapsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid credentials"})
	}))
	defer srv.Close()

	_, err := NewAPI(srv.URL).Login(context.Background(), "a@example.com", "bad")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAPI_ProtectedCallMapsExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewAPI(srv.URL).Me(context.Background(), "stale-token")
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAPI_SwitchTenantMapsForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Not entitled to tenant"})
	}))
	defer srv.Close()

	_, err := NewAPI(srv.URL).SwitchTenant(context.Background(), "tok", "t9")
	if !errors.Is(err, ErrNotEntitled) {
		t.Fatalf("expected ErrNotEntitled, got %v", err)
	}
}

func TestAPI_LoginDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "a@example.com" {
			t.Errorf("unexpected email %s", req.Email)
		}
		_ = json.NewEncoder(w).Encode(models.LoginResponse{
			Token: "tok-1",
			User: models.PrincipalView{
				ID:       "u1",
				TenantID: "t1",
				Role:     models.RoleAdmin,
			},
		})
	}))
	defer srv.Close()

	resp, err := NewAPI(srv.URL).Login(context.Background(), "a@example.com", "password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token != "tok-1" || resp.User.TenantID != "t1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAPI_HasPermission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"has_permission": true})
	}))
	defer srv.Close()

	ok, err := NewAPI(srv.URL).HasPermission(context.Background(), "tok", "view:users")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Fatalf("expected permission granted")
	}
}
