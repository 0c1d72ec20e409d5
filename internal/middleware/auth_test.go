package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/nimbusdash/aegis/internal/models"
	"github.com/nimbusdash/aegis/internal/rbac"
	"github.com/nimbusdash/aegis/internal/storage"
	"github.com/nimbusdash/aegis/internal/token"
)

func newTestMiddleware(t *testing.T, failOpen bool) (*AuthMiddleware, *token.Service, *storage.InMemoryStorage) {
	t.Helper()
	store := storage.NewInMemoryStorage()
	tokens := token.NewService("mw-secret", time.Hour)
	return NewAuthMiddleware(tokens, store, rbac.NewEvaluator(failOpen, zerolog.Nop()), zerolog.Nop()), tokens, store
}

func seedUser(t *testing.T, store *storage.InMemoryStorage, role models.Role, grants models.PermissionList) *models.User {
	t.Helper()
	user := &models.User{
		Name:     "Test",
		Email:    string(role) + "@example.com",
		Password: "hashed",
		Role:     role,
		Grants:   grants,
		Assignments: []models.TenantAssignment{
			{TenantID: "t1", Role: role, IsPrimary: true, IsActive: true},
		},
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func run(t *testing.T, app *fiber.App, bearer string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	return resp
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	mw, _, _ := newTestMiddleware(t, true)
	app := fiber.New()
	app.Get("/", mw.Authenticate(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	if resp := run(t, app, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthenticate_BadHeaderFormat(t *testing.T) {
	mw, _, _ := newTestMiddleware(t, true)
	app := fiber.New()
	app.Get("/", mw.Authenticate(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	if resp := run(t, app, "Token abc"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	mw, _, store := newTestMiddleware(t, true)
	user := seedUser(t, store, models.RoleUser, nil)

	expired, err := token.NewService("mw-secret", -time.Minute).Issue(user, "t1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	app := fiber.New()
	app.Get("/", mw.Authenticate(), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	if resp := run(t, app, "Bearer "+expired); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthenticate_StoresClaims(t *testing.T) {
	mw, tokens, store := newTestMiddleware(t, true)
	user := seedUser(t, store, models.RoleAdmin, nil)

	signed, err := tokens.Issue(user, "t1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	app := fiber.New()
	app.Get("/", mw.Authenticate(), func(c *fiber.Ctx) error {
		claims, ok := c.Locals("claims").(*models.Claims)
		if !ok || claims.UserID != user.ID || claims.TenantID != "t1" {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendStatus(http.StatusOK)
	})

	if resp := run(t, app, "Bearer "+signed); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRequirePermission_AllowsAndDenies(t *testing.T) {
	mw, tokens, store := newTestMiddleware(t, true)
	admin := seedUser(t, store, models.RoleAdmin, nil)

	signed, err := tokens.Issue(admin, "t1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	newApp := func(permission string) *fiber.App {
		app := fiber.New()
		app.Get("/", mw.Authenticate(), mw.RequirePermission(permission), func(c *fiber.Ctx) error {
			return c.SendStatus(http.StatusOK)
		})
		return app
	}

	if resp := run(t, newApp(rbac.PermViewUsers), "Bearer "+signed); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for held permission, got %d", resp.StatusCode)
	}
	if resp := run(t, newApp(rbac.PermViewTenants), "Bearer "+signed); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for msp-only permission, got %d", resp.StatusCode)
	}
}

func TestRequirePermission_VanishedUser(t *testing.T) {
	mw, tokens, _ := newTestMiddleware(t, true)

	ghost := &models.User{ID: "ghost", Email: "ghost@example.com", Role: models.RoleAdmin}
	signed, err := tokens.Issue(ghost, "t1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	app := fiber.New()
	app.Get("/", mw.Authenticate(), mw.RequirePermission(rbac.PermViewUsers), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	if resp := run(t, app, "Bearer "+signed); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for vanished principal, got %d", resp.StatusCode)
	}
}
