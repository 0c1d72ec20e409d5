package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/nimbusdash/aegis/internal/metrics"
	"github.com/nimbusdash/aegis/internal/models"
	"github.com/nimbusdash/aegis/internal/rbac"
	"github.com/nimbusdash/aegis/internal/storage"
	"github.com/nimbusdash/aegis/internal/token"
	"github.com/nimbusdash/aegis/internal/validation"
)

type AuthHandler struct {
	storage   storage.Storage
	tokens    *token.Service
	evaluator *rbac.Evaluator
	log       zerolog.Logger
}

func NewAuthHandler(store storage.Storage, tokens *token.Service, evaluator *rbac.Evaluator, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		storage:   store,
		tokens:    tokens,
		evaluator: evaluator,
		log:       log,
	}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := validation.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	user, err := h.authenticate(c.Context(), req.Email, req.Password)
	if err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		// Unknown email and wrong password produce the same response so
		// the endpoint cannot be used to enumerate accounts.
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	activeTenantID := h.resolveActiveTenant(user, "")
	signed, err := h.tokens.Issue(user, activeTenantID)
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	if err := h.storage.UpdateUserLastLogin(c.Context(), user.ID); err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to update last login")
	}

	metrics.Logins.WithLabelValues("success").Inc()
	return c.JSON(models.LoginResponse{
		Token:     signed,
		ExpiresIn: int(h.tokens.Duration().Seconds()),
		User:      h.principalView(c.Context(), user, activeTenantID),
	})
}

func (h *AuthHandler) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := h.storage.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn a comparison against a dummy hash so unknown emails take
		// roughly as long as wrong passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, storage.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, storage.ErrInvalidCredentials
	}
	return user, nil
}

var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Verify confirms the bearer token presented on the request. The auth
// middleware has already validated it; this just echoes the identity back.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*models.Claims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing authorization header",
		})
	}
	return c.JSON(fiber.Map{
		"valid":      true,
		"user_id":    claims.UserID,
		"email":      claims.Email,
		"role":       claims.Role,
		"tenant_id":  claims.TenantID,
		"expires_at": claims.ExpiresAt,
	})
}

// Me returns the caller's full principal view, re-resolved from storage.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*models.Claims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing authorization header",
		})
	}

	user, err := h.storage.GetUserByID(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch user",
		})
	}

	activeTenantID := h.resolveActiveTenant(user, claims.TenantID)
	return c.JSON(h.principalView(c.Context(), user, activeTenantID))
}

// CheckPermission evaluates a single named permission for the caller.
func (h *AuthHandler) CheckPermission(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*models.Claims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing authorization header",
		})
	}
	name := c.Params("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Permission name is required",
		})
	}

	user, err := h.storage.GetUserByID(c.Context(), claims.UserID)
	if err != nil {
		return c.JSON(fiber.Map{"has_permission": false})
	}

	principal := rbac.PrincipalViewFor(user, claims.TenantID)
	allowed := h.evaluator.HasPermission(&principal, name)
	switch {
	case !allowed:
		metrics.PermissionChecks.WithLabelValues("denied").Inc()
	case len(principal.Permissions) == 0 && !(principal.IsMSP && principal.Role == models.RoleMSP):
		metrics.PermissionChecks.WithLabelValues("fail_open").Inc()
	default:
		metrics.PermissionChecks.WithLabelValues("allowed").Inc()
	}
	return c.JSON(fiber.Map{
		"has_permission": allowed,
	})
}

// SwitchTenant re-scopes the session to another tenant. The target must be
// one of the caller's assigned tenants (any known tenant for MSP users).
// On success a fresh token is issued; the old one is never patched. On
// failure nothing is issued, so the caller's existing session stays valid.
func (h *AuthHandler) SwitchTenant(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*models.Claims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing authorization header",
		})
	}

	var req models.SwitchTenantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validation.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	user, err := h.storage.GetUserByID(c.Context(), claims.UserID)
	if err != nil {
		metrics.TenantSwitches.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token, please log in again",
		})
	}

	if err := h.entitledToTenant(c.Context(), user, req.TenantID); err != nil {
		metrics.TenantSwitches.WithLabelValues("denied").Inc()
		h.log.Info().
			Err(err).
			Str("user_id", user.ID).
			Str("tenant_id", req.TenantID).
			Msg("tenant switch denied")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Not entitled to tenant",
		})
	}

	signed, err := h.tokens.Issue(user, req.TenantID)
	if err != nil {
		metrics.TenantSwitches.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	metrics.TenantSwitches.WithLabelValues("success").Inc()
	return c.JSON(models.LoginResponse{
		Token:     signed,
		ExpiresIn: int(h.tokens.Duration().Seconds()),
		User:      h.principalView(c.Context(), user, req.TenantID),
	})
}

// entitledToTenant is the central switch-tenant validation. Callers outside
// the dashboard UI hit this endpoint too, so membership is never assumed.
// Returns storage.ErrTenantNotFound for an unknown tenant and
// storage.ErrNotAssigned when the user holds no active assignment there.
func (h *AuthHandler) entitledToTenant(ctx context.Context, user *models.User, tenantID string) error {
	if user.IsMSP && user.Role == models.RoleMSP {
		_, err := h.storage.GetTenant(ctx, tenantID)
		return err
	}
	a, ok := models.AssignmentFor(user.Assignments, tenantID)
	if !ok || !a.IsActive {
		return storage.ErrNotAssigned
	}
	return nil
}

// resolveActiveTenant picks the session's active tenant: the hinted id when
// the user is entitled to it, else the primary assignment, else the first
// assignment, else the synthesized default tenant.
func (h *AuthHandler) resolveActiveTenant(user *models.User, hint string) string {
	if hint != "" {
		if user.IsMSP && user.Role == models.RoleMSP {
			return hint
		}
		if _, ok := models.AssignmentFor(user.Assignments, hint); ok {
			return hint
		}
	}
	if a, ok := models.PrimaryAssignment(user.Assignments); ok {
		return a.TenantID
	}
	if len(user.Assignments) > 0 {
		return user.Assignments[0].TenantID
	}
	return models.DefaultTenant().ID
}

func (h *AuthHandler) principalView(ctx context.Context, user *models.User, activeTenantID string) models.PrincipalView {
	view := rbac.PrincipalViewFor(user, activeTenantID)
	view.Tenants = h.accessibleTenants(ctx, user)
	return view
}

// accessibleTenants returns every tenant the user may act as: all known
// tenants for MSP users, the assigned ones otherwise. Users without any
// resolvable tenant get the synthesized default so the session always has a
// tenant pointer.
func (h *AuthHandler) accessibleTenants(ctx context.Context, user *models.User) []models.Tenant {
	var (
		tenants []models.Tenant
		err     error
	)
	if user.IsMSP && user.Role == models.RoleMSP {
		tenants, err = h.storage.ListTenants(ctx)
	} else {
		ids := make([]string, 0, len(user.Assignments))
		for _, a := range user.Assignments {
			ids = append(ids, a.TenantID)
		}
		tenants, err = h.storage.ListTenantsByIDs(ctx, ids)
	}
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to list tenants")
	}
	if len(tenants) == 0 {
		return []models.Tenant{models.DefaultTenant()}
	}
	return tenants
}
