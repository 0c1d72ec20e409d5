package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbusdash/aegis/internal/models"
	"github.com/nimbusdash/aegis/internal/storage"
	"github.com/nimbusdash/aegis/internal/validation"
)

type TenantHandler struct {
	storage storage.Storage
}

func NewTenantHandler(store storage.Storage) *TenantHandler {
	return &TenantHandler{storage: store}
}

type CreateTenantRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=50"`
	Description string `json:"description" validate:"max=500"`
}

func (h *TenantHandler) CreateTenant(c *fiber.Ctx) error {
	var req CreateTenantRequest
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

	tenant := &models.Tenant{
		Name:        req.Name,
		Description: req.Description,
	}

	if err := h.storage.CreateTenant(c.Context(), tenant); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create tenant",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(tenant)
}

// ListTenants returns the tenants the caller may act as: every tenant for
// MSP users, assigned tenants otherwise.
func (h *TenantHandler) ListTenants(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*models.Claims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing authorization header",
		})
	}

	user, err := h.storage.GetUserByID(c.Context(), claims.UserID)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token, please log in again",
		})
	}

	var tenants []models.Tenant
	if user.IsMSP && user.Role == models.RoleMSP {
		tenants, err = h.storage.ListTenants(c.Context())
	} else {
		ids := make([]string, 0, len(user.Assignments))
		for _, a := range user.Assignments {
			ids = append(ids, a.TenantID)
		}
		tenants, err = h.storage.ListTenantsByIDs(c.Context(), ids)
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tenants",
		})
	}
	if tenants == nil {
		tenants = []models.Tenant{}
	}

	return c.JSON(fiber.Map{"tenants": tenants})
}

func (h *TenantHandler) GetTenant(c *fiber.Ctx) error {
	tenantID := c.Params("tenant_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tenant ID is required",
		})
	}

	tenant, err := h.storage.GetTenant(c.Context(), tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrTenantNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Tenant not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tenant",
		})
	}

	return c.JSON(tenant)
}
