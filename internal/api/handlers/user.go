package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/nimbusdash/aegis/internal/models"
	"github.com/nimbusdash/aegis/internal/storage"
	"github.com/nimbusdash/aegis/internal/validation"
)

type UserHandler struct {
	storage storage.Storage
	log     zerolog.Logger
}

func NewUserHandler(store storage.Storage, log zerolog.Logger) *UserHandler {
	return &UserHandler{storage: store, log: log}
}

type AssignmentInput struct {
	TenantID  string      `json:"tenant_id" validate:"required"`
	Role      models.Role `json:"role" validate:"required,oneof=user admin msp"`
	IsPrimary bool        `json:"is_primary"`
	IsActive  bool        `json:"is_active"`
}

type CreateUserRequest struct {
	Name        string                `json:"name" validate:"required,min=1,max=100"`
	Email       string                `json:"email" validate:"required,email"`
	Password    string                `json:"password" validate:"required,min=8"`
	Role        models.Role           `json:"role" validate:"required,oneof=user admin msp"`
	IsMSP       bool                  `json:"is_msp"`
	Permissions models.PermissionList `json:"permissions"`
	Assignments []AssignmentInput     `json:"assignments" validate:"required,min=1,dive"`
}

func (h *UserHandler) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
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

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to hash password",
		})
	}

	user := &models.User{
		Name:        req.Name,
		Email:       req.Email,
		Password:    string(hash),
		Role:        req.Role,
		IsMSP:       req.IsMSP,
		Grants:      req.Permissions,
		Assignments: toAssignments(req.Assignments),
	}

	if err := h.storage.CreateUser(c.Context(), user); err != nil {
		switch {
		case errors.Is(err, models.ErrNoAssignments):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, storage.ErrEmailTaken):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Email already in use",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create user",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(user)
}

type UpdateUserRequest struct {
	Name        *string               `json:"name" validate:"omitempty,min=1,max=100"`
	Password    *string               `json:"password" validate:"omitempty,min=8"`
	Role        *models.Role          `json:"role" validate:"omitempty,oneof=user admin msp"`
	IsMSP       *bool                 `json:"is_msp"`
	Permissions models.PermissionList `json:"permissions"`
	Assignments []AssignmentInput     `json:"assignments" validate:"omitempty,min=1,dive"`
}

func (h *UserHandler) UpdateUser(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	user, err := h.storage.GetUserByID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	var req UpdateUserRequest
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

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to hash password",
			})
		}
		user.Password = string(hash)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsMSP != nil {
		user.IsMSP = *req.IsMSP
	}
	if req.Permissions != nil {
		user.Grants = req.Permissions
	}
	if req.Assignments != nil {
		user.Assignments = toAssignments(req.Assignments)
	}

	if err := h.storage.UpdateUser(c.Context(), user); err != nil {
		if errors.Is(err, models.ErrNoAssignments) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update user",
		})
	}

	return c.JSON(user)
}

// ListUsersRequest represents the query parameters for listing users
type ListUsersRequest struct {
	Page     int    `query:"page" validate:"min=1"`
	PageSize int    `query:"page_size" validate:"min=1,max=100"`
	Search   string `query:"search"`
	Role     string `query:"role" validate:"omitempty,oneof=user admin msp"`
	SortBy   string `query:"sort_by" validate:"oneof=name email role created_at last_login"`
	SortDir  string `query:"sort_dir" validate:"oneof=asc desc"`
}

// ListUsersResponse represents the response for listing users
type ListUsersResponse struct {
	Users      []models.User `json:"users"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

// ListUsers handles listing users with pagination, search, filtering, and sorting
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	var req ListUsersRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid query parameters",
		})
	}

	// Set default values
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}
	if req.SortBy == "" {
		req.SortBy = "created_at"
	}
	if req.SortDir == "" {
		req.SortDir = "desc"
	}

	if err := validation.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	users, total, err := h.storage.ListUsers(c.Context(), storage.ListUsersParams{
		Page:     req.Page,
		PageSize: req.PageSize,
		Search:   req.Search,
		Role:     models.Role(req.Role),
		SortBy:   req.SortBy,
		SortDir:  req.SortDir,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch users",
		})
	}

	totalPages := int(total) / req.PageSize
	if int(total)%req.PageSize > 0 {
		totalPages++
	}

	return c.JSON(ListUsersResponse{
		Users:      users,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	})
}

func toAssignments(inputs []AssignmentInput) []models.TenantAssignment {
	out := make([]models.TenantAssignment, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, models.TenantAssignment{
			TenantID:  in.TenantID,
			Role:      in.Role,
			IsPrimary: in.IsPrimary,
			IsActive:  in.IsActive,
		})
	}
	return out
}
