package handlers

import (
	"context"

	"github.com/nimbusdash/aegis/internal/models"
)

// EntitledToTenant exposes entitledToTenant to the external test package.
func (h *AuthHandler) EntitledToTenant(ctx context.Context, user *models.User, tenantID string) error {
	return h.entitledToTenant(ctx, user, tenantID)
}
