package rbac

import "github.com/nimbusdash/aegis/internal/models"

// PrincipalViewFor resolves a stored user into the view used for permission
// checks and API responses: role-derived permissions merged with explicit
// grants, scoped to the active tenant. If the user carries an assignment for
// the active tenant, that assignment's role drives the derived permissions.
func PrincipalViewFor(user *models.User, activeTenantID string) models.PrincipalView {
	role := user.Role
	if a, ok := models.AssignmentFor(user.Assignments, activeTenantID); ok && a.Role.Valid() {
		role = a.Role
	}
	return models.PrincipalView{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        role,
		IsMSP:       user.IsMSP,
		TenantID:    activeTenantID,
		Permissions: EffectivePermissions(role, user.Grants),
	}
}
