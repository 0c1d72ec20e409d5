package rbac

import "github.com/nimbusdash/aegis/internal/models"

// Permission names gating dashboard features.
const (
	PermViewDashboard   = "view:dashboard"
	PermViewAccounts    = "view:accounts"
	PermViewDeployments = "view:deployments"
	PermViewTemplates   = "view:templates"
	PermManageTemplates = "manage:templates"
	PermViewUsers       = "view:users"
	PermManageUsers     = "manage:users"
	PermViewTenants     = "view:tenants"
	PermManageTenants   = "manage:tenants"
	PermUseNexusAI      = "use:nexus-ai"
)

// rolePermissions is the static role to permission map. Loaded once,
// immutable at runtime. Each role's list is a superset of the one below it:
// msp over admin over user.
var rolePermissions = map[models.Role][]string{
	models.RoleUser: {
		PermViewDashboard,
		PermViewAccounts,
		PermViewDeployments,
		PermViewTemplates,
		PermUseNexusAI,
	},
	models.RoleAdmin: {
		PermViewDashboard,
		PermViewAccounts,
		PermViewDeployments,
		PermViewTemplates,
		PermManageTemplates,
		PermViewUsers,
		PermManageUsers,
		PermUseNexusAI,
	},
	models.RoleMSP: {
		PermViewDashboard,
		PermViewAccounts,
		PermViewDeployments,
		PermViewTemplates,
		PermManageTemplates,
		PermViewUsers,
		PermManageUsers,
		PermViewTenants,
		PermManageTenants,
		PermUseNexusAI,
	},
}

// RolePermissions returns a copy of the permission list for role.
func RolePermissions(role models.Role) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// EffectivePermissions merges role-derived permissions with explicit grants,
// deduplicated, preserving role order first.
func EffectivePermissions(role models.Role, grants []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range rolePermissions[role] {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range grants {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
