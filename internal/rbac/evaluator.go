package rbac

import (
	"github.com/rs/zerolog"

	"github.com/nimbusdash/aegis/internal/models"
)

// Evaluator decides whether a principal may exercise a named permission.
// It is pure and synchronous; callers may invoke it on every route check.
type Evaluator struct {
	// AllowWhenUnknown permits principals whose permission set is empty or
	// absent. This mirrors the dashboard's onboarding accommodation: a user
	// with incomplete permission data is not locked out. It is a usability
	// policy, not a security boundary, and can be disabled in config.
	AllowWhenUnknown bool

	log zerolog.Logger
}

func NewEvaluator(allowWhenUnknown bool, log zerolog.Logger) *Evaluator {
	return &Evaluator{AllowWhenUnknown: allowWhenUnknown, log: log}
}

// HasPermission reports whether the principal may exercise permission.
// Precedence: MSP bypass, then the empty-set policy, then set membership.
// A nil principal always yields false.
func (e *Evaluator) HasPermission(principal *models.PrincipalView, permission string) bool {
	if principal == nil {
		return false
	}
	if principal.IsMSP && principal.Role == models.RoleMSP {
		return true
	}
	if len(principal.Permissions) == 0 {
		if e.AllowWhenUnknown {
			e.log.Warn().
				Str("user_id", principal.ID).
				Str("permission", permission).
				Msg("empty permission set, allowing by fail-open policy")
			return true
		}
		return false
	}
	for _, p := range principal.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
