package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleMSP   Role = "msp"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleMSP:
		return true
	}
	return false
}

var ErrNoAssignments = errors.New("user must have at least one tenant assignment")

type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

type User struct {
	ID          string             `json:"id" gorm:"primaryKey"`
	Name        string             `json:"name" gorm:"not null"`
	Email       string             `json:"email" gorm:"not null;uniqueIndex"`
	Password    string             `json:"-" gorm:"not null"` // Hashed password
	Role        Role               `json:"role" gorm:"not null"`
	IsMSP       bool               `json:"is_msp"`
	Grants      PermissionList     `json:"permissions,omitempty" gorm:"serializer:json"`
	Assignments []TenantAssignment `json:"assignments,omitempty" gorm:"foreignKey:UserID"`
	LastLogin   time.Time          `json:"last_login"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type TenantAssignment struct {
	UserID    string    `json:"user_id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"primaryKey"`
	Role      Role      `json:"role" gorm:"not null"`
	IsPrimary bool      `json:"is_primary"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// PermissionGrant is the object form a permission may arrive in. The
// dashboard API historically emitted both bare strings and these records.
type PermissionGrant struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PermissionList holds normalized permission names. Its unmarshaler accepts
// a mixed array of strings and PermissionGrant objects and keeps only the
// names, so nothing past the ingestion boundary sees both shapes.
type PermissionList []string

func (p *PermissionList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	names := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				names = append(names, s)
			}
			continue
		}
		var grant PermissionGrant
		if err := json.Unmarshal(item, &grant); err != nil {
			return err
		}
		if name := strings.TrimSpace(grant.Name); name != "" {
			names = append(names, name)
		}
	}
	*p = names
	return nil
}

// NormalizeEmail applies the lookup policy for emails: trimmed and
// lower-cased, so lookups do not depend on database collation.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeAssignments enforces the assignment invariants on a candidate
// list before it is persisted: the list must be non-empty and exactly one
// entry must be primary. If no entry is marked primary the first one is
// promoted; if several are, the first marked entry wins.
func NormalizeAssignments(assignments []TenantAssignment) ([]TenantAssignment, error) {
	if len(assignments) == 0 {
		return nil, ErrNoAssignments
	}
	out := make([]TenantAssignment, len(assignments))
	copy(out, assignments)

	primary := -1
	for i := range out {
		if out[i].IsPrimary {
			primary = i
			break
		}
	}
	if primary == -1 {
		primary = 0
	}
	for i := range out {
		out[i].IsPrimary = i == primary
	}
	return out, nil
}

// RemoveAssignment drops the assignment for tenantID from the list. If the
// removed entry was primary, one of the remaining entries is promoted.
func RemoveAssignment(assignments []TenantAssignment, tenantID string) []TenantAssignment {
	out := make([]TenantAssignment, 0, len(assignments))
	removedPrimary := false
	for _, a := range assignments {
		if a.TenantID == tenantID {
			removedPrimary = removedPrimary || a.IsPrimary
			continue
		}
		out = append(out, a)
	}
	if removedPrimary && len(out) > 0 {
		normalized, _ := NormalizeAssignments(out)
		return normalized
	}
	return out
}

// SetPrimaryAssignment marks tenantID as the primary assignment and clears
// the flag everywhere else. Unknown tenant ids leave the list unchanged.
func SetPrimaryAssignment(assignments []TenantAssignment, tenantID string) []TenantAssignment {
	found := false
	for _, a := range assignments {
		if a.TenantID == tenantID {
			found = true
			break
		}
	}
	if !found {
		return assignments
	}
	out := make([]TenantAssignment, len(assignments))
	copy(out, assignments)
	for i := range out {
		out[i].IsPrimary = out[i].TenantID == tenantID
	}
	return out
}

// AssignmentFor returns the assignment for tenantID, if any.
func AssignmentFor(assignments []TenantAssignment, tenantID string) (TenantAssignment, bool) {
	for _, a := range assignments {
		if a.TenantID == tenantID {
			return a, true
		}
	}
	return TenantAssignment{}, false
}

// PrimaryAssignment returns the assignment flagged primary, if any.
func PrimaryAssignment(assignments []TenantAssignment) (TenantAssignment, bool) {
	for _, a := range assignments {
		if a.IsPrimary {
			return a, true
		}
	}
	return TenantAssignment{}, false
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresIn int           `json:"expires_in"`
	User      PrincipalView `json:"user"`
}

type SwitchTenantRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
}

// PrincipalView is the resolved identity returned to clients: claims plus
// the effective permission set and accessible tenants.
type PrincipalView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Role        Role     `json:"role"`
	IsMSP       bool     `json:"is_msp"`
	TenantID    string   `json:"tenant_id"`
	Permissions []string `json:"permissions"`
	Tenants     []Tenant `json:"tenants,omitempty"`
}
