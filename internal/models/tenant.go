package models

import (
	"time"
)

type Tenant struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultTenant is the placeholder used when a principal reaches a session
// with no resolvable tenant assignment. Sessions still need a tenant pointer
// for the dashboard to render, so we synthesize one instead of failing login.
func DefaultTenant() Tenant {
	return Tenant{
		ID:          "default",
		Name:        "Default Tenant",
		Description: "Synthesized tenant for principals without assignments",
	}
}
