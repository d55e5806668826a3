// Package auth signs staff in with a session cookie or a bearer token and resolves the
// actor behind each request.
package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/aquaflow/portal/internal/shared"
)

// Profile is a staff account.
type Profile struct {
	ID           uuid.UUID   `json:"id"`
	Email        string      `json:"email"`
	FullName     string      `json:"full_name"`
	Role         shared.Role `json:"role"`
	PasswordHash string      `json:"-"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Actor returns the service-layer identity of p.
func (p Profile) Actor() shared.Actor {
	return shared.Actor{ID: p.ID, Role: p.Role}
}
