package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the platform.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSpeaker  Role = "speaker"
	RoleAudience Role = "audience"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSpeaker, RoleAudience:
		return true
	}
	return false
}

// Presenter reports whether the role may present (screen share under the presenters policy).
func (r Role) Presenter() bool {
	return r == RoleAdmin || r == RoleSpeaker
}

// User is the account row consulted during the connection handshake.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the authenticated caller attached to a connection after the handshake.
type Identity struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Role          Role   `json:"role"`
}
