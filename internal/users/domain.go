package users

import (
	"fmt"

	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// ErrNotFound indicates the user does not exist.
var ErrNotFound = fmt.Errorf("users: %w", shared.ErrNotFound)

// Profile is the management view of an account.
type Profile struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	Type         string  `json:"type"`
	RoleID       *int64  `json:"role_id,omitempty"`
	RoleName     string  `json:"role_name,omitempty"`
	RoleLevel    int     `json:"role_level"`
	Active       bool    `json:"active"`
	LastAccessAt *string `json:"last_access_at,omitempty"`
}
