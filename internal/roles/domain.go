// Package roles manages the ranked role catalog and each role's permission set.
package roles

import (
	"fmt"

	"github.com/atlas-portal/atlas-portal/internal/shared"
)

var (
	ErrNotFound   = fmt.Errorf("roles: %w", shared.ErrNotFound)
	ErrSystemRole = fmt.Errorf("roles: system role is immutable: %w", shared.ErrConflict)
	ErrInUse      = fmt.Errorf("roles: role still assigned to users: %w", shared.ErrConflict)
)

// Input is the create/update payload for a role.
type Input struct {
	Name  string `json:"name" validate:"required,max=100"`
	Level int    `json:"level" validate:"min=0,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}
