package auth

import (
	"context"
	"time"

	"github.com/atlas-portal/atlas-portal/internal/authz"
)

// Credentials is the stored login material for a portal account. Identity
// verification is delegated here; the authorization core never reads it.
type Credentials struct {
	UserID       int64
	PasswordHash string
}

// Repository defines the persistence surface for authentication.
type Repository interface {
	FindCredentialsByEmail(ctx context.Context, email string) (Credentials, error)
	GetUser(ctx context.Context, id int64) (authz.User, error)
	TouchLastAccess(ctx context.Context, userID int64, at time.Time) error
}
