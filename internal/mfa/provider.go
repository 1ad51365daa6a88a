package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// FactorStatus tracks enrollment progression.
type FactorStatus string

const (
	FactorPending  FactorStatus = "pending"
	FactorVerified FactorStatus = "verified"
)

// Factor is an enrolled TOTP secret for a user.
type Factor struct {
	ID           string
	UserID       int64
	FriendlyName string
	Secret       string
	Status       FactorStatus
	CreatedAt    time.Time
	VerifiedAt   *time.Time
}

// Enrollment is handed to the client to provision an authenticator app.
type Enrollment struct {
	FactorID  string `json:"factor_id"`
	Secret    string `json:"secret"`
	QRPayload string `json:"qr_payload"`
}

// Provider is the second-factor surface the session gate consumes.
type Provider interface {
	Enroll(ctx context.Context, userID int64, accountName, friendlyName string) (Enrollment, error)
	Challenge(ctx context.Context, factorID string) (string, error)
	Verify(ctx context.Context, factorID, challengeID, code string) error
	Unenroll(ctx context.Context, factorID string) error
	ListFactors(ctx context.Context, userID int64) ([]Factor, error)
}

var (
	// ErrFactorNotFound indicates an unknown factor id.
	ErrFactorNotFound = fmt.Errorf("mfa: factor: %w", shared.ErrNotFound)
	// ErrChallengeExpired indicates a missing or timed-out challenge.
	ErrChallengeExpired = fmt.Errorf("mfa: challenge expired: %w", shared.ErrUnauthorized)
	// ErrCodeInvalid indicates the 6-digit code did not validate.
	ErrCodeInvalid = fmt.Errorf("mfa: invalid code: %w", shared.ErrUnauthorized)
)

// challengeTTL bounds how long a server-issued challenge stays answerable.
const challengeTTL = 5 * time.Minute

// FactorStore persists factor rows.
type FactorStore interface {
	InsertFactor(ctx context.Context, f Factor) error
	GetFactor(ctx context.Context, id string) (Factor, error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
	DeleteFactor(ctx context.Context, id string) error
	FactorsByUser(ctx context.Context, userID int64) ([]Factor, error)
}

// TOTPProvider implements Provider with time-based one-time passwords.
// Challenges live in Redis with a short TTL.
type TOTPProvider struct {
	store  FactorStore
	client *redis.Client
	issuer string
}

// NewTOTPProvider constructs the provider.
func NewTOTPProvider(store FactorStore, client *redis.Client, issuer string) *TOTPProvider {
	return &TOTPProvider{store: store, client: client, issuer: issuer}
}

// Enroll provisions a fresh secret and otpauth:// payload. The factor stays
// pending until a code verifies against a challenge.
func (p *TOTPProvider) Enroll(ctx context.Context, userID int64, accountName, friendlyName string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: accountName,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("mfa: generate secret: %w", err)
	}
	factor := Factor{
		ID:           uuid.NewString(),
		UserID:       userID,
		FriendlyName: friendlyName,
		Secret:       key.Secret(),
		Status:       FactorPending,
		CreatedAt:    time.Now(),
	}
	if err := p.store.InsertFactor(ctx, factor); err != nil {
		return Enrollment{}, err
	}
	return Enrollment{FactorID: factor.ID, Secret: key.Secret(), QRPayload: key.URL()}, nil
}

// Challenge issues a short-lived challenge id bound to the factor.
func (p *TOTPProvider) Challenge(ctx context.Context, factorID string) (string, error) {
	if _, err := p.store.GetFactor(ctx, factorID); err != nil {
		return "", err
	}
	challengeID := uuid.NewString()
	if err := p.client.Set(ctx, challengeKey(challengeID), factorID, challengeTTL).Err(); err != nil {
		return "", fmt.Errorf("mfa: store challenge: %w", err)
	}
	return challengeID, nil
}

// Verify checks the 6-digit code against the challenged factor and marks it
// verified. Challenges are single use.
func (p *TOTPProvider) Verify(ctx context.Context, factorID, challengeID, code string) error {
	stored, err := p.client.GetDel(ctx, challengeKey(challengeID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrChallengeExpired
		}
		return err
	}
	if stored != factorID {
		return ErrChallengeExpired
	}
	factor, err := p.store.GetFactor(ctx, factorID)
	if err != nil {
		return err
	}
	if !totp.Validate(code, factor.Secret) {
		return ErrCodeInvalid
	}
	if factor.Status != FactorVerified {
		if err := p.store.MarkVerified(ctx, factorID, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// Unenroll removes the factor.
func (p *TOTPProvider) Unenroll(ctx context.Context, factorID string) error {
	return p.store.DeleteFactor(ctx, factorID)
}

// ListFactors returns the user's factors, secrets omitted.
func (p *TOTPProvider) ListFactors(ctx context.Context, userID int64) ([]Factor, error) {
	factors, err := p.store.FactorsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range factors {
		factors[i].Secret = ""
	}
	return factors, nil
}

func challengeKey(id string) string {
	return "mfa:challenge:" + id
}
