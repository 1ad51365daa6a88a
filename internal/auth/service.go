package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-portal/atlas-portal/internal/alerts"
	"github.com/atlas-portal/atlas-portal/internal/audit"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// Service wraps authentication business rules. Failed attempts feed the
// alert monitor's window; successes clear it and leave a LOGIN entry.
type Service struct {
	repo     Repository
	recorder *audit.Recorder
	monitor  *alerts.Monitor
}

// NewService constructs a new Service.
func NewService(repo Repository, recorder *audit.Recorder, monitor *alerts.Monitor) *Service {
	return &Service{repo: repo, recorder: recorder, monitor: monitor}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password, ip string) (authz.User, error) {
	creds, err := s.repo.FindCredentialsByEmail(ctx, email)
	if err != nil {
		s.monitor.RecordFailedLogin(ctx, email, ip)
		return authz.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		s.monitor.RecordFailedLogin(ctx, email, ip)
		return authz.User{}, shared.ErrInvalidCredentials
	}
	user, err := s.repo.GetUser(ctx, creds.UserID)
	if err != nil {
		return authz.User{}, shared.ErrInvalidCredentials
	}
	if !user.Active {
		s.monitor.RecordFailedLogin(ctx, email, ip)
		return authz.User{}, shared.ErrInvalidCredentials
	}

	s.monitor.ClearFailedLogins(ctx, email)

	now := time.Now()
	if err := s.repo.TouchLastAccess(ctx, user.ID, now); err == nil {
		user.LastAccessAt = now
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     user.ID,
		Action:      audit.ActionLogin,
		Category:    "sesion",
		Description: fmt.Sprintf("inicio de sesión de %s", user.Email),
	})
	return user, nil
}

// RecordLogout leaves the LOGOUT trail for a closing session.
func (s *Service) RecordLogout(ctx context.Context, userID int64) {
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:  userID,
		Action:   audit.ActionLogout,
		Category: "sesion",
	})
}

// TouchAccess refreshes the user's last recorded access.
func (s *Service) TouchAccess(ctx context.Context, userID int64) error {
	return s.repo.TouchLastAccess(ctx, userID, time.Now())
}
