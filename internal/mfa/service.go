package mfa

import (
	"context"
	"fmt"

	"github.com/atlas-portal/atlas-portal/internal/alerts"
	"github.com/atlas-portal/atlas-portal/internal/audit"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/hierarchy"
)

// Service wraps the provider with auditing and alerting for the enrollment
// and admin-unenroll flows.
type Service struct {
	provider Provider
	guard    *hierarchy.Guard
	recorder *audit.Recorder
	monitor  *alerts.Monitor
}

// NewService constructs a Service.
func NewService(provider Provider, guard *hierarchy.Guard, recorder *audit.Recorder, monitor *alerts.Monitor) *Service {
	return &Service{provider: provider, guard: guard, recorder: recorder, monitor: monitor}
}

// Enroll provisions a new factor for the user's own account.
func (s *Service) Enroll(ctx context.Context, user authz.User, friendlyName string) (Enrollment, error) {
	return s.provider.Enroll(ctx, user.ID, user.Email, friendlyName)
}

// Challenge issues a challenge for the factor.
func (s *Service) Challenge(ctx context.Context, factorID string) (string, error) {
	return s.provider.Challenge(ctx, factorID)
}

// CompleteEnrollment verifies the code and records the enrollment.
func (s *Service) CompleteEnrollment(ctx context.Context, user authz.User, factorID, challengeID, code string) error {
	if err := s.provider.Verify(ctx, factorID, challengeID, code); err != nil {
		return err
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     user.ID,
		Action:      audit.ActionMFAEnrolled,
		Category:    "seguridad",
		Description: fmt.Sprintf("segundo factor verificado para %s", user.Email),
		Table:       "mfa_factors",
		RecordID:    factorID,
	})
	return nil
}

// HasVerifiedFactor reports whether the user completed enrollment.
func (s *Service) HasVerifiedFactor(ctx context.Context, userID int64) (bool, error) {
	factors, err := s.provider.ListFactors(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, f := range factors {
		if f.Status == FactorVerified {
			return true, nil
		}
	}
	return false, nil
}

// ListFactors exposes the user's factors for self-service management.
func (s *Service) ListFactors(ctx context.Context, userID int64) ([]Factor, error) {
	return s.provider.ListFactors(ctx, userID)
}

// Unenroll removes one of the caller's own factors.
func (s *Service) Unenroll(ctx context.Context, user authz.User, factorID string) error {
	factor, err := s.factorOwnedBy(ctx, user.ID, factorID)
	if err != nil {
		return err
	}
	if err := s.provider.Unenroll(ctx, factor.ID); err != nil {
		return err
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     user.ID,
		Action:      audit.ActionMFAUnenrolled,
		Category:    "seguridad",
		Description: fmt.Sprintf("segundo factor eliminado para %s", user.Email),
		Table:       "mfa_factors",
		RecordID:    factor.ID,
	})
	return nil
}

// AdminUnenroll removes every factor of another user. The actor must outrank
// the target, the removal is audited, and an alert is filed: an admin
// disabling someone else's MFA is always review-worthy.
func (s *Service) AdminUnenroll(ctx context.Context, actor, target authz.User) error {
	if err := s.guard.AuthorizeUserMutation(ctx, actor, target); err != nil {
		return err
	}
	factors, err := s.provider.ListFactors(ctx, target.ID)
	if err != nil {
		return err
	}
	for _, f := range factors {
		if err := s.provider.Unenroll(ctx, f.ID); err != nil {
			return err
		}
		s.recorder.TryRecord(ctx, audit.Entry{
			ActorID:     actor.ID,
			Action:      audit.ActionMFAUnenrolled,
			Category:    "seguridad",
			Description: fmt.Sprintf("segundo factor del usuario %d eliminado por %d", target.ID, actor.ID),
			Table:       "mfa_factors",
			RecordID:    f.ID,
		})
	}
	if len(factors) > 0 {
		s.monitor.Offer(ctx, alerts.MFADisabledEvent{ActorID: actor.ID, TargetUserID: target.ID})
	}
	return nil
}

func (s *Service) factorOwnedBy(ctx context.Context, userID int64, factorID string) (Factor, error) {
	factors, err := s.provider.ListFactors(ctx, userID)
	if err != nil {
		return Factor{}, err
	}
	for _, f := range factors {
		if f.ID == factorID {
			return f, nil
		}
	}
	return Factor{}, ErrFactorNotFound
}
