package users

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/atlas-portal/atlas-portal/internal/alerts"
	"github.com/atlas-portal/atlas-portal/internal/audit"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/hierarchy"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// WriteStore is the mutation surface for user management.
type WriteStore interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	SetActive(ctx context.Context, userID int64, active bool) error
	SetRole(ctx context.Context, userID int64, roleID *int64) error
	SetType(ctx context.Context, userID int64, userType string) error
}

// ReadStore loads full user records for guard decisions.
type ReadStore interface {
	GetUser(ctx context.Context, id int64) (authz.User, error)
}

// RoleStore resolves the role being assigned.
type RoleStore interface {
	GetRole(ctx context.Context, id int64) (authz.Role, error)
}

// Service handles guarded user mutations. The UI's permission checks are
// advisory; every mutation here re-resolves the actor's capability and
// re-runs the hierarchy guard.
type Service struct {
	store    WriteStore
	reader   ReadStore
	roles    RoleStore
	resolver *authz.Resolver
	guard    *hierarchy.Guard
	recorder *audit.Recorder
	monitor  *alerts.Monitor
}

// NewService builds a Service instance.
func NewService(store WriteStore, reader ReadStore, roles RoleStore, resolver *authz.Resolver, guard *hierarchy.Guard, recorder *audit.Recorder, monitor *alerts.Monitor) *Service {
	return &Service{store: store, reader: reader, roles: roles, resolver: resolver, guard: guard, recorder: recorder, monitor: monitor}
}

// List returns all user profiles.
func (s *Service) List(ctx context.Context, actor authz.User) ([]Profile, error) {
	if err := s.require(ctx, actor, shared.PermUsersView); err != nil {
		return nil, err
	}
	return s.store.ListProfiles(ctx)
}

// Get returns a single user profile.
func (s *Service) Get(ctx context.Context, actor authz.User, targetID int64) (Profile, error) {
	if err := s.require(ctx, actor, shared.PermUsersView); err != nil {
		return Profile{}, err
	}
	user, err := s.reader.GetUser(ctx, targetID)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		ID:     user.ID,
		Email:  user.Email,
		Type:   string(user.Type),
		RoleID: user.RoleID,
		Active: user.Active,
	}
	if user.Role != nil {
		p.RoleName = user.Role.Name
		p.RoleLevel = user.Role.Level
	}
	if !user.LastAccessAt.IsZero() {
		formatted := user.LastAccessAt.Format(time.RFC3339)
		p.LastAccessAt = &formatted
	}
	return p, nil
}

// Deactivate disables the target account.
func (s *Service) Deactivate(ctx context.Context, actor authz.User, targetID int64) error {
	if err := s.require(ctx, actor, shared.PermUsersDelete); err != nil {
		return err
	}
	target, err := s.reader.GetUser(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.guard.AuthorizeUserMutation(ctx, actor, target); err != nil {
		return err
	}
	if err := s.store.SetActive(ctx, targetID, false); err != nil {
		return err
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionUpdate,
		Category:    "usuarios",
		Description: fmt.Sprintf("usuario %s desactivado", target.Email),
		Table:       "users",
		RecordID:    strconv.FormatInt(targetID, 10),
		Before:      map[string]any{"activo": target.Active},
		After:       map[string]any{"activo": false},
	})
	s.monitor.Offer(ctx, alerts.UserDeactivatedEvent{ActorID: actor.ID, TargetUserID: targetID})
	return nil
}

// Reactivate re-enables the target account.
func (s *Service) Reactivate(ctx context.Context, actor authz.User, targetID int64) error {
	if err := s.require(ctx, actor, shared.PermUsersEdit); err != nil {
		return err
	}
	target, err := s.reader.GetUser(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.guard.AuthorizeUserMutation(ctx, actor, target); err != nil {
		return err
	}
	if err := s.store.SetActive(ctx, targetID, true); err != nil {
		return err
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionUpdate,
		Category:    "usuarios",
		Description: fmt.Sprintf("usuario %s reactivado", target.Email),
		Table:       "users",
		RecordID:    strconv.FormatInt(targetID, 10),
		Before:      map[string]any{"activo": target.Active},
		After:       map[string]any{"activo": true},
	})
	return nil
}

// AssignRole changes the target's role. The actor must outrank both the
// target and the role being granted; handing out a role at or above one's
// own level is exactly the lateral escalation the guard exists for.
func (s *Service) AssignRole(ctx context.Context, actor authz.User, targetID int64, roleID *int64) error {
	if err := s.require(ctx, actor, shared.PermUsersEdit); err != nil {
		return err
	}
	target, err := s.reader.GetUser(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.guard.AuthorizeUserMutation(ctx, actor, target); err != nil {
		return err
	}

	var newRole authz.Role
	if roleID != nil {
		newRole, err = s.roles.GetRole(ctx, *roleID)
		if err != nil {
			return err
		}
		if err := s.guard.AuthorizeLevelChange(ctx, actor, hierarchy.RoleTarget(newRole)); err != nil {
			return err
		}
	}

	if err := s.store.SetRole(ctx, targetID, roleID); err != nil {
		return err
	}

	before := map[string]any{"rol": "", "nivel": 0}
	if target.Role != nil {
		before = map[string]any{"rol": target.Role.Name, "nivel": target.Role.Level}
	}
	after := map[string]any{"rol": "", "nivel": 0}
	if roleID != nil {
		after = map[string]any{"rol": newRole.Name, "nivel": newRole.Level}
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionUpdate,
		Category:    "usuarios",
		Description: fmt.Sprintf("rol de %s actualizado", target.Email),
		Table:       "users",
		RecordID:    strconv.FormatInt(targetID, 10),
		Before:      before,
		After:       after,
	})
	if roleID != nil {
		s.monitor.Offer(ctx, alerts.RoleAssignedEvent{
			ActorID:      actor.ID,
			TargetUserID: targetID,
			RoleName:     newRole.Name,
			RoleLevel:    newRole.Level,
		})
	}
	return nil
}

// ChangeType switches the account trust class. Promoting to super_admin is
// reserved to super_admins under the named exception.
func (s *Service) ChangeType(ctx context.Context, actor authz.User, targetID int64, newType authz.UserType) error {
	if err := s.require(ctx, actor, shared.PermUsersEdit); err != nil {
		return err
	}
	if newType == authz.UserTypeSuperAdmin && !actor.IsSuperAdmin() {
		return fmt.Errorf("users: promote to super_admin: %w", shared.ErrForbidden)
	}
	target, err := s.reader.GetUser(ctx, targetID)
	if err != nil {
		return err
	}
	if err := s.guard.AuthorizeUserMutation(ctx, actor, target); err != nil {
		return err
	}
	if err := s.store.SetType(ctx, targetID, string(newType)); err != nil {
		return err
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionUpdate,
		Category:    "usuarios",
		Description: fmt.Sprintf("tipo de %s cambiado a %s", target.Email, newType),
		Table:       "users",
		RecordID:    strconv.FormatInt(targetID, 10),
		Before:      map[string]any{"tipo": string(target.Type)},
		After:       map[string]any{"tipo": string(newType)},
	})
	s.monitor.Offer(ctx, alerts.UserTypeChangedEvent{
		ActorID:      actor.ID,
		TargetUserID: targetID,
		From:         string(target.Type),
		To:           string(newType),
	})
	return nil
}

// DataExport bundles everything stored about the target for a GDPR request
// and leaves the mandatory trail entry.
type DataExport struct {
	User        authz.User `json:"user"`
	Permissions []string   `json:"permissions"`
}

// ExportData produces the subject-access bundle.
func (s *Service) ExportData(ctx context.Context, actor authz.User, targetID int64) (DataExport, error) {
	if err := s.require(ctx, actor, shared.PermUsersExport); err != nil {
		return DataExport{}, err
	}
	target, err := s.reader.GetUser(ctx, targetID)
	if err != nil {
		return DataExport{}, err
	}
	set, err := s.resolver.ResolveAll(ctx, target)
	if err != nil {
		return DataExport{}, err
	}
	s.recorder.TryRecord(ctx, audit.Entry{
		ActorID:     actor.ID,
		Action:      audit.ActionGDPRDataExport,
		Category:    "usuarios",
		Description: fmt.Sprintf("exportación de datos del usuario %s", target.Email),
		Table:       "users",
		RecordID:    strconv.FormatInt(targetID, 10),
	})
	return DataExport{User: target, Permissions: set.Codes()}, nil
}

func (s *Service) require(ctx context.Context, actor authz.User, code string) error {
	allowed, err := s.resolver.Resolve(ctx, actor, code)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("users: %s: %w", code, shared.ErrForbidden)
	}
	return nil
}
