package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atlas-portal/atlas-portal/internal/alerts"
	"github.com/atlas-portal/atlas-portal/internal/audit"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

type memoryAuthRepo struct {
	creds map[string]Credentials
	users map[int64]authz.User
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{creds: make(map[string]Credentials), users: make(map[int64]authz.User)}
}

func (r *memoryAuthRepo) FindCredentialsByEmail(ctx context.Context, email string) (Credentials, error) {
	c, ok := r.creds[email]
	if !ok {
		return Credentials{}, authz.ErrNotFound
	}
	return c, nil
}

func (r *memoryAuthRepo) GetUser(ctx context.Context, id int64) (authz.User, error) {
	u, ok := r.users[id]
	if !ok {
		return authz.User{}, authz.ErrNotFound
	}
	return u, nil
}

func (r *memoryAuthRepo) TouchLastAccess(ctx context.Context, userID int64, at time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return authz.ErrNotFound
	}
	u.LastAccessAt = at
	r.users[userID] = u
	return nil
}

type auditCapture struct {
	entries []audit.LogEntry
}

func (r *auditCapture) Insert(ctx context.Context, entry audit.LogEntry) (audit.LogEntry, error) {
	entry.ID = int64(len(r.entries) + 1)
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, entry)
	return entry, nil
}

type alertCapture struct {
	alerts []alerts.Alert
}

func (r *alertCapture) Insert(ctx context.Context, alert alerts.Alert) (alerts.Alert, error) {
	alert.ID = int64(len(r.alerts) + 1)
	r.alerts = append(r.alerts, alert)
	return alert, nil
}

func (r *alertCapture) Get(ctx context.Context, id int64) (alerts.Alert, error) {
	return alerts.Alert{}, alerts.ErrNotFound
}

func (r *alertCapture) List(ctx context.Context, f alerts.Filters) ([]alerts.Alert, error) {
	return r.alerts, nil
}

func (r *alertCapture) MarkResolved(ctx context.Context, id, resolvedBy int64, notes string, at time.Time) (bool, error) {
	return false, nil
}

func (r *alertCapture) CountUnresolvedBySeverity(ctx context.Context) (map[alerts.Severity]int, error) {
	return nil, nil
}

func newAuthFixture(t *testing.T) (*Service, *memoryAuthRepo, *auditCapture, *alertCapture) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryAuthRepo()
	audits := &auditCapture{}
	alertRepo := &alertCapture{}
	service := NewService(repo, audit.NewRecorder(audits, nil, nil), alerts.NewMonitor(alertRepo, client, nil))
	return service, repo, audits, alertRepo
}

func seedAccount(t *testing.T, repo *memoryAuthRepo, id int64, email, password string, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	repo.creds[email] = Credentials{UserID: id, PasswordHash: string(hash)}
	repo.users[id] = authz.User{ID: id, Email: email, Type: authz.UserTypeAdmin, Active: active}
}

func TestAuthenticateSuccess(t *testing.T) {
	service, repo, audits, _ := newAuthFixture(t)
	seedAccount(t, repo, 1, "ana@example.com", "secreto123", true)

	user, err := service.Authenticate(context.Background(), "ana@example.com", "secreto123", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.False(t, user.LastAccessAt.IsZero())

	require.Len(t, audits.entries, 1)
	require.Equal(t, audit.ActionLogin, audits.entries[0].Action)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	service, repo, audits, _ := newAuthFixture(t)
	seedAccount(t, repo, 1, "ana@example.com", "secreto123", true)

	_, err := service.Authenticate(context.Background(), "ana@example.com", "incorrecta", "10.0.0.1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	require.Empty(t, audits.entries)
}

func TestAuthenticateUnknownEmailSameError(t *testing.T) {
	service, _, _, _ := newAuthFixture(t)

	_, err := service.Authenticate(context.Background(), "nadie@example.com", "x", "10.0.0.1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	service, repo, _, _ := newAuthFixture(t)
	seedAccount(t, repo, 1, "ana@example.com", "secreto123", false)

	_, err := service.Authenticate(context.Background(), "ana@example.com", "secreto123", "10.0.0.1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRepeatedFailuresFileAlert(t *testing.T) {
	service, repo, _, alertRepo := newAuthFixture(t)
	seedAccount(t, repo, 1, "ana@example.com", "secreto123", true)
	ctx := context.Background()

	for i := 0; i < alerts.FailedLoginThreshold; i++ {
		_, err := service.Authenticate(ctx, "ana@example.com", "incorrecta", "10.0.0.1")
		require.Error(t, err)
	}
	require.Len(t, alertRepo.alerts, 1)
	require.Equal(t, alerts.TypeFailedLogins, alertRepo.alerts[0].Type)
}

func TestSuccessfulLoginClearsFailureWindow(t *testing.T) {
	service, repo, _, alertRepo := newAuthFixture(t)
	seedAccount(t, repo, 1, "ana@example.com", "secreto123", true)
	ctx := context.Background()

	for i := 0; i < alerts.FailedLoginThreshold-1; i++ {
		_, err := service.Authenticate(ctx, "ana@example.com", "incorrecta", "10.0.0.1")
		require.Error(t, err)
	}
	_, err := service.Authenticate(ctx, "ana@example.com", "secreto123", "10.0.0.1")
	require.NoError(t, err)

	_, err = service.Authenticate(ctx, "ana@example.com", "incorrecta", "10.0.0.1")
	require.Error(t, err)
	require.Empty(t, alertRepo.alerts, "window restarts after a successful login")
}
