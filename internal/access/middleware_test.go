package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

type fakeUserLoader struct {
	users map[int64]authz.User
}

func (l fakeUserLoader) GetUser(ctx context.Context, id int64) (authz.User, error) {
	u, ok := l.users[id]
	if !ok {
		return authz.User{}, authz.ErrNotFound
	}
	return u, nil
}

func gateRequest(t *testing.T, handler http.Handler, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/users/2/deactivate", nil)
	if userID != "" {
		sess := &shared.Session{}
		sess.SetUser(userID)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireVerifiedLocksOutPendingSession(t *testing.T) {
	provider := &fakeProvider{verified: map[int64]bool{}}
	facade, _ := newTestFacade(t, provider)
	loader := fakeUserLoader{users: map[int64]authz.User{1: highUser(1, time.Now())}}

	reached := false
	handler := facade.RequireVerified(loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := gateRequest(t, handler, "1")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.False(t, reached)
}

func TestRequireVerifiedAdmitsVerifiedSession(t *testing.T) {
	provider := &fakeProvider{verified: map[int64]bool{1: true}}
	facade, _ := newTestFacade(t, provider)
	loader := fakeUserLoader{users: map[int64]authz.User{1: highUser(1, time.Now())}}

	handler := facade.RequireVerified(loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := gateRequest(t, handler, "1")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireVerifiedExpiredSessionUnauthorized(t *testing.T) {
	provider := &fakeProvider{verified: map[int64]bool{1: true}}
	facade, _ := newTestFacade(t, provider)
	loader := fakeUserLoader{users: map[int64]authz.User{1: highUser(1, time.Now().Add(-SessionIdleExpiry-time.Minute))}}

	handler := facade.RequireVerified(loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := gateRequest(t, handler, "1")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireVerifiedAnonymousUnauthorized(t *testing.T) {
	provider := &fakeProvider{verified: map[int64]bool{}}
	facade, _ := newTestFacade(t, provider)
	loader := fakeUserLoader{users: map[int64]authz.User{}}

	handler := facade.RequireVerified(loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	require.Equal(t, http.StatusUnauthorized, gateRequest(t, handler, "").Code)
	require.Equal(t, http.StatusUnauthorized, gateRequest(t, handler, "9").Code)
}
