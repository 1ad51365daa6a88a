package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/atlas-portal/atlas-portal/internal/shared"
)

type recordingToucher struct {
	touched []int64
}

func (r *recordingToucher) TouchAccess(ctx context.Context, userID int64) error {
	r.touched = append(r.touched, userID)
	return nil
}

func newTestStack(t *testing.T, toucher *recordingToucher) (http.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "atlas_session", "test-secret", time.Hour, 24*time.Hour, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         logger,
		SessionManager: sessions,
		CSRFManager:    shared.NewCSRFManager("csrf-secret"),
		Toucher:        toucher,
	}) {
		r.Use(mw)
	}
	r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r, sessions
}

// An authenticated request must refresh the user's last recorded access, not
// only the Redis session, so continuous activity defers the idle window.
func TestSessionMiddlewareTouchesUserAccess(t *testing.T) {
	toucher := &recordingToucher{}
	stack, sessions := newTestStack(t, toucher)

	// Bootstrap an authenticated session and capture its cookie.
	login := httptest.NewRequest(http.MethodGet, "/ping", nil)
	sess, err := sessions.Load(login.Context(), login)
	require.NoError(t, err)
	sess.SetUser("7")
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Commit(login.Context(), rec, login, sess))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.AddCookie(cookies[0])
	res := httptest.NewRecorder()
	stack.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, []int64{7}, toucher.touched)
}

func TestSessionMiddlewareSkipsAnonymous(t *testing.T) {
	toucher := &recordingToucher{}
	stack, _ := newTestStack(t, toucher)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	res := httptest.NewRecorder()
	stack.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, toucher.touched)
}
