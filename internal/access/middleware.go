package access

import (
	"context"
	"net/http"

	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/platform/httpx"
	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// UserLoader resolves the acting user for the gate middleware.
type UserLoader interface {
	GetUser(ctx context.Context, id int64) (authz.User, error)
}

// RequireVerified is route middleware that runs the session machine before
// any privileged handler. Every group except /auth and /mfa mounts it: a
// pending session may only reach the enrollment operations, and those live
// behind the facade's own gate.
func (f *Facade) RequireVerified(loader UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := shared.CurrentUserID(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			user, err := loader.GetUser(r.Context(), id)
			if err != nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if err := f.requireVerified(r.Context(), user); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
