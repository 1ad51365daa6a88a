package authz

import (
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/atlas-portal/atlas-portal/internal/shared"
)

// Middleware wires permission checks for HTTP handlers. These checks are
// advisory for rendering: every privileged mutation re-runs the hierarchy
// guard server-side regardless of what was filtered here.
type Middleware struct {
	Store    Store
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireAny ensures the current user holds at least one of the codes.
func (m Middleware) RequireAny(codes ...string) func(http.Handler) http.Handler {
	normalized := normalizeCodes(codes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			user, ok := m.currentUser(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, code := range normalized {
				allowed, err := m.Resolver.Resolve(r.Context(), user, code)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authz require any", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
				if allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// RequireAll ensures the current user holds every one of the codes.
func (m Middleware) RequireAll(codes ...string) func(http.Handler) http.Handler {
	normalized := normalizeCodes(codes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := m.currentUser(r)
			if !ok && len(normalized) > 0 {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, code := range normalized {
				allowed, err := m.Resolver.Resolve(r.Context(), user, code)
				if err != nil || !allowed {
					if err != nil && m.Logger != nil {
						m.Logger.Error("authz require all", slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUser(r *http.Request) (User, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return User{}, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return User{}, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz parse user id", slog.String("value", raw))
		}
		return User{}, false
	}
	user, err := m.Store.GetUser(r.Context(), id)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz load user", slog.Any("error", err))
		}
		return User{}, false
	}
	return user, true
}

func normalizeCodes(codes []string) []string {
	unique := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(strings.ToLower(c))
		if c == "" {
			continue
		}
		unique[c] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for c := range unique {
		normalized = append(normalized, c)
	}
	return normalized
}
