package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atlas-portal/atlas-portal/internal/access"
	alertshttp "github.com/atlas-portal/atlas-portal/internal/alerts/http"
	audithttp "github.com/atlas-portal/atlas-portal/internal/audit/http"
	"github.com/atlas-portal/atlas-portal/internal/auth"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	mfahttp "github.com/atlas-portal/atlas-portal/internal/mfa/http"
	"github.com/atlas-portal/atlas-portal/internal/observability"
	"github.com/atlas-portal/atlas-portal/internal/platform/httpx"
	"github.com/atlas-portal/atlas-portal/internal/roles"
	"github.com/atlas-portal/atlas-portal/internal/shared"
	"github.com/atlas-portal/atlas-portal/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	UsersHandler   *users.Handler
	RolesHandler   *roles.Handler
	AuditHandler   *audithttp.Handler
	AlertsHandler  *alertshttp.Handler
	MFAHandler     *mfahttp.Handler
	AuthzRepo      *authz.Repository
	Overrides      *authz.OverridesHandler
	Authz          authz.Middleware
	Facade         *access.Facade
	Toucher        AccessToucher
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Toucher:        params.Toucher,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Session gate for every privileged group. /auth and /mfa stay outside:
	// a pending session must still be able to log out and finish enrollment.
	sessionGate := params.Facade.RequireVerified(params.AuthzRepo)

	if params.UsersHandler != nil {
		r.Route("/users", func(r chi.Router) {
			r.Use(sessionGate)
			r.Use(params.Authz.RequireAny(shared.PermUsersView, shared.PermUsersEdit, shared.PermUsersDelete, shared.PermUsersPerms))
			params.UsersHandler.MountRoutes(r)
			if params.Overrides != nil {
				params.Overrides.MountRoutes(r)
			}
		})
	}
	if params.RolesHandler != nil {
		r.Route("/roles", func(r chi.Router) {
			r.Use(sessionGate)
			r.Use(params.Authz.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
			params.RolesHandler.MountRoutes(r)
		})
	}
	if params.AuditHandler != nil {
		r.Route("/audit", func(r chi.Router) {
			r.Use(sessionGate)
			r.Use(params.Authz.RequireAny(shared.PermAuditView))
			params.AuditHandler.MountRoutes(r, params.Authz.RequireAny(shared.PermAuditExport))
		})
	}
	if params.AlertsHandler != nil {
		r.Route("/alerts", func(r chi.Router) {
			r.Use(sessionGate)
			r.Use(params.Authz.RequireAny(shared.PermAlertsView, shared.PermAlertsResolve))
			params.AlertsHandler.MountRoutes(r, params.Authz.RequireAny(shared.PermAlertsResolve))
		})
	}
	if params.MFAHandler != nil {
		r.Route("/mfa", params.MFAHandler.MountRoutes)
	}
	if params.AuthzRepo != nil {
		r.With(sessionGate, params.Authz.RequireAny(shared.PermRolesView, shared.PermUsersPerms)).
			Get("/permissions", func(w http.ResponseWriter, r *http.Request) {
				perms, err := params.AuthzRepo.ListPermissions(r.Context())
				if err != nil {
					params.Logger.Error("list permissions", slog.Any("error", err))
					httpx.RespondError(w, err)
					return
				}
				httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
			})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
