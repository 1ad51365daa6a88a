package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlas-portal/atlas-portal/internal/access"
	"github.com/atlas-portal/atlas-portal/internal/alerts"
	alertshttp "github.com/atlas-portal/atlas-portal/internal/alerts/http"
	"github.com/atlas-portal/atlas-portal/internal/app"
	"github.com/atlas-portal/atlas-portal/internal/audit"
	audithttp "github.com/atlas-portal/atlas-portal/internal/audit/http"
	"github.com/atlas-portal/atlas-portal/internal/auth"
	"github.com/atlas-portal/atlas-portal/internal/authz"
	"github.com/atlas-portal/atlas-portal/internal/hierarchy"
	"github.com/atlas-portal/atlas-portal/internal/mfa"
	mfahttp "github.com/atlas-portal/atlas-portal/internal/mfa/http"
	"github.com/atlas-portal/atlas-portal/internal/observability"
	"github.com/atlas-portal/atlas-portal/internal/platform/db"
	"github.com/atlas-portal/atlas-portal/internal/roles"
	"github.com/atlas-portal/atlas-portal/internal/shared"
	"github.com/atlas-portal/atlas-portal/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "atlas_session", cfg.SessionSecret, cfg.SessionTTL, cfg.SessionIdleExpiry, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(dbpool)
	recorder := audit.NewRecorder(auditRepo, logger, metrics.AuditWriteFailures)
	timeline := audit.NewTimelineService(auditRepo)

	alertsRepo := alerts.NewRepository(dbpool)
	monitor := alerts.NewMonitor(alertsRepo, redisClient, logger)
	monitor.Instrument(metrics.AlertsFiled, metrics.GuardDenials)

	guard := hierarchy.NewGuard(monitor)

	authzRepo := authz.NewRepository(dbpool)
	resolver := authz.NewResolver(authzRepo)
	overrideService := authz.NewService(authzRepo, resolver, guard, recorder)
	authzMiddleware := authz.Middleware{Store: authzRepo, Resolver: resolver, Logger: logger}

	mfaRepo := mfa.NewRepository(dbpool)
	totpProvider := mfa.NewTOTPProvider(mfaRepo, redisClient, cfg.MFAIssuer)
	mfaService := mfa.NewService(totpProvider, guard, recorder, monitor)

	gate := access.NewGate(mfaService)
	facade := access.NewFacade(resolver, guard, recorder, monitor, gate, mfaService)

	authRepo := auth.NewRepository(dbpool, authzRepo)
	authService := auth.NewService(authRepo, recorder, monitor)
	authHandler := auth.NewHandler(logger, authService, facade, sessionManager, csrfManager)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, authzRepo, resolver, guard, recorder, monitor)
	rolesHandler := roles.NewHandler(logger, rolesService, authzRepo)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, authzRepo, rolesRepo, resolver, guard, recorder, monitor)
	usersHandler := users.NewHandler(logger, usersService, authzRepo)

	auditHandler := audithttp.NewHandler(logger, timeline)
	alertsHandler := alertshttp.NewHandler(logger, monitor)
	mfaHandler := mfahttp.NewHandler(logger, facade, mfaService, authzRepo)
	overridesHandler := authz.NewOverridesHandler(logger, overrideService, authzRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		UsersHandler:   usersHandler,
		RolesHandler:   rolesHandler,
		AuditHandler:   auditHandler,
		AlertsHandler:  alertsHandler,
		MFAHandler:     mfaHandler,
		AuthzRepo:      authzRepo,
		Overrides:      overridesHandler,
		Authz:          authzMiddleware,
		Facade:         facade,
		Toucher:        authService,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
