package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldbase/fieldbase/internal/app"
	"github.com/fieldbase/fieldbase/internal/auth"
	"github.com/fieldbase/fieldbase/internal/authz"
	"github.com/fieldbase/fieldbase/internal/observability"
	"github.com/fieldbase/fieldbase/internal/platform/cache"
	"github.com/fieldbase/fieldbase/internal/platform/db"
	"github.com/fieldbase/fieldbase/internal/rbac"
	"github.com/fieldbase/fieldbase/internal/roles"
	"github.com/fieldbase/fieldbase/internal/shared"
	"github.com/fieldbase/fieldbase/internal/users"
	"github.com/fieldbase/fieldbase/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	if len(args) > 0 && args[0] != "serve" {
		code := runCommand(ctx, args)
		stop()
		os.Exit(code)
	}

	if err := serve(ctx); err != nil {
		slog.Default().Error("fieldbase", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// permissionStore builds the PostgreSQL permission store, wrapped in the
// circuit breaker unless it is disabled.
func permissionStore(cfg *app.Config, pool *pgxpool.Pool, logger *slog.Logger, recorder rbac.TransitionRecorder) authz.PermissionStore {
	repo := rbac.NewRepository(pool)
	if !cfg.AuthzBreakerEnabled {
		return repo
	}
	return rbac.NewBreakerStore(repo, rbac.BreakerConfig{
		FailureThreshold: cfg.AuthzBreakerFailures,
		Timeout:          cfg.AuthzBreakerTimeout,
	}, logger, recorder)
}

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	usersService := users.NewService(users.NewRepository(dbpool))
	sessionResolver := auth.NewSessionResolver(usersService)

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	evaluator := authz.NewEvaluator(permissionStore(cfg, dbpool, logger, metrics), cfg.AuthzStoreTimeout)

	rolesService := roles.NewService(roles.NewRepository(dbpool))
	hierarchyCache := roles.NewCache(redisClient)
	hierarchyCache.ListenForInvalidation(ctx)
	hierarchy := authz.NewHierarchyResolver(rolesService, hierarchyCache, logger, authz.HierarchyConfig{
		TopRole:  cfg.AuthzTopRole,
		CacheTTL: cfg.AuthzRoleCacheTTL,
		Timeout:  cfg.AuthzStoreTimeout,
	})

	catalog, err := authz.LoadCatalog(cfg.AuthzCatalogPath)
	if err != nil {
		return fmt.Errorf("load authz catalog: %w", err)
	}

	gateway := authz.NewGateway(authz.GatewayConfig{
		Sessions:  sessionResolver,
		Evaluator: evaluator,
		Hierarchy: hierarchy,
		Catalog:   catalog,
		Logger:    logger,
		Recorder:  metrics,
	})

	authzHandler := authz.NewHandler(logger, gateway, evaluator)
	rolesHandler := roles.NewHandler(logger, rolesService, hierarchy, hierarchyCache, gateway)
	permissionsHandler := rbac.NewHandler(logger, rbac.NewService(rbac.NewRepository(dbpool)), gateway)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger, gateway.GuardKey("settings.manage"))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		AuthzHandler:       authzHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Readiness: map[string]app.ReadinessCheck{
			"postgres": dbpool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Int("catalog_version", catalog.Version()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
