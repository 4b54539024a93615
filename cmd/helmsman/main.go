package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/helmsman-hq/helmsman/internal/admins"
	"github.com/helmsman-hq/helmsman/internal/app"
	"github.com/helmsman-hq/helmsman/internal/auth"
	"github.com/helmsman-hq/helmsman/internal/observability"
	"github.com/helmsman-hq/helmsman/internal/permissions"
	"github.com/helmsman-hq/helmsman/internal/platform/cache"
	"github.com/helmsman-hq/helmsman/internal/platform/db"
	"github.com/helmsman-hq/helmsman/internal/rbac"
	"github.com/helmsman-hq/helmsman/internal/roles"
	"github.com/helmsman-hq/helmsman/internal/settings"
	"github.com/helmsman-hq/helmsman/internal/shared"
	"github.com/helmsman-hq/helmsman/jobs"
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

	pool, err := db.New(ctx, db.Config{
		DSN:             cfg.PGDSN,
		MaxConns:        cfg.PGMaxConns,
		ConnectTimeout:  cfg.PGConnTimeout,
		MaxConnLifetime: cfg.PGConnLifetime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var store rbac.Store
	switch cfg.PermCacheBackend {
	case "redis":
		store = rbac.NewRedisStore(redisClient)
	default:
		store = rbac.NewMemoryStore(cfg.PermCacheMaxEntries, metrics)
	}
	permCache := rbac.NewPermissionCache(store, logger, metrics)

	auditLogger := shared.NewAuditLogger(pool)

	rolesRepo := roles.NewRepository(pool)
	permsRepo := permissions.NewRepository(pool)
	adminsRepo := admins.NewRepository(pool)

	decider := rbac.NewDecider(permCache, rolesRepo, logger)
	rbacMiddleware := rbac.Middleware{Decider: decider, Logger: logger}

	tokens := auth.NewTokenManager(redisClient, cfg.TokenSecret, cfg.TokenTTL)
	authService := auth.NewService(adminsRepo, tokens, logger)
	authHandler := auth.NewHandler(logger, authService)

	permsService := permissions.NewService(permsRepo, permCache, auditLogger, logger)
	permsHandler := permissions.NewHandler(logger, permsService, rbacMiddleware)

	rolesService := roles.NewService(rolesRepo, permsRepo, permCache, auditLogger, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)

	adminsService := admins.NewService(adminsRepo, rolesRepo, auditLogger, logger)
	adminsHandler := admins.NewHandler(logger, adminsService, rbacMiddleware)

	settingsRepo := settings.NewRepository(pool)
	settingsService := settings.NewService(settingsRepo, auditLogger, logger)
	settingsHandler := settings.NewHandler(logger, settingsService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, rbacMiddleware, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             tokens,
		AuthHandler:        authHandler,
		AdminsHandler:      adminsHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permsHandler,
		SettingsHandler:    settingsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
