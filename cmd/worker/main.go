package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/helmsman-hq/helmsman/internal/app"
	jobmetrics "github.com/helmsman-hq/helmsman/internal/jobs"
	"github.com/helmsman-hq/helmsman/internal/observability"
	"github.com/helmsman-hq/helmsman/internal/platform/cache"
	"github.com/helmsman-hq/helmsman/internal/platform/db"
	"github.com/helmsman-hq/helmsman/internal/rbac"
	"github.com/helmsman-hq/helmsman/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
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

	// The worker shares the Redis invalidation domain with the API, so a
	// prune flushes the sets the API instances are reading.
	var store rbac.Store
	switch cfg.PermCacheBackend {
	case "redis":
		store = rbac.NewRedisStore(redisClient)
	default:
		store = rbac.NewMemoryStore(cfg.PermCacheMaxEntries, metrics)
	}
	permCache := rbac.NewPermissionCache(store, logger, metrics)
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	pruneTask, err := jobs.NewPruneAssignmentsTask(jobs.PruneAssignmentsPayload{GracePeriod: 7 * 24 * time.Hour})
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}
	auditTask, err := jobs.NewPruneAuditLogsTask(jobs.PruneAuditLogsPayload{Retention: 90 * 24 * time.Hour})
	if err != nil {
		logger.Error("build audit prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPruneAssignments, Handler: jobs.PruneAssignmentsHandler(pool, permCache, jobMetrics, logger)},
			{Type: jobs.TaskPruneAuditLogs, Handler: jobs.PruneAuditLogsHandler(pool, jobMetrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 2 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * 0", Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
