package jobs

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/helmsman-hq/helmsman/internal/jobs"
	"github.com/helmsman-hq/helmsman/internal/rbac"
)

const defaultGracePeriod = 7 * 24 * time.Hour

// PruneAssignmentsHandler deletes role_permissions rows whose permission has
// been soft-deleted past the grace period. Resolved sets already exclude
// those rows; this job only reclaims storage and keeps restores honest. The
// cache is flushed afterwards so no stale set outlives the prune.
func PruneAssignmentsHandler(pool *pgxpool.Pool, cache *rbac.PermissionCache, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PruneAssignmentsPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		grace := payload.GracePeriod
		if grace <= 0 {
			grace = defaultGracePeriod
		}

		tracker := metrics.Track("prune_assignments")
		tag, err := pool.Exec(ctx, `
			DELETE FROM role_permissions rp
			USING permissions p
			WHERE p.id = rp.permission_id
			  AND p.deleted_at IS NOT NULL
			  AND p.deleted_at < now() - make_interval(secs => $1)`,
			grace.Seconds())
		if err != nil {
			return tracker.End(err)
		}
		if tag.RowsAffected() > 0 {
			cache.InvalidateAll(ctx)
			metrics.AddPruned("role_permissions", tag.RowsAffected())
		}
		if logger != nil {
			logger.Info("pruned stale assignments",
				slog.Int64("rows", tag.RowsAffected()),
				slog.Duration("grace_period", grace))
		}
		return tracker.End(nil)
	}
}

// PruneAuditLogsHandler trims audit records older than the retention window.
func PruneAuditLogsHandler(pool *pgxpool.Pool, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload PruneAuditLogsPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			return asynq.SkipRetry
		}

		tracker := metrics.Track("prune_audit_logs")
		tag, err := pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < now() - make_interval(secs => $1)`,
			payload.Retention.Seconds())
		if err != nil {
			return tracker.End(err)
		}
		metrics.AddPruned("audit_logs", tag.RowsAffected())
		if logger != nil {
			logger.Info("pruned audit logs", slog.Int64("rows", tag.RowsAffected()))
		}
		return tracker.End(nil)
	}
}
