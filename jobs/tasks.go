package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskPruneAssignments removes role assignments that reference
	// soft-deleted permissions.
	TaskPruneAssignments = "rbac:prune_assignments"

	// TaskPruneAuditLogs trims the audit trail to its retention window.
	TaskPruneAuditLogs = "audit:prune"
)

// PruneAssignmentsPayload bounds the prune to permissions soft-deleted at
// least GracePeriod ago, so an accidental soft delete can still be restored
// with its assignments intact.
type PruneAssignmentsPayload struct {
	GracePeriod time.Duration `json:"grace_period"`
}

// NewPruneAssignmentsTask constructs the prune task.
func NewPruneAssignmentsTask(payload PruneAssignmentsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPruneAssignments, data), nil
}

// PruneAuditLogsPayload sets the retention window for audit records.
type PruneAuditLogsPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewPruneAuditLogsTask constructs the audit prune task.
func NewPruneAuditLogsTask(payload PruneAuditLogsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPruneAuditLogs, data), nil
}
