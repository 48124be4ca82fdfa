// Package jobs wires background task processing for the reconciliation
// pipeline on top of Asynq.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileRun is the task type for one reconciliation cycle.
	TaskReconcileRun = "reconcile:run"
)

// ReconcileRunPayload describes one queued reconciliation run.
type ReconcileRunPayload struct {
	// RequestedBy records what triggered the run: "api", "cron" or "cli".
	RequestedBy string `json:"requested_by"`
}

// NewReconcileRunTask constructs an Asynq task for one cycle.
func NewReconcileRunTask(payload ReconcileRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileRun, data), nil
}
