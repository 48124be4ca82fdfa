package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/paperledger/paperledger/jobs"
)

// ReconcileJob processes queued reconciliation runs.
type ReconcileJob struct {
	engine *Engine
	logger *slog.Logger
}

// NewReconcileJob constructs a job handler.
func NewReconcileJob(engine *Engine, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{engine: engine, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract. Per-document failures
// are already settled inside the cycle; only a cycle-fatal error is
// returned for retry.
func (j *ReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.ReconcileRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	result, err := j.engine.ProcessOnce(ctx)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("queued reconciliation run",
				slog.String("requested_by", payload.RequestedBy),
				slog.Any("error", err),
			)
		}
		return err
	}
	if j.logger != nil {
		j.logger.Info("queued reconciliation run finished",
			slog.String("run_id", result.RunID),
			slog.String("requested_by", payload.RequestedBy),
			slog.Int("processed", result.Processed()),
			slog.Int("errors", result.Errored()),
		)
	}
	return nil
}
