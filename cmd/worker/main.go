package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/paperledger/paperledger/internal/app"
	"github.com/paperledger/paperledger/internal/archive"
	"github.com/paperledger/paperledger/internal/ledger"
	"github.com/paperledger/paperledger/internal/observability"
	"github.com/paperledger/paperledger/internal/pipeline"
	"github.com/paperledger/paperledger/internal/platform/db"
	"github.com/paperledger/paperledger/internal/shared"
	"github.com/paperledger/paperledger/internal/source"
	"github.com/paperledger/paperledger/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	pipelineMetrics := observability.NewPipelineMetrics(nil)

	sourceClient := source.NewClient(cfg.SourceURL, cfg.SourceToken)
	ledgerClient := ledger.NewClient(cfg.LedgerURL, cfg.LedgerToken)
	trail := archive.NewRepository(pool)
	guard := shared.NewIdempotencyStore(pool)

	engine := pipeline.NewEngine(sourceClient, ledgerClient, trail, guard, pipelineMetrics, logger, pipeline.EngineConfig{
		InvoiceTags:  cfg.InvoiceTags,
		ReceiptTags:  cfg.ReceiptTags,
		ProcessedTag: cfg.ProcessedTag,
		ErrorTag:     cfg.ErrorTag,
	})
	reconcileJob := pipeline.NewReconcileJob(engine, logger)

	cronTask, err := jobs.NewReconcileRunTask(jobs.ReconcileRunPayload{RequestedBy: "cron"})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcileRun, Handler: reconcileJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 * * * *", Task: cronTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
