package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/paperledger/paperledger/internal/app"
	"github.com/paperledger/paperledger/internal/archive"
	"github.com/paperledger/paperledger/internal/ledger"
	"github.com/paperledger/paperledger/internal/observability"
	"github.com/paperledger/paperledger/internal/pipeline"
	pipelinehttp "github.com/paperledger/paperledger/internal/pipeline/http"
	"github.com/paperledger/paperledger/internal/platform/cache"
	"github.com/paperledger/paperledger/internal/platform/db"
	"github.com/paperledger/paperledger/internal/shared"
	"github.com/paperledger/paperledger/internal/source"
	"github.com/paperledger/paperledger/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
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
	pipelineMetrics := observability.NewPipelineMetrics(metrics.Registerer())

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
	poller := pipeline.NewPoller(engine, logger, cfg.PollInterval, cfg.PollBackoff)

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	pipelineHandler := pipelinehttp.NewHandler(logger, engine, poller, trail, queueClient)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		PipelineHandler: pipelineHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if cfg.PollAutostart {
		group.Go(func() error {
			return poller.Run(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
