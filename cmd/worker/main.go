package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/studyforge/internal/bootstrap"
	"github.com/kirillkom/studyforge/internal/config"
	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/observability/logging"
	"github.com/kirillkom/studyforge/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Install("worker", "info")
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logging.Install("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app.Resilience.WithRetryObserver(workerMetrics.ObserveRetry)
	app.Pipeline.WithObserver(workerMetrics)
	app.Watchdog.WithSweepObserver(workerMetrics.ObserveSweep)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := app.Watchdog.Run(ctx, cfg.RecoverEvery); err != nil {
			slog.Error("watchdog_stopped", "error", err)
		}
	}()

	slog.Info("worker_starting", "queue_driver", cfg.QueueDriver, "concurrency", cfg.WorkerConcurrency, "run_timeout", cfg.WorkerRunTimeout.String())
	err = app.Queue.SubscribeRuns(ctx, func(handlerCtx context.Context, runID string) error {
		return handleRun(handlerCtx, app, cfg, workerMetrics, runID)
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func handleRun(ctx context.Context, app *bootstrap.App, cfg config.Config, m *metrics.WorkerMetrics, runID string) error {
	var kind domain.ArtifactKind
	if run, err := app.Runs.GetRun(ctx, runID); err == nil {
		kind = run.Kind
		if run.Attempts == 0 {
			m.ObserveQueueLag(time.Since(run.CreatedAt))
		}
	}

	m.StartRun()
	started := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, cfg.WorkerRunTimeout)
	defer cancel()

	err := app.Pipeline.Execute(runCtx, runID)
	outcome := "ok"
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrTemporary):
		outcome = "released"
	default:
		outcome = "failed"
	}
	m.FinishRun(kind, outcome, time.Since(started))
	return err
}
