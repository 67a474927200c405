package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

type WatchdogOptions struct {
	MaxRunDuration      time.Duration
	RetryDelay          time.Duration
	HeartbeatStaleAfter time.Duration
	BatchSize           int
}

func (o WatchdogOptions) normalize() WatchdogOptions {
	if o.MaxRunDuration <= 0 {
		o.MaxRunDuration = 15 * time.Minute
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 30 * time.Second
	}
	if o.HeartbeatStaleAfter <= 0 {
		o.HeartbeatStaleAfter = 2 * time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	return o
}

// RunWatchdog keeps the durable schedule moving: it re-dispatches runs whose queue
// message was lost or whose worker died, and fails runs that exceed the max duration.
type RunWatchdog struct {
	runs     ports.RunStore
	queue    ports.RunQueue
	pipeline *GenerationPipeline
	opts     WatchdogOptions
	onSweep  func(action string, n int)
	now      func() time.Time
}

func NewRunWatchdog(runs ports.RunStore, queue ports.RunQueue, pipeline *GenerationPipeline, opts WatchdogOptions) *RunWatchdog {
	return &RunWatchdog{
		runs:     runs,
		queue:    queue,
		pipeline: pipeline,
		opts:     opts.normalize(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithSweepObserver reports how many runs each sweep failed and re-dispatched.
func (w *RunWatchdog) WithSweepObserver(observe func(action string, n int)) *RunWatchdog {
	w.onSweep = observe
	return w
}

// Sweep runs one pass: overdue runs are failed first so they are not re-dispatched.
func (w *RunWatchdog) Sweep(ctx context.Context) error {
	failed, failErr := w.FailOverdue(ctx)
	redispatched, dispatchErr := w.Redispatch(ctx)
	if failed > 0 || redispatched > 0 {
		slog.Info("watchdog_sweep", "failed", failed, "redispatched", redispatched)
	}
	if w.onSweep != nil {
		w.onSweep("failed_overdue", failed)
		w.onSweep("redispatched", redispatched)
	}
	return errors.Join(failErr, dispatchErr)
}

func (w *RunWatchdog) FailOverdue(ctx context.Context) (int, error) {
	now := w.now()
	runs, err := w.runs.ListOverdue(ctx, now.Add(-w.opts.MaxRunDuration), w.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list overdue runs: %w", err)
	}

	failed := 0
	for i := range runs {
		run := runs[i]
		cause := domain.WrapError(
			domain.ErrRunTimedOut,
			"watchdog",
			fmt.Errorf("run=%s age=%s", run.ID, now.Sub(run.CreatedAt).Round(time.Second)),
		)
		won, _ := w.pipeline.fail(ctx, &run, domain.NoLease, cause)
		if won {
			failed++
		}
	}
	return failed, nil
}

func (w *RunWatchdog) Redispatch(ctx context.Context) (int, error) {
	now := w.now()
	runs, err := w.runs.ListRecoverable(
		ctx,
		now.Add(-w.opts.RetryDelay),
		now.Add(-w.opts.HeartbeatStaleAfter),
		w.opts.BatchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("list recoverable runs: %w", err)
	}

	var errs []error
	dispatched := 0
	for _, run := range runs {
		if err := w.queue.PublishRun(ctx, run.ID); err != nil {
			slog.Warn("watchdog_redispatch_failed", "run_id", run.ID, "error", err.Error())
			errs = append(errs, err)
			continue
		}
		dispatched++
	}
	return dispatched, errors.Join(errs...)
}

// Run sweeps every interval until ctx is cancelled.
func (w *RunWatchdog) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("watchdog_sweep_failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
