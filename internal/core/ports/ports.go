package ports

import (
	"context"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

// RunStore is the durable schedule of pipeline runs.
type RunStore interface {
	// CreateRun fails with ErrGenerationInProgress when the (document, kind) pair already
	// has a pending or in-progress run.
	CreateRun(ctx context.Context, run *domain.PipelineRun) error
	GetRun(ctx context.Context, id string) (*domain.PipelineRun, error)
	// ClaimRun moves a pending run, or an in-progress run that has not heartbeated for
	// staleAfter, to in_progress and bumps attempts. Staleness is measured on the store's
	// clock, the same one that stamps heartbeats. ok is false when another worker owns it.
	// The claimed run's Lease fences the calls below against later claims.
	ClaimRun(ctx context.Context, id string, staleAfter time.Duration) (run *domain.PipelineRun, ok bool, err error)
	// Heartbeat refreshes the lease of an in-progress run. active is false once the run
	// left in_progress or was re-claimed under a newer lease.
	Heartbeat(ctx context.Context, id string, lease int) (active bool, err error)
	// ReleaseRun hands an in-progress run back to the schedule for a later attempt.
	// released is false when the lease no longer holds the run.
	ReleaseRun(ctx context.Context, id string, lease int, lastError string) (released bool, err error)
	// FinishRun sets a terminal state only if the run is not terminal yet and, unless
	// lease is domain.NoLease, only while that lease holds it.
	// won reports whether this call performed the transition.
	FinishRun(ctx context.Context, id string, lease int, state domain.RunState, lastError string) (won bool, err error)
	// AbandonRun fails a run that no worker has claimed yet. ok is false once a worker owns it.
	AbandonRun(ctx context.Context, id string, reason string) (ok bool, err error)
	// ListRecoverable returns pending runs untouched since idleBefore and in-progress runs
	// with a heartbeat older than staleBefore.
	ListRecoverable(ctx context.Context, idleBefore, staleBefore time.Time, limit int) ([]domain.PipelineRun, error)
	// ListOverdue returns non-terminal runs created before createdBefore.
	ListOverdue(ctx context.Context, createdBefore time.Time, limit int) ([]domain.PipelineRun, error)
}

// StepLog records completed pipeline steps per run.
type StepLog interface {
	CompletedSteps(ctx context.Context, runID string) ([]domain.StepRecord, error)
	// RecordStep is idempotent: a second record for the same step is ignored.
	RecordStep(ctx context.Context, record domain.StepRecord) error
}

// Retrier runs an operation with the configured retry and circuit-breaker policy.
type Retrier interface {
	Do(ctx context.Context, operation string, fn func(context.Context) error) error
}

// PipelineObserver receives step timings and compensation outcomes.
type PipelineObserver interface {
	ObserveStep(kind domain.ArtifactKind, step domain.PipelineStep, duration time.Duration, err error)
	ObserveCompensation(action string, err error)
}

// RunQueue dispatches run ids to workers.
type RunQueue interface {
	PublishRun(ctx context.Context, runID string) error
	SubscribeRuns(ctx context.Context, handler func(context.Context, string) error) error
}
