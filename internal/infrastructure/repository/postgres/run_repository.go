package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

const runColumns = `id, document_id, user_id, kind, transaction_id, cost, config, state, attempts, last_error,
	created_at, updated_at, started_at, heartbeat_at, finished_at`

// RunRepository persists pipeline runs and their step log. Every state change is a
// conditional update, so the worker, the watchdog and the gateway can race safely.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	config, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}
	if run.State == "" {
		run.State = domain.RunPending
	}
	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
INSERT INTO pipeline_runs (id, document_id, user_id, kind, transaction_id, cost, config, state, attempts, last_error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,'',$9,$9)
`, run.ID, run.DocumentID, run.UserID, string(run.Kind), run.TransactionID, int64(run.Cost), config, string(run.State), now)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrGenerationInProgress, "create run", fmt.Errorf("document=%s kind=%s", run.DocumentID, run.Kind))
		}
		return fmt.Errorf("insert run: %w", err)
	}
	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "get run", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// ClaimRun takes a pending run, or an in-progress run whose worker stopped
// heartbeating staleAfter ago. Heartbeats and staleness both use the database clock.
func (r *RunRepository) ClaimRun(ctx context.Context, id string, staleAfter time.Duration) (*domain.PipelineRun, bool, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
UPDATE pipeline_runs
SET state = 'in_progress', attempts = attempts + 1, heartbeat_at = now(),
	started_at = COALESCE(started_at, $3), updated_at = $3
WHERE id = $1
	AND (state = 'pending' OR (state = 'in_progress' AND (heartbeat_at IS NULL OR heartbeat_at < now() - $2 * interval '1 millisecond')))
RETURNING `+runColumns, id, staleAfter.Milliseconds(), now)

	run, err := scanRun(row)
	if err == nil {
		return &run, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("claim run: %w", err)
	}

	current, err := r.GetRun(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// Heartbeat only touches the run while lease is the latest claim.
func (r *RunRepository) Heartbeat(ctx context.Context, id string, lease int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET heartbeat_at = now()
WHERE id = $1 AND state = 'in_progress' AND attempts = $2
`, id, lease)
	if err != nil {
		return false, fmt.Errorf("heartbeat run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat run rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *RunRepository) ReleaseRun(ctx context.Context, id string, lease int, lastError string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET state = 'pending', last_error = $2, updated_at = $3
WHERE id = $1 AND state = 'in_progress' AND attempts = $4
`, id, lastError, time.Now().UTC(), lease)
	if err != nil {
		return false, fmt.Errorf("release run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release run rows affected: %w", err)
	}
	return rows > 0, nil
}

// FinishRun reports whether this call made the terminal transition. A fenced call
// requires the run to be in progress under the given lease.
func (r *RunRepository) FinishRun(ctx context.Context, id string, lease int, state domain.RunState, lastError string) (bool, error) {
	if !state.Terminal() {
		return false, domain.WrapError(domain.ErrInvalidTransition, "finish run", fmt.Errorf("state %q is not terminal", state))
	}
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET state = $2, last_error = $3, finished_at = $4, updated_at = $4
WHERE id = $1 AND state IN ('pending', 'in_progress')
	AND ($5 = 0 OR (state = 'in_progress' AND attempts = $5))
`, id, string(state), lastError, now, lease)
	if err != nil {
		return false, fmt.Errorf("finish run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish run rows affected: %w", err)
	}
	return rows > 0, nil
}

// AbandonRun fails a run that no worker has claimed yet.
func (r *RunRepository) AbandonRun(ctx context.Context, id string, reason string) (bool, error) {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET state = 'failed', last_error = $2, finished_at = $3, updated_at = $3
WHERE id = $1 AND state = 'pending'
`, id, reason, now)
	if err != nil {
		return false, fmt.Errorf("abandon run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("abandon run rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *RunRepository) ListRecoverable(ctx context.Context, idleBefore, staleBefore time.Time, limit int) ([]domain.PipelineRun, error) {
	return r.listRuns(ctx, `
SELECT `+runColumns+`
FROM pipeline_runs
WHERE (state = 'pending' AND updated_at < $1)
	OR (state = 'in_progress' AND heartbeat_at < $2)
ORDER BY created_at
LIMIT $3
`, idleBefore, staleBefore, limit)
}

func (r *RunRepository) ListOverdue(ctx context.Context, createdBefore time.Time, limit int) ([]domain.PipelineRun, error) {
	return r.listRuns(ctx, `
SELECT `+runColumns+`
FROM pipeline_runs
WHERE state IN ('pending', 'in_progress') AND created_at < $1
ORDER BY created_at
LIMIT $2
`, createdBefore, limit)
}

func (r *RunRepository) listRuns(ctx context.Context, query string, args ...any) ([]domain.PipelineRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PipelineRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func (r *RunRepository) CompletedSteps(ctx context.Context, runID string) ([]domain.StepRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, step, output, completed_at
FROM pipeline_steps
WHERE run_id = $1
ORDER BY completed_at
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StepRecord, 0)
	for rows.Next() {
		var record domain.StepRecord
		var step string
		var output []byte
		if err := rows.Scan(&record.RunID, &step, &output, &record.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		record.Step = domain.PipelineStep(step)
		record.Output = output
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return out, nil
}

// RecordStep keeps the first record for a step; replays do not overwrite it.
func (r *RunRepository) RecordStep(ctx context.Context, record domain.StepRecord) error {
	completedAt := record.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	var output any
	if len(record.Output) > 0 {
		output = []byte(record.Output)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pipeline_steps (run_id, step, output, completed_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (run_id, step) DO NOTHING
`, record.RunID, string(record.Step), output, completedAt)
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

func scanRun(row rowScanner) (domain.PipelineRun, error) {
	var run domain.PipelineRun
	var kind, state string
	var cost int64
	var config []byte
	var startedAt, heartbeatAt, finishedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.DocumentID,
		&run.UserID,
		&kind,
		&run.TransactionID,
		&cost,
		&config,
		&state,
		&run.Attempts,
		&run.LastError,
		&run.CreatedAt,
		&run.UpdatedAt,
		&startedAt,
		&heartbeatAt,
		&finishedAt,
	)
	if err != nil {
		return domain.PipelineRun{}, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &run.Config); err != nil {
			return domain.PipelineRun{}, fmt.Errorf("unmarshal run config: %w", err)
		}
	}
	run.Kind = domain.ArtifactKind(kind)
	run.State = domain.RunState(state)
	run.Cost = domain.Credits(cost)
	run.StartedAt = nullTime(startedAt)
	run.HeartbeatAt = nullTime(heartbeatAt)
	run.FinishedAt = nullTime(finishedAt)
	return run, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
