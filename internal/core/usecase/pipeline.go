package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

const compensationTimeout = 30 * time.Second

var errLeaseLost = errors.New("run lease lost")

type PipelineOptions struct {
	SummaryChunker      ports.Chunker
	ContextChunker      ports.Chunker
	MaxContextRunes     int
	MaxCondenseRounds   int
	CondenseConcurrency int
	FlashCardCount      int
	MaxRunAttempts      int
	HeartbeatStaleAfter time.Duration
	// HeartbeatInterval paces the lease renewal while a run executes.
	HeartbeatInterval time.Duration
}

func (o PipelineOptions) normalize() PipelineOptions {
	if o.MaxContextRunes <= 0 {
		o.MaxContextRunes = 12000
	}
	if o.MaxCondenseRounds <= 0 {
		o.MaxCondenseRounds = 3
	}
	if o.CondenseConcurrency <= 0 {
		o.CondenseConcurrency = 4
	}
	if o.FlashCardCount <= 0 {
		o.FlashCardCount = 20
	}
	if o.MaxRunAttempts <= 0 {
		o.MaxRunAttempts = 3
	}
	if o.HeartbeatStaleAfter <= 0 {
		o.HeartbeatStaleAfter = 2 * time.Minute
	}
	if o.HeartbeatInterval <= 0 || o.HeartbeatInterval > o.HeartbeatStaleAfter/3 {
		o.HeartbeatInterval = o.HeartbeatStaleAfter / 3
	}
	return o
}

// GenerationPipeline executes pipeline runs step by step. Completed steps are recorded in
// the step log with their output, so a replayed run resumes at the first missing step.
type GenerationPipeline struct {
	documents ports.DocumentRepository
	artifacts ports.ArtifactStore
	ledger    *CreditLedger
	runs      ports.RunStore
	stepLog   ports.StepLog
	generator ports.Generator
	retrier   ports.Retrier
	observer  ports.PipelineObserver
	opts      PipelineOptions
	now       func() time.Time
}

func NewGenerationPipeline(
	documents ports.DocumentRepository,
	artifacts ports.ArtifactStore,
	ledger *CreditLedger,
	runs ports.RunStore,
	stepLog ports.StepLog,
	generator ports.Generator,
	opts PipelineOptions,
) *GenerationPipeline {
	return &GenerationPipeline{
		documents: documents,
		artifacts: artifacts,
		ledger:    ledger,
		runs:      runs,
		stepLog:   stepLog,
		generator: generator,
		opts:      opts.normalize(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithRetrier sets the in-step retry policy. Without one every step runs once per attempt.
func (p *GenerationPipeline) WithRetrier(retrier ports.Retrier) *GenerationPipeline {
	p.retrier = retrier
	return p
}

func (p *GenerationPipeline) WithObserver(observer ports.PipelineObserver) *GenerationPipeline {
	p.observer = observer
	return p
}

type sourceOutput struct {
	Content   string `json:"content"`
	IsSummary bool   `json:"is_summary"`
}

type condenseOutput struct {
	Context string `json:"context"`
}

type generateOutput struct {
	Payload json.RawMessage `json:"payload"`
}

type runState struct {
	source  sourceOutput
	context string
	payload json.RawMessage
	done    map[domain.PipelineStep]bool
}

type pipelineStep struct {
	name domain.PipelineStep
	run  func(ctx context.Context, run *domain.PipelineRun, state *runState) (any, error)
}

func (p *GenerationPipeline) steps() []pipelineStep {
	return []pipelineStep{
		{name: domain.StepMarkInProgress, run: p.markInProgress},
		{name: domain.StepFetchSource, run: p.fetchSource},
		{name: domain.StepCondense, run: p.condense},
		{name: domain.StepGenerate, run: p.generate},
		{name: domain.StepPersist, run: p.persist},
		{name: domain.StepMarkCompleted, run: p.markCompleted},
		{name: domain.StepFinalizeTransaction, run: p.finalizeTransaction},
	}
}

// Execute claims the run and drives it to a terminal state. While it runs, the lease is
// renewed in the background; once another claim takes over, the remaining work is
// cancelled and Execute returns nil without touching the run again.
func (p *GenerationPipeline) Execute(ctx context.Context, runID string) error {
	run, claimed, err := p.runs.ClaimRun(ctx, runID, p.opts.HeartbeatStaleAfter)
	if err != nil {
		return fmt.Errorf("claim run: %w", err)
	}
	if !claimed {
		slog.Info("pipeline_run_skipped", "run_id", runID, "state", string(run.State))
		return nil
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopRenewal := p.renewLeaseEvery(leaseCtx, run, cancel)
	defer stopRenewal()

	state, err := p.restoreState(leaseCtx, run.ID)
	if err != nil {
		return p.handleFailure(ctx, run, err)
	}

	for _, step := range p.steps() {
		if state.done[step.name] {
			continue
		}
		err := p.executeStep(leaseCtx, run, state, step)
		if errors.Is(context.Cause(leaseCtx), errLeaseLost) {
			slog.Warn("pipeline_run_preempted", "run_id", run.ID, "step", string(step.name), "lease", run.Lease())
			return nil
		}
		if err != nil {
			return p.handleFailure(ctx, run, fmt.Errorf("step %s: %w", step.name, err))
		}
		if !p.renewLease(leaseCtx, run, cancel) {
			slog.Warn("pipeline_run_preempted", "run_id", run.ID, "step", string(step.name), "lease", run.Lease())
			return nil
		}
	}

	won, err := p.runs.FinishRun(ctx, run.ID, run.Lease(), domain.RunCompleted, "")
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if !won {
		slog.Warn("pipeline_run_lease_lost", "run_id", run.ID, "lease", run.Lease())
		return nil
	}
	slog.Info("pipeline_run_completed",
		"run_id", run.ID,
		"document_id", run.DocumentID,
		"kind", string(run.Kind),
		"attempts", run.Attempts,
	)
	return nil
}

// renewLeaseEvery heartbeats until ctx ends or the lease is lost. The returned func
// stops renewal and waits for the ticker goroutine to exit.
func (p *GenerationPipeline) renewLeaseEvery(ctx context.Context, run *domain.PipelineRun, lost context.CancelCauseFunc) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !p.renewLease(ctx, run, lost) {
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

// renewLease reports false and cancels the run context once the lease no longer holds
// the run. A failed heartbeat write keeps the lease; the next tick tries again.
func (p *GenerationPipeline) renewLease(ctx context.Context, run *domain.PipelineRun, lost context.CancelCauseFunc) bool {
	active, err := p.runs.Heartbeat(ctx, run.ID, run.Lease())
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("pipeline_heartbeat_failed", "run_id", run.ID, "error", err.Error())
		}
		return true
	}
	if !active {
		lost(errLeaseLost)
		return false
	}
	return true
}

func (p *GenerationPipeline) executeStep(ctx context.Context, run *domain.PipelineRun, state *runState, step pipelineStep) error {
	started := p.now()
	var output any
	call := func(ctx context.Context) error {
		out, err := step.run(ctx, run, state)
		if err != nil {
			return err
		}
		output = out
		return nil
	}

	var err error
	if p.retrier != nil {
		err = p.retrier.Do(ctx, "pipeline."+string(step.name), call)
	} else {
		err = call(ctx)
	}
	if p.observer != nil {
		p.observer.ObserveStep(run.Kind, step.name, p.now().Sub(started), err)
	}
	if err != nil {
		return err
	}

	record := domain.StepRecord{RunID: run.ID, Step: step.name}
	if output != nil {
		data, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("marshal step output: %w", err)
		}
		record.Output = data
	}
	if err := p.stepLog.RecordStep(ctx, record); err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	state.done[step.name] = true
	return nil
}

func (p *GenerationPipeline) restoreState(ctx context.Context, runID string) (*runState, error) {
	records, err := p.stepLog.CompletedSteps(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load step log: %w", err)
	}

	state := &runState{done: make(map[domain.PipelineStep]bool, len(records))}
	for _, record := range records {
		var decodeErr error
		switch record.Step {
		case domain.StepFetchSource:
			decodeErr = json.Unmarshal(record.Output, &state.source)
		case domain.StepCondense:
			var out condenseOutput
			decodeErr = json.Unmarshal(record.Output, &out)
			state.context = out.Context
		case domain.StepGenerate:
			var out generateOutput
			decodeErr = json.Unmarshal(record.Output, &out)
			state.payload = out.Payload
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("restore step %s: %w", record.Step, decodeErr)
		}
		state.done[record.Step] = true
	}
	if len(records) > 0 {
		slog.Info("pipeline_run_resumed", "run_id", runID, "completed_steps", len(records))
	}
	return state, nil
}

func (p *GenerationPipeline) markInProgress(ctx context.Context, run *domain.PipelineRun, _ *runState) (any, error) {
	if err := p.documents.TransitionStatus(ctx, run.DocumentID, run.Kind, domain.StatusInProgress); err != nil {
		return nil, fmt.Errorf("set status=in_progress: %w", err)
	}
	return nil, nil
}

// fetchSource prefers an existing summary for mind maps and flash cards.
func (p *GenerationPipeline) fetchSource(ctx context.Context, run *domain.PipelineRun, state *runState) (any, error) {
	doc, err := p.documents.GetByID(ctx, run.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}

	out := sourceOutput{Content: doc.Content}
	if run.Kind != domain.KindSummary {
		artifact, err := p.artifacts.Get(ctx, run.DocumentID, domain.KindSummary)
		switch {
		case err == nil:
			text, err := summaryText(artifact)
			if err != nil {
				return nil, err
			}
			if text != "" {
				out = sourceOutput{Content: text, IsSummary: true}
			}
		case !domain.IsKind(err, domain.ErrArtifactNotFound):
			return nil, fmt.Errorf("fetch summary artifact: %w", err)
		}
	}
	state.source = out
	return out, nil
}

// condense bounds the context size independent of the document length.
func (p *GenerationPipeline) condense(ctx context.Context, run *domain.PipelineRun, state *runState) (any, error) {
	if state.source.IsSummary {
		state.context = clipRunes(state.source.Content, p.opts.MaxContextRunes)
		return condenseOutput{Context: state.context}, nil
	}

	chunker := p.opts.ContextChunker
	if run.Kind == domain.KindSummary {
		chunker = p.opts.SummaryChunker
	}

	text := strings.TrimSpace(state.source.Content)
	for round := 1; utf8.RuneCountInString(text) > p.opts.MaxContextRunes && round <= p.opts.MaxCondenseRounds; round++ {
		chunks := chunker.Split(text)
		if len(chunks) == 0 {
			break
		}
		condensed, err := p.condenseChunks(ctx, run, chunks)
		if err != nil {
			return nil, fmt.Errorf("condense round %d: %w", round, err)
		}
		text = condensed
	}

	state.context = clipRunes(text, p.opts.MaxContextRunes)
	return condenseOutput{Context: state.context}, nil
}

func (p *GenerationPipeline) condenseChunks(ctx context.Context, run *domain.PipelineRun, chunks []string) (string, error) {
	results := make([]string, len(chunks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.opts.CondenseConcurrency)
	for i, chunk := range chunks {
		group.Go(func() error {
			prompt := buildCondensePrompt(run.Kind, run.Config, chunk, i+1, len(chunks))
			out, err := p.generator.Generate(groupCtx, prompt)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = strings.TrimSpace(out)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return "", err
	}
	return strings.Join(results, "\n\n"), nil
}

func (p *GenerationPipeline) generate(ctx context.Context, run *domain.PipelineRun, state *runState) (any, error) {
	prompt := buildGenerationPrompt(run.Kind, run.Config, state.context, p.opts.FlashCardCount)

	var raw string
	var err error
	if run.Kind == domain.KindSummary {
		raw, err = p.generator.Generate(ctx, prompt)
	} else {
		raw, err = p.generator.GenerateJSON(ctx, prompt)
	}
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}

	payload, err := parseArtifactPayload(run.Kind, raw)
	if err != nil {
		return nil, err
	}
	state.payload = payload
	return generateOutput{Payload: payload}, nil
}

func (p *GenerationPipeline) persist(ctx context.Context, run *domain.PipelineRun, state *runState) (any, error) {
	if len(state.payload) == 0 {
		return nil, domain.WrapError(domain.ErrSchemaValidation, "persist artifact", errors.New("no generated payload"))
	}
	artifact := &domain.Artifact{
		ID:         domain.NewArtifactID(),
		DocumentID: run.DocumentID,
		UserID:     run.UserID,
		Kind:       run.Kind,
		Payload:    state.payload,
	}
	if err := p.artifacts.Replace(ctx, artifact); err != nil {
		return nil, fmt.Errorf("replace artifact: %w", err)
	}
	return nil, nil
}

func (p *GenerationPipeline) markCompleted(ctx context.Context, run *domain.PipelineRun, _ *runState) (any, error) {
	if err := p.documents.TransitionStatus(ctx, run.DocumentID, run.Kind, domain.StatusCompleted); err != nil {
		return nil, fmt.Errorf("set status=completed: %w", err)
	}
	return nil, nil
}

func (p *GenerationPipeline) finalizeTransaction(ctx context.Context, run *domain.PipelineRun, _ *runState) (any, error) {
	if err := p.ledger.UpdateTransactionStatus(ctx, run.TransactionID, domain.TransactionSuccessful); err != nil {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}
	return nil, nil
}

// handleFailure releases the run for replay when the cause is transient and attempts
// remain; otherwise the run fails terminally. Both transitions are fenced by the lease.
func (p *GenerationPipeline) handleFailure(ctx context.Context, run *domain.PipelineRun, cause error) error {
	transient := domain.IsKind(cause, domain.ErrTemporary) ||
		errors.Is(cause, context.DeadlineExceeded) ||
		errors.Is(cause, context.Canceled)

	if transient && run.Attempts < p.opts.MaxRunAttempts {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		defer cancel()
		released, err := p.runs.ReleaseRun(releaseCtx, run.ID, run.Lease(), cause.Error())
		switch {
		case err != nil:
			slog.Error("pipeline_run_release_failed", "run_id", run.ID, "error", err.Error())
		case !released:
			slog.Warn("pipeline_run_lease_lost", "run_id", run.ID, "lease", run.Lease(), "error", cause.Error())
			return nil
		default:
			slog.Warn("pipeline_run_released",
				"run_id", run.ID,
				"attempt", run.Attempts,
				"max_attempts", p.opts.MaxRunAttempts,
				"error", cause.Error(),
			)
			return cause
		}
	}
	_, err := p.fail(ctx, run, run.Lease(), cause)
	return err
}

// Fail moves the run to failed and compensates, whichever claim holds it. Only the caller
// whose terminal transition wins compensates, so a run is refunded at most once.
func (p *GenerationPipeline) Fail(ctx context.Context, run *domain.PipelineRun, cause error) error {
	_, err := p.fail(ctx, run, domain.NoLease, cause)
	return err
}

func (p *GenerationPipeline) fail(ctx context.Context, run *domain.PipelineRun, lease int, cause error) (bool, error) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	won, err := p.runs.FinishRun(failCtx, run.ID, lease, domain.RunFailed, cause.Error())
	if err != nil {
		return false, errors.Join(cause, fmt.Errorf("finish run: %w", err))
	}
	if !won {
		slog.Warn("pipeline_run_already_terminal", "run_id", run.ID, "error", cause.Error())
		return false, cause
	}

	slog.Error("pipeline_run_failed",
		"run_id", run.ID,
		"document_id", run.DocumentID,
		"kind", string(run.Kind),
		"error", cause.Error(),
	)
	if err := p.compensate(failCtx, run, cause); err != nil {
		return true, errors.Join(cause, err)
	}
	return true, cause
}

// compensate refunds the reserved amount, marks the document kind failed and fails the
// transaction. Each action runs even if an earlier one failed.
func (p *GenerationPipeline) compensate(ctx context.Context, run *domain.PipelineRun, cause error) error {
	var errs []error

	if domain.IsKind(cause, domain.ErrInsufficientCredits) {
		slog.Warn("pipeline_refund_skipped", "run_id", run.ID, "reason", "insufficient credits")
	} else {
		errs = append(errs, p.compensateAction(run, "refund", func() error {
			return p.ledger.Refund(ctx, run.UserID, run.Cost)
		}))
	}

	if p.statusTouched(ctx, run) {
		errs = append(errs, p.compensateAction(run, "status_failed", func() error {
			return p.documents.TransitionStatus(ctx, run.DocumentID, run.Kind, domain.StatusFailed)
		}))
	}

	errs = append(errs, p.compensateAction(run, "transaction_failed", func() error {
		return p.ledger.UpdateTransactionStatus(ctx, run.TransactionID, domain.TransactionFailed)
	}))

	return errors.Join(errs...)
}

func (p *GenerationPipeline) compensateAction(run *domain.PipelineRun, action string, fn func() error) error {
	err := fn()
	if p.observer != nil {
		p.observer.ObserveCompensation(action, err)
	}
	if err != nil {
		slog.Error("pipeline_compensation_failed",
			"run_id", run.ID,
			"action", action,
			"error", err.Error(),
		)
		return fmt.Errorf("compensate %s: %w", action, err)
	}
	return nil
}

// statusTouched reports whether this run moved the document status. While a run is
// active it is the only writer of that status, so in_progress belongs to it.
func (p *GenerationPipeline) statusTouched(ctx context.Context, run *domain.PipelineRun) bool {
	records, err := p.stepLog.CompletedSteps(ctx, run.ID)
	if err != nil {
		return true
	}
	for _, record := range records {
		if record.Step == domain.StepMarkInProgress {
			return true
		}
	}
	doc, err := p.documents.GetByID(ctx, run.DocumentID)
	if err != nil {
		return false
	}
	return doc.StatusOf(run.Kind) == domain.StatusInProgress
}

func clipRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
