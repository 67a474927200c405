package domain

import (
	"encoding/json"
	"time"
)

// RunState is the lifecycle of a pipeline run.
type RunState string

const (
	RunPending    RunState = "pending"
	RunInProgress RunState = "in_progress"
	RunCompleted  RunState = "completed"
	RunFailed     RunState = "failed"
)

func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// PipelineStep names one durable step of a run, in execution order.
type PipelineStep string

const (
	StepMarkInProgress      PipelineStep = "mark_in_progress"
	StepFetchSource         PipelineStep = "fetch_source"
	StepCondense            PipelineStep = "condense"
	StepGenerate            PipelineStep = "generate"
	StepPersist             PipelineStep = "persist"
	StepMarkCompleted       PipelineStep = "mark_completed"
	StepFinalizeTransaction PipelineStep = "finalize_transaction"
)

// PipelineRun is one scheduled execution of the generation pipeline.
type PipelineRun struct {
	ID            string           `json:"id"`
	DocumentID    string           `json:"document_id"`
	UserID        string           `json:"user_id"`
	Kind          ArtifactKind     `json:"kind"`
	TransactionID string           `json:"transaction_id"`
	Cost          Credits          `json:"cost"`
	Config        GenerationConfig `json:"config"`
	State         RunState         `json:"state"`
	Attempts      int              `json:"attempts"`
	LastError     string           `json:"last_error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	HeartbeatAt   *time.Time       `json:"heartbeat_at,omitempty"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
}

// NoLease finishes a run whichever claim currently holds it.
const NoLease = 0

// Lease is the fencing token of the claim that produced this run. Every claim bumps
// Attempts, so a worker whose run was re-claimed holds an outdated lease.
func (r PipelineRun) Lease() int {
	return r.Attempts
}

// StepRecord marks a completed step; Output restores the step's result on replay.
type StepRecord struct {
	RunID       string          `json:"run_id"`
	Step        PipelineStep    `json:"step"`
	Output      json.RawMessage `json:"output,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// GenerationRequest asks for one artifact kind to be generated for a document.
type GenerationRequest struct {
	DocumentID string           `json:"document_id"`
	UserID     string           `json:"user_id"`
	Kind       ArtifactKind     `json:"kind"`
	Config     GenerationConfig `json:"config"`
}

// TriggerResult is returned once a run is durably scheduled.
type TriggerResult struct {
	RunID         string  `json:"run_id"`
	TransactionID string  `json:"transaction_id"`
	Cost          Credits `json:"cost"`
}
