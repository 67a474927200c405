package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

// TriggerGateway admits generation requests: it prices them, reserves credits and
// durably schedules a pipeline run. It never calls the model.
type TriggerGateway struct {
	documents ports.DocumentRepository
	ledger    *CreditLedger
	pricing   ports.CostEstimator
	runs      ports.RunStore
	queue     ports.RunQueue
}

func NewTriggerGateway(
	documents ports.DocumentRepository,
	ledger *CreditLedger,
	pricing ports.CostEstimator,
	runs ports.RunStore,
	queue ports.RunQueue,
) *TriggerGateway {
	return &TriggerGateway{
		documents: documents,
		ledger:    ledger,
		pricing:   pricing,
		runs:      runs,
		queue:     queue,
	}
}

// Quote previews the cost without mutating anything.
func (g *TriggerGateway) Quote(ctx context.Context, userID, documentID string, kind domain.ArtifactKind) (domain.Credits, error) {
	if !kind.Valid() {
		return 0, domain.WrapError(domain.ErrInvalidInput, "quote generation", fmt.Errorf("unknown kind %q", kind))
	}
	doc, err := g.loadOwnedDocument(ctx, userID, documentID)
	if err != nil {
		return 0, err
	}
	cost, err := g.pricing.EstimateCost(ctx, doc.Content, kind)
	if err != nil {
		return 0, fmt.Errorf("quote generation: %w", err)
	}
	return cost, nil
}

func (g *TriggerGateway) Trigger(ctx context.Context, req domain.GenerationRequest) (*domain.TriggerResult, error) {
	req, err := normalizeGenerationRequest(req)
	if err != nil {
		return nil, err
	}

	doc, err := g.loadOwnedDocument(ctx, req.UserID, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.StatusOf(req.Kind) == domain.StatusInProgress {
		return nil, domain.WrapError(
			domain.ErrGenerationInProgress,
			"trigger generation",
			fmt.Errorf("document=%s kind=%s", doc.ID, req.Kind),
		)
	}

	cost, err := g.pricing.EstimateCost(ctx, doc.Content, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("trigger generation: %w", err)
	}
	balance, err := g.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("trigger generation: %w", err)
	}
	if balance < cost {
		return nil, domain.WrapError(
			domain.ErrInsufficientCredits,
			"trigger generation",
			fmt.Errorf("balance=%s cost=%s", balance, cost),
		)
	}

	if err := g.ledger.Reserve(ctx, req.UserID, cost); err != nil {
		return nil, fmt.Errorf("trigger generation: %w", err)
	}

	txID, err := g.ledger.RecordTransaction(
		ctx,
		req.UserID,
		cost,
		domain.TransactionCreditUsage,
		domain.TransactionInProgress,
		transactionDescription(req.Kind, doc),
	)
	if err != nil {
		return nil, g.rollback(ctx, req, cost, "", domain.ErrEnqueueFailed, err)
	}

	run := &domain.PipelineRun{
		ID:            domain.NewRunID(),
		DocumentID:    req.DocumentID,
		UserID:        req.UserID,
		Kind:          req.Kind,
		TransactionID: txID,
		Cost:          cost,
		Config:        req.Config,
		State:         domain.RunPending,
	}
	if err := g.runs.CreateRun(ctx, run); err != nil {
		kind := domain.ErrEnqueueFailed
		if domain.IsKind(err, domain.ErrGenerationInProgress) {
			kind = domain.ErrGenerationInProgress
		}
		return nil, g.rollback(ctx, req, cost, txID, kind, err)
	}

	result := &domain.TriggerResult{RunID: run.ID, TransactionID: txID, Cost: cost}
	if err := g.queue.PublishRun(ctx, run.ID); err != nil {
		abandoned, abandonErr := g.runs.AbandonRun(ctx, run.ID, err.Error())
		if abandonErr == nil && !abandoned {
			// A recovery sweep already claimed the run; it owns the reservation now.
			slog.Warn("publish_failed_run_already_claimed", "run_id", run.ID, "error", err.Error())
			return result, nil
		}
		if abandonErr != nil {
			err = errors.Join(err, fmt.Errorf("abandon run: %w", abandonErr))
		}
		return nil, g.rollback(ctx, req, cost, txID, domain.ErrEnqueueFailed, err)
	}

	slog.Info("generation_scheduled",
		"run_id", run.ID,
		"document_id", run.DocumentID,
		"kind", string(run.Kind),
		"cost", cost.String(),
	)
	return result, nil
}

// rollback undoes a reservation that never became a scheduled run. Both actions are
// attempted even if one fails.
func (g *TriggerGateway) rollback(
	ctx context.Context,
	req domain.GenerationRequest,
	cost domain.Credits,
	txID string,
	kind error,
	cause error,
) error {
	errs := []error{cause}
	if err := g.ledger.Refund(ctx, req.UserID, cost); err != nil {
		slog.Error("trigger_refund_failed", "user_id", req.UserID, "amount", cost.String(), "error", err.Error())
		errs = append(errs, err)
	}
	if txID != "" {
		if err := g.ledger.UpdateTransactionStatus(ctx, txID, domain.TransactionFailed); err != nil {
			slog.Error("trigger_transaction_fail_failed", "transaction_id", txID, "error", err.Error())
			errs = append(errs, err)
		}
	}
	return domain.WrapError(kind, "trigger generation", errors.Join(errs...))
}

func (g *TriggerGateway) loadOwnedDocument(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	doc, err := g.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc.OwnerID != userID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "load document", fmt.Errorf("id=%s", documentID))
	}
	return doc, nil
}

func normalizeGenerationRequest(req domain.GenerationRequest) (domain.GenerationRequest, error) {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.UserID = strings.TrimSpace(req.UserID)
	switch {
	case req.DocumentID == "":
		return req, domain.WrapError(domain.ErrInvalidInput, "trigger generation", errors.New("document id is required"))
	case req.UserID == "":
		return req, domain.WrapError(domain.ErrInvalidInput, "trigger generation", errors.New("user id is required"))
	case !req.Kind.Valid():
		return req, domain.WrapError(domain.ErrInvalidInput, "trigger generation", fmt.Errorf("unknown kind %q", req.Kind))
	}
	req.Config = req.Config.WithDefaults()
	return req, nil
}

func transactionDescription(kind domain.ArtifactKind, doc *domain.Document) string {
	label := map[domain.ArtifactKind]string{
		domain.KindSummary:    "Summary",
		domain.KindMindMap:    "Mind map",
		domain.KindFlashCards: "Flash cards",
	}[kind]
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = doc.ID
	}
	return fmt.Sprintf("%s generation for %q", label, title)
}
