package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

const defaultTransactionListLimit = 50

// CreditLedger is the single entry point for balance mutations.
type CreditLedger struct {
	store ports.CreditStore
}

func NewCreditLedger(store ports.CreditStore) *CreditLedger {
	return &CreditLedger{store: store}
}

func (l *CreditLedger) Balance(ctx context.Context, userID string) (domain.Credits, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "get balance", errors.New("user id is required"))
	}
	balance, err := l.store.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// Reserve debits amount if the balance covers it. A zero amount is free.
func (l *CreditLedger) Reserve(ctx context.Context, userID string, amount domain.Credits) error {
	if err := validateAmount("reserve credits", amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if err := l.store.Reserve(ctx, userID, amount); err != nil {
		return fmt.Errorf("reserve credits: %w", err)
	}
	return nil
}

// Refund credits amount back. Callers guarantee at most one refund per reservation.
func (l *CreditLedger) Refund(ctx context.Context, userID string, amount domain.Credits) error {
	if err := validateAmount("refund credits", amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if err := l.store.Refund(ctx, userID, amount); err != nil {
		return fmt.Errorf("refund credits: %w", err)
	}
	return nil
}

// AddCredits tops up the balance and records a successful payment transaction atomically.
func (l *CreditLedger) AddCredits(ctx context.Context, userID string, amount domain.Credits, reference, description string) (*domain.CreditTransaction, error) {
	if err := validateAmount("add credits", amount); err != nil {
		return nil, err
	}
	tx := &domain.CreditTransaction{
		ID:          domain.NewTransactionID(),
		UserID:      userID,
		Amount:      amount,
		Type:        domain.TransactionPayment,
		Status:      domain.TransactionSuccessful,
		Description: description,
		Reference:   reference,
	}
	if err := l.store.ApplyPayment(ctx, tx); err != nil {
		return nil, fmt.Errorf("add credits: %w", err)
	}
	return tx, nil
}

func (l *CreditLedger) RecordTransaction(
	ctx context.Context,
	userID string,
	amount domain.Credits,
	txType domain.TransactionType,
	status domain.TransactionStatus,
	description string,
) (string, error) {
	if err := validateAmount("record transaction", amount); err != nil {
		return "", err
	}
	if !txType.Valid() {
		return "", domain.WrapError(domain.ErrInvalidInput, "record transaction", fmt.Errorf("unknown type %q", txType))
	}
	tx := &domain.CreditTransaction{
		ID:          domain.NewTransactionID(),
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Status:      status,
		Description: description,
	}
	if err := l.store.CreateTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("record transaction: %w", err)
	}
	return tx.ID, nil
}

// UpdateTransactionStatus settles an in-progress transaction. Re-applying the same
// terminal status is a no-op.
func (l *CreditLedger) UpdateTransactionStatus(ctx context.Context, transactionID string, status domain.TransactionStatus) error {
	if !status.Terminal() {
		return domain.WrapError(domain.ErrInvalidTransition, "update transaction status", fmt.Errorf("status %q is not terminal", status))
	}
	if err := l.store.SettleTransaction(ctx, transactionID, status); err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	return nil
}

func (l *CreditLedger) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultTransactionListLimit
	}
	txs, err := l.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func validateAmount(operation string, amount domain.Credits) error {
	if amount < 0 {
		return domain.WrapError(domain.ErrInvalidInput, operation, fmt.Errorf("negative amount %s", amount))
	}
	return nil
}
