package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

// PaymentUseCase turns a provider-verified payment into credits.
type PaymentUseCase struct {
	verifier ports.PaymentVerifier
	ledger   *CreditLedger
	rates    PricingRates
}

func NewPaymentUseCase(verifier ports.PaymentVerifier, ledger *CreditLedger, rates PricingRates) *PaymentUseCase {
	return &PaymentUseCase{
		verifier: verifier,
		ledger:   ledger,
		rates:    rates,
	}
}

func (uc *PaymentUseCase) VerifyPayment(ctx context.Context, userID, reference string) (*ports.TopUpResult, error) {
	userID = strings.TrimSpace(userID)
	reference = strings.TrimSpace(reference)
	if userID == "" || reference == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "verify payment", errors.New("user id and reference are required"))
	}

	verification, err := uc.verifier.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	if verification.AmountMinor <= 0 {
		return nil, domain.WrapError(domain.ErrPaymentNotVerified, "verify payment", fmt.Errorf("reference=%s amount=%d", reference, verification.AmountMinor))
	}

	credits := uc.rates.CreditsForPayment(verification.AmountMinor)
	description := fmt.Sprintf("Top-up of %s %s", formatMinor(verification.AmountMinor), verification.Currency)
	tx, err := uc.ledger.AddCredits(ctx, userID, credits, reference, strings.TrimSpace(description))
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	balance, err := uc.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	slog.Info("payment_applied",
		"user_id", userID,
		"reference", reference,
		"credits", credits.String(),
	)
	return &ports.TopUpResult{
		TransactionID: tx.ID,
		CreditsAdded:  credits,
		Balance:       balance,
	}, nil
}

func formatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
