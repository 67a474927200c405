package domain

import (
	"fmt"
	"time"
)

type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email,omitempty"`
	Credits    Credits   `json:"credits"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type TransactionType string

const (
	TransactionPayment     TransactionType = "payment"
	TransactionCreditUsage TransactionType = "credit_usage"
)

func (t TransactionType) Valid() bool {
	return t == TransactionPayment || t == TransactionCreditUsage
}

type TransactionStatus string

const (
	TransactionInProgress TransactionStatus = "in_progress"
	TransactionSuccessful TransactionStatus = "successful"
	TransactionFailed     TransactionStatus = "failed"
)

func (s TransactionStatus) Terminal() bool {
	return s == TransactionSuccessful || s == TransactionFailed
}

// ValidateTransactionStatus allows in_progress to settle once; a terminal status may only be re-applied.
func ValidateTransactionStatus(from, to TransactionStatus) error {
	switch {
	case !to.Terminal():
		return WrapError(ErrInvalidTransition, "validate transaction status", fmt.Errorf("cannot move to %q", to))
	case from == TransactionInProgress, from == to:
		return nil
	}
	return WrapError(ErrInvalidTransition, "validate transaction status", fmt.Errorf("%s -> %s", from, to))
}

// CreditTransaction is an append-only ledger entry. Amount is always non-negative;
// Type gives the direction.
type CreditTransaction struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Amount      Credits           `json:"amount"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	Description string            `json:"description"`
	Reference   string            `json:"reference,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// PaymentVerification is what the payment provider confirmed for a reference.
type PaymentVerification struct {
	Reference   string `json:"reference"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type IdentityEventType string

const (
	IdentityUserCreated IdentityEventType = "user.created"
	IdentityUserUpdated IdentityEventType = "user.updated"
	IdentityUserDeleted IdentityEventType = "user.deleted"
)

// IdentityEvent is a user lifecycle event delivered by the identity provider.
type IdentityEvent struct {
	Type       IdentityEventType
	ExternalID string
	Email      string
}
