package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

var fixedTime = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestReserveReportsInsufficientCredits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectExec("UPDATE users SET credits = credits -").
		WithArgs("user-1", int64(5000), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT credits FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"credits"}).AddRow(int64(3000)))

	err := repo.Reserve(context.Background(), "user-1", 5000)
	if !domain.IsKind(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
}

func TestReserveUnknownUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT credits FROM users").WillReturnError(sql.ErrNoRows)

	err := repo.Reserve(context.Background(), "ghost", 100)
	if !domain.IsKind(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestApplyPaymentCreditsUserOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)
	payment := &domain.CreditTransaction{
		ID:        "txn_1",
		UserID:    "user-1",
		Amount:    7500,
		Type:      domain.TransactionPayment,
		Status:    domain.TransactionSuccessful,
		Reference: "ref-1",
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO credit_transactions").
		WithArgs("txn_1", "user-1", int64(7500), "payment", "successful", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET credits = credits \\+").
		WithArgs("user-1", int64(7500), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ApplyPayment(context.Background(), payment); err != nil {
		t.Fatalf("ApplyPayment() error = %v", err)
	}
}

func TestApplyPaymentDuplicateReference(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("ON CONFLICT \\(reference\\) DO NOTHING").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyPayment(context.Background(), &domain.CreditTransaction{ID: "txn_2", UserID: "user-1", Amount: 100, Reference: "ref-1"})
	if !domain.IsKind(err, domain.ErrPaymentAlreadyApplied) {
		t.Fatalf("expected ErrPaymentAlreadyApplied, got %v", err)
	}
}

func TestSettleTransactionKeepsSettledRowsImmutable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	mock.ExpectExec("UPDATE credit_transactions").
		WithArgs("txn_1", "failed", sqlmock.AnyArg(), "in_progress").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM credit_transactions").
		WithArgs("txn_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "amount", "type", "status", "description", "reference", "created_at", "updated_at",
		}).AddRow("txn_1", "user-1", int64(4000), "credit_usage", "successful", "Summary", nil, fixedTime, fixedTime))

	err := repo.SettleTransaction(context.Background(), "txn_1", domain.TransactionFailed)
	if !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestListTransactionsScansRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "amount", "type", "status", "description", "reference", "created_at", "updated_at",
	}).
		AddRow("txn_2", "user-1", int64(7500), "payment", "successful", "Top-up", "ref-9", fixedTime, fixedTime).
		AddRow("txn_1", "user-1", int64(4000), "credit_usage", "in_progress", "Summary", nil, fixedTime, fixedTime)
	mock.ExpectQuery("FROM credit_transactions").WithArgs("user-1", 50).WillReturnRows(rows)

	txs, err := repo.ListTransactions(context.Background(), "user-1", 50)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != 2 || txs[0].Reference != "ref-9" || txs[1].Amount.String() != "40.00" {
		t.Fatalf("unexpected transactions %+v", txs)
	}
}
