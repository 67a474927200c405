package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

// LedgerRepository stores users and their credit transactions. Balance updates are
// single conditional statements, so concurrent reservations never overdraw.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) UpsertUser(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
INSERT INTO users (id, external_id, email, credits, created_at, updated_at)
VALUES ($1, $2, $3, 0, $4, $4)
ON CONFLICT (id) DO UPDATE
SET external_id = EXCLUDED.external_id, email = EXCLUDED.email, updated_at = EXCLUDED.updated_at
RETURNING id, external_id, email, credits, created_at, updated_at
`, user.ID, user.ExternalID, user.Email, now)

	stored, err := scanUser(row)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	*user = stored
	return nil
}

func (r *LedgerRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, external_id, email, credits, created_at, updated_at
FROM users
WHERE id = $1
`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrUserNotFound, "get user", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (r *LedgerRepository) DeleteUser(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (r *LedgerRepository) Balance(ctx context.Context, userID string) (domain.Credits, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.WrapError(domain.ErrUserNotFound, "get balance", fmt.Errorf("id=%s", userID))
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return domain.Credits(balance), nil
}

func (r *LedgerRepository) Reserve(ctx context.Context, userID string, amount domain.Credits) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE users
SET credits = credits - $2, updated_at = $3
WHERE id = $1 AND credits >= $2
`, userID, int64(amount), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reserve credits: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve credits rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	balance, err := r.Balance(ctx, userID)
	if err != nil {
		return err
	}
	return domain.WrapError(domain.ErrInsufficientCredits, "reserve credits", fmt.Errorf("balance=%s amount=%s", balance, amount))
}

func (r *LedgerRepository) Refund(ctx context.Context, userID string, amount domain.Credits) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE users
SET credits = credits + $2, updated_at = $3
WHERE id = $1
`, userID, int64(amount), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("refund credits: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("refund credits rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrUserNotFound, "refund credits", fmt.Errorf("id=%s", userID))
	}
	return nil
}

// ApplyPayment records the payment and credits the user atomically. The unique
// reference makes a replayed verification a no-op.
func (r *LedgerRepository) ApplyPayment(ctx context.Context, payment *domain.CreditTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payment tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
INSERT INTO credit_transactions (id, user_id, amount, type, status, description, reference, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
ON CONFLICT (reference) DO NOTHING
`, payment.ID, payment.UserID, int64(payment.Amount), string(payment.Type), string(payment.Status),
		payment.Description, nullString(payment.Reference), now)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert payment rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrPaymentAlreadyApplied, "apply payment", fmt.Errorf("reference=%s", payment.Reference))
	}

	result, err = tx.ExecContext(ctx, `
UPDATE users
SET credits = credits + $2, updated_at = $3
WHERE id = $1
`, payment.UserID, int64(payment.Amount), now)
	if err != nil {
		return fmt.Errorf("credit user: %w", err)
	}
	if rows, err = result.RowsAffected(); err != nil {
		return fmt.Errorf("credit user rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrUserNotFound, "apply payment", fmt.Errorf("id=%s", payment.UserID))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payment tx: %w", err)
	}
	payment.CreatedAt = now
	payment.UpdatedAt = now
	return nil
}

func (r *LedgerRepository) CreateTransaction(ctx context.Context, txn *domain.CreditTransaction) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO credit_transactions (id, user_id, amount, type, status, description, reference, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
`, txn.ID, txn.UserID, int64(txn.Amount), string(txn.Type), string(txn.Status),
		txn.Description, nullString(txn.Reference), now)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	txn.CreatedAt = now
	txn.UpdatedAt = now
	return nil
}

func (r *LedgerRepository) GetTransaction(ctx context.Context, id string) (*domain.CreditTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, amount, type, status, description, reference, created_at, updated_at
FROM credit_transactions
WHERE id = $1
`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTransactionNotFound, "get transaction", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &txn, nil
}

// SettleTransaction moves an in-progress transaction to a terminal status. Settled
// rows are immutable apart from re-applying the same status.
func (r *LedgerRepository) SettleTransaction(ctx context.Context, id string, status domain.TransactionStatus) error {
	if !status.Terminal() {
		return domain.ValidateTransactionStatus(domain.TransactionInProgress, status)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE credit_transactions
SET status = $2, updated_at = $3
WHERE id = $1 AND (status = $4 OR status = $2)
`, id, string(status), time.Now().UTC(), string(domain.TransactionInProgress))
	if err != nil {
		return fmt.Errorf("settle transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle transaction rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := r.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	return domain.ValidateTransactionStatus(current.Status, status)
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, amount, type, status, description, reference, created_at, updated_at
FROM credit_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CreditTransaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var user domain.User
	var credits int64
	if err := row.Scan(&user.ID, &user.ExternalID, &user.Email, &credits, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	user.Credits = domain.Credits(credits)
	return user, nil
}

func scanTransaction(row rowScanner) (domain.CreditTransaction, error) {
	var txn domain.CreditTransaction
	var amount int64
	var txType, status string
	var reference sql.NullString
	err := row.Scan(
		&txn.ID,
		&txn.UserID,
		&amount,
		&txType,
		&status,
		&txn.Description,
		&reference,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return domain.CreditTransaction{}, err
	}
	txn.Amount = domain.Credits(amount)
	txn.Type = domain.TransactionType(txType)
	txn.Status = domain.TransactionStatus(status)
	txn.Reference = reference.String
	return txn, nil
}
