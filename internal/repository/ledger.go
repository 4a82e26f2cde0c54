package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mealcart/backend/internal/domain"
	"github.com/shopspring/decimal"
)

const ledgerColumns = `
	id, session_id, user_id, user_email, amount::text, currency,
	payment_status, gateway_status, created_at, updated_at, completed_at`

// LedgerRepository stores checkout attempts in payment_transactions.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var amount string
	err := row.Scan(
		&e.ID, &e.SessionID, &e.UserID, &e.UserEmail, &amount, &e.Currency,
		&e.PaymentStatus, &e.GatewayStatus, &e.CreatedAt, &e.UpdatedAt, &e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return &e, nil
}

func (r *LedgerRepository) Create(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO payment_transactions
			(id, session_id, user_id, user_email, amount, currency, payment_status, gateway_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
	`
	_, err := Executor(ctx, r.db).Exec(ctx, query,
		e.ID, e.SessionID, e.UserID, e.UserEmail, e.Amount.String(), e.Currency,
		string(e.PaymentStatus), e.GatewayStatus, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.LedgerEntry, error) {
	row := Executor(ctx, r.db).QueryRow(ctx, `SELECT `+ledgerColumns+` FROM payment_transactions WHERE session_id = $1`, sessionID)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	return e, nil
}

func (r *LedgerRepository) ListByUser(ctx context.Context, userID string) ([]*domain.LedgerEntry, error) {
	rows, err := Executor(ctx, r.db).Query(ctx,
		`SELECT `+ledgerColumns+` FROM payment_transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.LedgerEntry{}
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkPaid is the one-way move to paid; completed_at is written only by this statement.
func (r *LedgerRepository) MarkPaid(ctx context.Context, sessionID, gatewayStatus string, at time.Time) (*domain.LedgerEntry, error) {
	query := `
		UPDATE payment_transactions
		SET payment_status = 'paid', gateway_status = $2, completed_at = $3, updated_at = $3
		WHERE session_id = $1 AND payment_status <> 'paid'
		RETURNING ` + ledgerColumns
	e, err := scanLedgerEntry(Executor(ctx, r.db).QueryRow(ctx, query, sessionID, gatewayStatus, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark ledger entry paid: %w", err)
	}
	return e, nil
}

func (r *LedgerRepository) MarkUnpaid(ctx context.Context, sessionID string, status domain.PaymentStatus, gatewayStatus string, at time.Time) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET payment_status = $2, gateway_status = $3, updated_at = $4
		WHERE session_id = $1 AND payment_status = 'pending'
	`
	tag, err := Executor(ctx, r.db).Exec(ctx, query, sessionID, string(status), gatewayStatus, at)
	if err != nil {
		return false, fmt.Errorf("failed to update ledger entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
