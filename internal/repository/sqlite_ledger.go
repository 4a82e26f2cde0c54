package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mealcart/backend/internal/domain"
	"github.com/shopspring/decimal"
)

const sqliteLedgerColumns = `
	id, session_id, user_id, user_email, amount, currency,
	payment_status, gateway_status, created_at, updated_at, completed_at`

// SQLiteLedgerRepository is the SQLite counterpart of LedgerRepository.
type SQLiteLedgerRepository struct {
	db *sql.DB
}

func NewSQLiteLedgerRepository(db *sql.DB) *SQLiteLedgerRepository {
	return &SQLiteLedgerRepository{db: db}
}

func scanSQLiteLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		e                    domain.LedgerEntry
		amount, status       string
		createdAt, updatedAt string
		completedAt          sql.NullString
	)
	err := row.Scan(
		&e.ID, &e.SessionID, &e.UserID, &e.UserEmail, &amount, &e.Currency,
		&status, &e.GatewayStatus, &createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if e.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	e.PaymentStatus = domain.PaymentStatus(status)
	return &e, nil
}

func (r *SQLiteLedgerRepository) Create(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO payment_transactions
			(id, session_id, user_id, user_email, amount, currency, payment_status, gateway_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := sqliteExec(ctx, r.db).ExecContext(ctx, query,
		e.ID, e.SessionID, e.UserID, e.UserEmail, e.Amount.StringFixed(2), e.Currency,
		string(e.PaymentStatus), e.GatewayStatus, formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

func (r *SQLiteLedgerRepository) FindBySessionID(ctx context.Context, sessionID string) (*domain.LedgerEntry, error) {
	row := sqliteExec(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+sqliteLedgerColumns+` FROM payment_transactions WHERE session_id = ?`, sessionID)
	e, err := scanSQLiteLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteLedgerRepository) ListByUser(ctx context.Context, userID string) ([]*domain.LedgerEntry, error) {
	rows, err := sqliteExec(ctx, r.db).QueryContext(ctx,
		`SELECT `+sqliteLedgerColumns+` FROM payment_transactions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.LedgerEntry{}
	for rows.Next() {
		e, err := scanSQLiteLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLiteLedgerRepository) MarkPaid(ctx context.Context, sessionID, gatewayStatus string, at time.Time) (*domain.LedgerEntry, error) {
	query := `
		UPDATE payment_transactions
		SET payment_status = 'paid', gateway_status = ?2, completed_at = ?3, updated_at = ?3
		WHERE session_id = ?1 AND payment_status <> 'paid'
		RETURNING ` + sqliteLedgerColumns
	e, err := scanSQLiteLedgerEntry(sqliteExec(ctx, r.db).QueryRowContext(ctx, query, sessionID, gatewayStatus, formatTime(at)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to mark ledger entry paid: %w", err)
	}
	return e, nil
}

func (r *SQLiteLedgerRepository) MarkUnpaid(ctx context.Context, sessionID string, status domain.PaymentStatus, gatewayStatus string, at time.Time) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET payment_status = ?2, gateway_status = ?3, updated_at = ?4
		WHERE session_id = ?1 AND payment_status = 'pending'
	`
	res, err := sqliteExec(ctx, r.db).ExecContext(ctx, query, sessionID, string(status), gatewayStatus, formatTime(at))
	if err != nil {
		return false, fmt.Errorf("failed to update ledger entry: %w", err)
	}
	return affectedOne(res)
}
