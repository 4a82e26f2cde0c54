package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mealcart/backend/internal/domain"
)

const sqliteUserColumns = `
	id, email, password, role, created_at, updated_at,
	subscription_status, trial_end_date, subscription_start_date, subscription_end_date,
	next_billing_date, cancelled_at, COALESCE(gateway_customer_id, ''),
	COALESCE(gateway_subscription_id, ''), payment_failure_count, COALESCE(last_invoice_id, '')`

const sqliteSubscriptionGuard = `(?2 = '' OR gateway_subscription_id IS NULL OR gateway_subscription_id = ?2)`

// SQLiteUserRepository implements the account and subscription stores with SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (*domain.User, error) {
	var (
		u                                            domain.User
		createdAt, updatedAt, status                 string
		trialEnd, start, end, nextBilling, cancelled sql.NullString
	)
	s := &u.Subscription
	err := row.Scan(
		&u.ID, &u.Email, &u.Password, &u.Role, &createdAt, &updatedAt,
		&status, &trialEnd, &start, &end,
		&nextBilling, &cancelled, &s.GatewayCustomerID,
		&s.GatewaySubscriptionID, &s.PaymentFailureCount, &s.LastInvoiceID,
	)
	if err != nil {
		return nil, err
	}

	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&s.TrialEndDate, trialEnd},
		{&s.SubscriptionStartDate, start},
		{&s.SubscriptionEndDate, end},
		{&s.NextBillingDate, nextBilling},
		{&s.CancelledAt, cancelled},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return nil, err
		}
	}
	s.Status = domain.SubscriptionStatus(status)
	s.UserID = u.ID
	s.UpdatedAt = u.UpdatedAt
	return &u, nil
}

func (r *SQLiteUserRepository) findOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	row := sqliteExec(ctx, r.db).QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE `+where, arg)
	u, err := scanSQLiteUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

func (r *SQLiteUserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, password, role, subscription_status, trial_end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := sqliteExec(ctx, r.db).ExecContext(ctx, query,
		u.ID, u.Email, u.Password, u.Role,
		string(u.Subscription.Status), formatNullTime(u.Subscription.TrialEndDate),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, `email = ?`, email)
}

func (r *SQLiteUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, `id = ?`, id)
}

func (r *SQLiteUserRepository) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := sqliteExec(ctx, r.db).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

func (r *SQLiteUserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	rows, err := sqliteExec(ctx, r.db).QueryContext(ctx, `SELECT `+sqliteUserColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLiteUserRepository) FindRecord(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	u, err := r.findOne(ctx, `id = ?`, userID)
	if err != nil || u == nil {
		return nil, err
	}
	return &u.Subscription, nil
}

func (r *SQLiteUserRepository) FindRecordByCustomerID(ctx context.Context, customerID string) (*domain.SubscriptionRecord, error) {
	u, err := r.findOne(ctx, `gateway_customer_id = ?`, customerID)
	if err != nil || u == nil {
		return nil, err
	}
	return &u.Subscription, nil
}

func (r *SQLiteUserRepository) Activate(ctx context.Context, a domain.Activation) (bool, error) {
	query := `
		UPDATE users SET
			subscription_status = 'active',
			subscription_start_date = ?2,
			subscription_end_date = ?3,
			next_billing_date = ?3,
			payment_failure_count = 0,
			cancelled_at = NULL,
			last_invoice_id = NULL,
			gateway_customer_id = COALESCE(?4, gateway_customer_id),
			gateway_subscription_id = COALESCE(?5, gateway_subscription_id),
			updated_at = ?6
		WHERE id = ?1
	`
	res, err := sqliteExec(ctx, r.db).ExecContext(ctx, query,
		a.UserID, formatTime(a.Start), formatTime(a.End),
		nullIfEmpty(a.GatewayCustomerID), nullIfEmpty(a.GatewaySubscriptionID), formatTime(a.At))
	if err != nil {
		return false, fmt.Errorf("failed to activate subscription: %w", err)
	}
	return affectedOne(res)
}

func (r *SQLiteUserRepository) Renew(ctx context.Context, rn domain.Renewal) (bool, error) {
	query := `
		UPDATE users SET
			subscription_status = 'active',
			subscription_end_date = ?2,
			next_billing_date = ?2,
			payment_failure_count = 0,
			cancelled_at = NULL,
			last_invoice_id = ?3,
			updated_at = ?4
		WHERE id = ?1
		  AND subscription_end_date IS ?5
		  AND subscription_status = ?6
		  AND last_invoice_id IS NOT ?3
	`
	res, err := sqliteExec(ctx, r.db).ExecContext(ctx, query,
		rn.UserID, formatTime(rn.NewEnd), rn.InvoiceID, formatTime(rn.At),
		formatNullTime(rn.PreviousEnd), string(rn.PreviousState))
	if err != nil {
		return false, fmt.Errorf("failed to renew subscription: %w", err)
	}
	return affectedOne(res)
}

func (r *SQLiteUserRepository) RecordPaymentFailure(ctx context.Context, customerID string, threshold int, at time.Time) (*domain.SubscriptionRecord, error) {
	query := `
		UPDATE users SET
			payment_failure_count = payment_failure_count + 1,
			subscription_status = CASE WHEN payment_failure_count + 1 >= ?2 THEN 'expired' ELSE subscription_status END,
			updated_at = ?3
		WHERE gateway_customer_id = ?1
		RETURNING ` + sqliteUserColumns
	u, err := scanSQLiteUser(sqliteExec(ctx, r.db).QueryRowContext(ctx, query, customerID, threshold, formatTime(at)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to record payment failure: %w", err)
	}
	return &u.Subscription, nil
}

func (r *SQLiteUserRepository) SetStatus(ctx context.Context, customerID, subscriptionID string, status domain.SubscriptionStatus, at time.Time) (string, error) {
	query := `
		UPDATE users SET subscription_status = ?3, updated_at = ?4
		WHERE gateway_customer_id = ?1
		  AND ` + sqliteSubscriptionGuard + `
		  AND subscription_status <> ?3
		  AND (?3 <> 'active' OR subscription_end_date > ?4)
		RETURNING id
	`
	return r.returningID(ctx, "set subscription status", query, customerID, subscriptionID, string(status), formatTime(at))
}

func (r *SQLiteUserRepository) Cancel(ctx context.Context, customerID, subscriptionID string, cancelledAt, at time.Time) (string, error) {
	query := `
		UPDATE users SET subscription_status = 'cancelled', cancelled_at = ?3, updated_at = ?4
		WHERE gateway_customer_id = ?1
		  AND ` + sqliteSubscriptionGuard + `
		  AND subscription_status <> 'cancelled'
		RETURNING id
	`
	return r.returningID(ctx, "cancel subscription", query, customerID, subscriptionID, formatTime(cancelledAt), formatTime(at))
}

func (r *SQLiteUserRepository) returningID(ctx context.Context, op, query string, args ...any) (string, error) {
	var id string
	err := sqliteExec(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to %s: %w", op, err)
	}
	return id, nil
}

func (r *SQLiteUserRepository) ExpireLapsed(ctx context.Context, sweep domain.ExpirySweep) ([]string, error) {
	query := `
		UPDATE users SET subscription_status = 'expired', updated_at = ?3
		WHERE (subscription_status IN ('active', 'past_due') AND subscription_end_date < ?1)
		   OR (subscription_status = 'trial' AND trial_end_date < ?2)
		RETURNING id
	`
	rows, err := sqliteExec(ctx, r.db).QueryContext(ctx, query,
		formatTime(sweep.PaidBefore), formatTime(sweep.TrialBefore), formatTime(sweep.At))
	if err != nil {
		return nil, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteUserRepository) CountByStatus(ctx context.Context) (map[domain.SubscriptionStatus]int, error) {
	rows, err := sqliteExec(ctx, r.db).QueryContext(ctx, `SELECT subscription_status, COUNT(*) FROM users GROUP BY subscription_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[domain.SubscriptionStatus(status)] = n
	}
	return counts, rows.Err()
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
