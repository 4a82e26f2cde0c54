package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mealcart/backend/internal/domain"
)

const userColumns = `
	id, email, password, role, created_at, updated_at,
	subscription_status, trial_end_date, subscription_start_date, subscription_end_date,
	next_billing_date, cancelled_at, COALESCE(gateway_customer_id, ''),
	COALESCE(gateway_subscription_id, ''), payment_failure_count, COALESCE(last_invoice_id, '')`

// subscriptionGuard matches the stored gateway subscription id; an empty id on either side matches.
const subscriptionGuard = `($2::text = '' OR gateway_subscription_id IS NULL OR gateway_subscription_id = $2)`

// UserRepository handles database operations for users and their subscription records.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	s := &u.Subscription
	err := row.Scan(
		&u.ID, &u.Email, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt,
		&s.Status, &s.TrialEndDate, &s.SubscriptionStartDate, &s.SubscriptionEndDate,
		&s.NextBillingDate, &s.CancelledAt, &s.GatewayCustomerID,
		&s.GatewaySubscriptionID, &s.PaymentFailureCount, &s.LastInvoiceID,
	)
	if err != nil {
		return nil, err
	}
	s.UserID = u.ID
	s.UpdatedAt = u.UpdatedAt
	return &u, nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	row := Executor(ctx, r.db).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// Create inserts a new user together with its initial subscription record.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, password, role, subscription_status, trial_end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := Executor(ctx, r.db).Exec(ctx, query,
		u.ID, u.Email, u.Password, u.Role,
		string(u.Subscription.Status), u.Subscription.TrialEndDate,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, `email = $1`, email)
}

// FindByID returns a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// Exists checks if a user with the given email already exists.
func (r *UserRepository) Exists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	err := Executor(ctx, r.db).QueryRow(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// ListAll returns all users ordered by creation date.
func (r *UserRepository) ListAll(ctx context.Context) ([]*domain.User, error) {
	rows, err := Executor(ctx, r.db).Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) FindRecord(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	u, err := r.findOne(ctx, `id = $1`, userID)
	if err != nil || u == nil {
		return nil, err
	}
	return &u.Subscription, nil
}

func (r *UserRepository) FindRecordByCustomerID(ctx context.Context, customerID string) (*domain.SubscriptionRecord, error) {
	u, err := r.findOne(ctx, `gateway_customer_id = $1`, customerID)
	if err != nil || u == nil {
		return nil, err
	}
	return &u.Subscription, nil
}

// Activate starts a fresh paid period. Gateway ids are replaced only when provided.
func (r *UserRepository) Activate(ctx context.Context, a domain.Activation) (bool, error) {
	query := `
		UPDATE users SET
			subscription_status = 'active',
			subscription_start_date = $2,
			subscription_end_date = $3,
			next_billing_date = $3,
			payment_failure_count = 0,
			cancelled_at = NULL,
			last_invoice_id = NULL,
			gateway_customer_id = COALESCE(NULLIF($4, ''), gateway_customer_id),
			gateway_subscription_id = COALESCE(NULLIF($5, ''), gateway_subscription_id),
			updated_at = $6
		WHERE id = $1
	`
	tag, err := Executor(ctx, r.db).Exec(ctx, query,
		a.UserID, a.Start, a.End, a.GatewayCustomerID, a.GatewaySubscriptionID, a.At)
	if err != nil {
		return false, fmt.Errorf("failed to activate subscription: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Renew extends the period only if the record still has the end date and status it was
// read with and the invoice has not been applied yet.
func (r *UserRepository) Renew(ctx context.Context, rn domain.Renewal) (bool, error) {
	query := `
		UPDATE users SET
			subscription_status = 'active',
			subscription_end_date = $2,
			next_billing_date = $2,
			payment_failure_count = 0,
			cancelled_at = NULL,
			last_invoice_id = $3,
			updated_at = $4
		WHERE id = $1
		  AND subscription_end_date IS NOT DISTINCT FROM $5
		  AND subscription_status = $6
		  AND last_invoice_id IS DISTINCT FROM $3
	`
	tag, err := Executor(ctx, r.db).Exec(ctx, query,
		rn.UserID, rn.NewEnd, rn.InvoiceID, rn.At, rn.PreviousEnd, string(rn.PreviousState))
	if err != nil {
		return false, fmt.Errorf("failed to renew subscription: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordPaymentFailure increments the counter in a single statement.
func (r *UserRepository) RecordPaymentFailure(ctx context.Context, customerID string, threshold int, at time.Time) (*domain.SubscriptionRecord, error) {
	query := `
		UPDATE users SET
			payment_failure_count = payment_failure_count + 1,
			subscription_status = CASE WHEN payment_failure_count + 1 >= $2 THEN 'expired' ELSE subscription_status END,
			updated_at = $3
		WHERE gateway_customer_id = $1
		RETURNING ` + userColumns
	u, err := scanUser(Executor(ctx, r.db).QueryRow(ctx, query, customerID, threshold, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to record payment failure: %w", err)
	}
	return &u.Subscription, nil
}

func (r *UserRepository) SetStatus(ctx context.Context, customerID, subscriptionID string, status domain.SubscriptionStatus, at time.Time) (string, error) {
	query := `
		UPDATE users SET subscription_status = $3, updated_at = $4
		WHERE gateway_customer_id = $1
		  AND ` + subscriptionGuard + `
		  AND subscription_status <> $3
		  AND ($3 <> 'active' OR subscription_end_date > $4)
		RETURNING id
	`
	return r.returningID(ctx, "set subscription status", query, customerID, subscriptionID, string(status), at)
}

func (r *UserRepository) Cancel(ctx context.Context, customerID, subscriptionID string, cancelledAt, at time.Time) (string, error) {
	query := `
		UPDATE users SET subscription_status = 'cancelled', cancelled_at = $3, updated_at = $4
		WHERE gateway_customer_id = $1
		  AND ` + subscriptionGuard + `
		  AND subscription_status <> 'cancelled'
		RETURNING id
	`
	return r.returningID(ctx, "cancel subscription", query, customerID, subscriptionID, cancelledAt, at)
}

func (r *UserRepository) returningID(ctx context.Context, op, query string, args ...any) (string, error) {
	var id string
	err := Executor(ctx, r.db).QueryRow(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to %s: %w", op, err)
	}
	return id, nil
}

// ExpireLapsed moves lapsed paid periods and finished trials to expired.
func (r *UserRepository) ExpireLapsed(ctx context.Context, sweep domain.ExpirySweep) ([]string, error) {
	query := `
		UPDATE users SET subscription_status = 'expired', updated_at = $3
		WHERE (subscription_status IN ('active', 'past_due') AND subscription_end_date < $1)
		   OR (subscription_status = 'trial' AND trial_end_date < $2)
		RETURNING id
	`
	rows, err := Executor(ctx, r.db).Query(ctx, query, sweep.PaidBefore, sweep.TrialBefore, sweep.At)
	if err != nil {
		return nil, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect expired ids: %w", err)
	}
	return ids, nil
}

func (r *UserRepository) CountByStatus(ctx context.Context) (map[domain.SubscriptionStatus]int, error) {
	rows, err := Executor(ctx, r.db).Query(ctx, `SELECT subscription_status, COUNT(*) FROM users GROUP BY subscription_status`)
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
