package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations creates the users, payment_transactions and webhook_events tables.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id                      TEXT PRIMARY KEY,
			email                   TEXT NOT NULL UNIQUE,
			password                TEXT NOT NULL,
			role                    TEXT NOT NULL DEFAULT 'user',
			subscription_status     TEXT NOT NULL DEFAULT 'trial',
			trial_end_date          TIMESTAMPTZ,
			subscription_start_date TIMESTAMPTZ,
			subscription_end_date   TIMESTAMPTZ,
			next_billing_date       TIMESTAMPTZ,
			cancelled_at            TIMESTAMPTZ,
			gateway_customer_id     TEXT,
			gateway_subscription_id TEXT,
			payment_failure_count   INTEGER NOT NULL DEFAULT 0 CHECK (payment_failure_count >= 0),
			last_invoice_id         TEXT,
			created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chk_users_period CHECK (
				subscription_end_date IS NULL OR subscription_start_date IS NULL
				OR subscription_end_date >= subscription_start_date
			)
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_gateway_customer ON users(gateway_customer_id)
			WHERE gateway_customer_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_users_status_end ON users(subscription_status, subscription_end_date);

		CREATE TABLE IF NOT EXISTS payment_transactions (
			id             TEXT PRIMARY KEY,
			session_id     TEXT NOT NULL UNIQUE,
			user_id        TEXT NOT NULL REFERENCES users(id),
			user_email     TEXT NOT NULL,
			amount         NUMERIC(12, 2) NOT NULL,
			currency       TEXT NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			gateway_status TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at   TIMESTAMPTZ,
			CONSTRAINT chk_payment_completed CHECK ((payment_status = 'paid') = (completed_at IS NOT NULL))
		);
		CREATE INDEX IF NOT EXISTS idx_payment_transactions_user ON payment_transactions(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS webhook_events (
			event_id    TEXT PRIMARY KEY,
			event_type  TEXT NOT NULL,
			payload     TEXT NOT NULL,
			outcome     TEXT NOT NULL DEFAULT 'pending',
			reason      TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_webhook_events_received ON webhook_events(received_at DESC);
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
