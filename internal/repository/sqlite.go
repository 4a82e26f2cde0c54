package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// sqliteTimeLayout is fixed width so stored timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// OpenSQLite opens a SQLite database for local development and tests. path may be a file
// path or ":memory:".
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// one writer; an in-memory database also lives on a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	return db, nil
}

// RunSQLiteMigrations mirrors RunMigrations for SQLite.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                      TEXT PRIMARY KEY,
			email                   TEXT NOT NULL UNIQUE,
			password                TEXT NOT NULL,
			role                    TEXT NOT NULL DEFAULT 'user',
			subscription_status     TEXT NOT NULL DEFAULT 'trial',
			trial_end_date          TEXT,
			subscription_start_date TEXT,
			subscription_end_date   TEXT,
			next_billing_date       TEXT,
			cancelled_at            TEXT,
			gateway_customer_id     TEXT,
			gateway_subscription_id TEXT,
			payment_failure_count   INTEGER NOT NULL DEFAULT 0 CHECK (payment_failure_count >= 0),
			last_invoice_id         TEXT,
			created_at              TEXT NOT NULL,
			updated_at              TEXT NOT NULL,
			CHECK (subscription_end_date IS NULL OR subscription_start_date IS NULL
				OR subscription_end_date >= subscription_start_date)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_gateway_customer ON users(gateway_customer_id)
			WHERE gateway_customer_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
			id             TEXT PRIMARY KEY,
			session_id     TEXT NOT NULL UNIQUE,
			user_id        TEXT NOT NULL REFERENCES users(id),
			user_email     TEXT NOT NULL,
			amount         TEXT NOT NULL,
			currency       TEXT NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			gateway_status TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,
			completed_at   TEXT,
			CHECK ((payment_status = 'paid') = (completed_at IS NOT NULL))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_transactions_user ON payment_transactions(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
			event_id    TEXT PRIMARY KEY,
			event_type  TEXT NOT NULL,
			payload     TEXT NOT NULL,
			outcome     TEXT NOT NULL DEFAULT 'pending',
			reason      TEXT NOT NULL DEFAULT '',
			received_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run sqlite migrations: %w", err)
		}
	}
	return nil
}

type sqliteTxKey struct{}

// SQLiteTxInfo holds the SQLite transaction and ownership info.
type SQLiteTxInfo struct {
	Tx    *sql.Tx
	Owned bool
}

// WithSQLiteTx stores SQLite transaction info in the context.
func WithSQLiteTx(ctx context.Context, tx *sql.Tx, owned bool) context.Context {
	return context.WithValue(ctx, sqliteTxKey{}, SQLiteTxInfo{Tx: tx, Owned: owned})
}

// SQLiteTxInfoFromContext extracts SQLite transaction info from the context.
func SQLiteTxInfoFromContext(ctx context.Context) (SQLiteTxInfo, bool) {
	info, ok := ctx.Value(sqliteTxKey{}).(SQLiteTxInfo)
	if !ok || info.Tx == nil {
		return SQLiteTxInfo{}, false
	}
	return info, true
}

type sqliteExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteExec(ctx context.Context, db *sql.DB) sqliteExecutor {
	if info, ok := SQLiteTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return db
}

// SQLiteTransactor is the SQLite counterpart of Transactor.
type SQLiteTransactor struct {
	db *sql.DB
}

func NewSQLiteTransactor(db *sql.DB) *SQLiteTransactor {
	return &SQLiteTransactor{db: db}
}

func (t *SQLiteTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := SQLiteTxInfoFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(WithSQLiteTx(ctx, tx, true)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// formatNullTime returns nil for a nil pointer so the driver writes NULL.
func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
