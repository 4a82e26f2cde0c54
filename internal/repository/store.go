package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mealcart/backend/internal/domain"
)

// Stores bundles the repositories backing one database.
type Stores struct {
	Driver        string
	Accounts      domain.AccountStore
	Subscriptions domain.SubscriptionStore
	Ledger        domain.LedgerStore
	Events        domain.EventArchive
	Tx            domain.Transactor

	ping  func(context.Context) error
	close func()
}

// Ping checks the database connection.
func (s *Stores) Ping(ctx context.Context) error { return s.ping(ctx) }

// Close releases the underlying pool or handle.
func (s *Stores) Close() { s.close() }

// Open connects to databaseURL and runs migrations. "sqlite://<path>" (or
// "sqlite://:memory:") selects SQLite; anything else is treated as a Postgres URL.
func Open(ctx context.Context, databaseURL string) (*Stores, error) {
	if path, ok := strings.CutPrefix(databaseURL, "sqlite://"); ok {
		db, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		if err := RunSQLiteMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLiteStores(db), nil
	}

	pool, err := NewDB(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStores(pool), nil
}

func NewPostgresStores(pool *pgxpool.Pool) *Stores {
	users := NewUserRepository(pool)
	return &Stores{
		Driver:        "postgres",
		Accounts:      users,
		Subscriptions: users,
		Ledger:        NewLedgerRepository(pool),
		Events:        NewWebhookEventRepository(pool),
		Tx:            NewTransactor(pool),
		ping:          pool.Ping,
		close:         pool.Close,
	}
}

func NewSQLiteStores(db *sql.DB) *Stores {
	users := NewSQLiteUserRepository(db)
	return &Stores{
		Driver:        "sqlite",
		Accounts:      users,
		Subscriptions: users,
		Ledger:        NewSQLiteLedgerRepository(db),
		Events:        NewSQLiteWebhookEventRepository(db),
		Tx:            NewSQLiteTransactor(db),
		ping:          db.PingContext,
		close:         func() { _ = db.Close() },
	}
}
