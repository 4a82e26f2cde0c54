package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mealcart/backend/internal/domain"
)

// SQLiteWebhookEventRepository is the SQLite counterpart of WebhookEventRepository.
type SQLiteWebhookEventRepository struct {
	db *sql.DB
}

func NewSQLiteWebhookEventRepository(db *sql.DB) *SQLiteWebhookEventRepository {
	return &SQLiteWebhookEventRepository{db: db}
}

func (r *SQLiteWebhookEventRepository) Claim(ctx context.Context, ev *domain.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type, payload, outcome, reason, received_at)
		VALUES (?, ?, ?, 'pending', '', ?)
		ON CONFLICT (event_id) DO NOTHING
	`
	res, err := sqliteExec(ctx, r.db).ExecContext(ctx, query, ev.EventID, ev.EventType, ev.Payload, formatTime(ev.ReceivedAt))
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event: %w", err)
	}
	return affectedOne(res)
}

func (r *SQLiteWebhookEventRepository) Reclaim(ctx context.Context, eventID string) (bool, error) {
	res, err := sqliteExec(ctx, r.db).ExecContext(ctx, `
		UPDATE webhook_events SET outcome = 'pending', reason = ''
		WHERE event_id = ? AND outcome = 'skipped' AND reason = ?`,
		eventID, string(domain.ReasonNotFound))
	if err != nil {
		return false, fmt.Errorf("failed to reclaim webhook event: %w", err)
	}
	return affectedOne(res)
}

func (r *SQLiteWebhookEventRepository) Finish(ctx context.Context, eventID string, outcome domain.Outcome) error {
	_, err := sqliteExec(ctx, r.db).ExecContext(ctx,
		`UPDATE webhook_events SET outcome = ?, reason = ? WHERE event_id = ?`,
		outcome.Kind.String(), string(outcome.Reason), eventID)
	if err != nil {
		return fmt.Errorf("failed to finish webhook event: %w", err)
	}
	return nil
}

func scanSQLiteWebhookEvent(row rowScanner) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	var receivedAt string
	if err := row.Scan(&ev.EventID, &ev.EventType, &ev.Payload, &ev.Outcome, &ev.Reason, &receivedAt); err != nil {
		return nil, err
	}
	t, err := parseTime(receivedAt)
	if err != nil {
		return nil, err
	}
	ev.ReceivedAt = t
	return &ev, nil
}

func (r *SQLiteWebhookEventRepository) Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	ev, err := scanSQLiteWebhookEvent(sqliteExec(ctx, r.db).QueryRowContext(ctx,
		`SELECT event_id, event_type, payload, outcome, reason, received_at FROM webhook_events WHERE event_id = ?`, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return ev, nil
}

func (r *SQLiteWebhookEventRepository) List(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	rows, err := sqliteExec(ctx, r.db).QueryContext(ctx, `
		SELECT event_id, event_type, payload, outcome, reason, received_at
		FROM webhook_events ORDER BY received_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	events := []*domain.WebhookEvent{}
	for rows.Next() {
		ev, err := scanSQLiteWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
