package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mealcart/backend/internal/domain"
)

// WebhookEventRepository archives gateway events by event id.
type WebhookEventRepository struct {
	db *pgxpool.Pool
}

func NewWebhookEventRepository(db *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Claim inserts the event; false means another delivery already holds the id.
func (r *WebhookEventRepository) Claim(ctx context.Context, ev *domain.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type, payload, outcome, reason, received_at)
		VALUES ($1, $2, $3, 'pending', '', $4)
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := Executor(ctx, r.db).Exec(ctx, query, ev.EventID, ev.EventType, ev.Payload, ev.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WebhookEventRepository) Reclaim(ctx context.Context, eventID string) (bool, error) {
	query := `
		UPDATE webhook_events SET outcome = 'pending', reason = ''
		WHERE event_id = $1 AND outcome = 'skipped' AND reason = $2
	`
	tag, err := Executor(ctx, r.db).Exec(ctx, query, eventID, string(domain.ReasonNotFound))
	if err != nil {
		return false, fmt.Errorf("failed to reclaim webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WebhookEventRepository) Finish(ctx context.Context, eventID string, outcome domain.Outcome) error {
	_, err := Executor(ctx, r.db).Exec(ctx,
		`UPDATE webhook_events SET outcome = $2, reason = $3 WHERE event_id = $1`,
		eventID, outcome.Kind.String(), string(outcome.Reason))
	if err != nil {
		return fmt.Errorf("failed to finish webhook event: %w", err)
	}
	return nil
}

func (r *WebhookEventRepository) Get(ctx context.Context, eventID string) (*domain.WebhookEvent, error) {
	var ev domain.WebhookEvent
	err := Executor(ctx, r.db).QueryRow(ctx,
		`SELECT event_id, event_type, payload, outcome, reason, received_at FROM webhook_events WHERE event_id = $1`,
		eventID,
	).Scan(&ev.EventID, &ev.EventType, &ev.Payload, &ev.Outcome, &ev.Reason, &ev.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &ev, nil
}

func (r *WebhookEventRepository) List(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	rows, err := Executor(ctx, r.db).Query(ctx, `
		SELECT event_id, event_type, payload, outcome, reason, received_at
		FROM webhook_events ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	events := []*domain.WebhookEvent{}
	for rows.Next() {
		var ev domain.WebhookEvent
		if err := rows.Scan(&ev.EventID, &ev.EventType, &ev.Payload, &ev.Outcome, &ev.Reason, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
