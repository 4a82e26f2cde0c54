package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/logger"
	"github.com/mealcart/backend/pkg/crypto"
	"github.com/mealcart/backend/pkg/payment"
)

// WebhookService authenticates gateway events and routes them to the state machine.
type WebhookService struct {
	gateway  payment.PaymentGateway
	subs     *SubscriptionService
	events   domain.EventArchive
	tx       domain.Transactor
	sealer   *crypto.Sealer
	notifier Notifier
	timeout  time.Duration
	now      Clock
}

// NewWebhookService creates the router. Each event is processed under timeout.
func NewWebhookService(
	gateway payment.PaymentGateway,
	subs *SubscriptionService,
	events domain.EventArchive,
	tx domain.Transactor,
	sealer *crypto.Sealer,
	notifier Notifier,
	timeout time.Duration,
) *WebhookService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &WebhookService{
		gateway:  gateway,
		subs:     subs,
		events:   events,
		tx:       tx,
		sealer:   sealer,
		notifier: notifier,
		timeout:  timeout,
		now:      systemClock,
	}
}

// WithClock replaces the time source used for archive timestamps.
func (s *WebhookService) WithClock(c Clock) *WebhookService {
	s.now = c
	return s
}

// SignatureHeader is the request header the configured gateway signs with.
func (s *WebhookService) SignatureHeader() string {
	return s.gateway.SignatureHeader()
}

// Handle verifies, parses and applies one raw webhook delivery. A Rejected outcome
// carries an *domain.AppError: 400 for authentication or parse failures, 503 when the
// gateway should retry.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) domain.Outcome {
	log := logger.FromContext(ctx)

	if err := s.gateway.VerifySignature(payload, signature); err != nil {
		log.Warn("webhook signature rejected", "gateway", s.gateway.Name(), "error", err)
		return domain.RejectedOutcome(domain.InvalidSignature(err))
	}

	ev, err := payment.ParseEvent(payload)
	if err != nil {
		log.Warn("webhook payload rejected", "error", err)
		return domain.RejectedOutcome(domain.MalformedPayload(err))
	}
	if ev.Created.IsZero() {
		// Ordering checks compare against the event time; fall back to receipt.
		ev.Created = s.now()
	}

	log = log.With(slog.String("event_id", ev.ID), slog.String("event_type", string(ev.Kind)))
	ctx = logger.WithContext(ctx, log)

	if u, ok := ev.Data.(payment.Unrecognized); ok {
		log.Debug("ignoring unhandled event kind", "type", u.Type)
		return domain.SkippedOutcome(domain.ReasonUnhandledKind)
	}

	sealed, err := s.sealer.Seal(payload, ev.ID)
	if err != nil {
		log.Error("failed to seal webhook payload", "error", err)
		return domain.RejectedOutcome(domain.Retryable("webhook processing failed", err))
	}

	archived := &domain.WebhookEvent{
		EventID:    ev.ID,
		EventType:  string(ev.Kind),
		Payload:    sealed,
		ReceivedAt: s.now(),
	}
	return s.process(ctx, ev, func(ctx context.Context) (bool, error) {
		return s.events.Claim(ctx, archived)
	})
}

// Replay re-applies an archived event that was skipped because the record it
// referenced did not exist yet. Any other archived event is reported as a duplicate.
func (s *WebhookService) Replay(ctx context.Context, eventID string) (domain.Outcome, error) {
	stored, err := s.events.Get(ctx, eventID)
	if err != nil {
		return domain.Outcome{}, domain.ErrInternal("failed to load webhook event", err)
	}
	if stored == nil {
		return domain.Outcome{}, domain.ErrNotFound("webhook event not found")
	}

	payload, err := s.sealer.Open(stored.Payload, eventID)
	if err != nil {
		return domain.Outcome{}, domain.ErrInternal("failed to open archived payload", err)
	}
	ev, err := payment.ParseEvent(payload)
	if err != nil {
		return domain.Outcome{}, domain.MalformedPayload(err)
	}
	if ev.Created.IsZero() {
		ev.Created = stored.ReceivedAt
	}

	log := logger.FromContext(ctx).With(slog.String("event_id", ev.ID), slog.String("event_type", string(ev.Kind)))
	out := s.process(logger.WithContext(ctx, log), ev, func(ctx context.Context) (bool, error) {
		return s.events.Reclaim(ctx, eventID)
	})
	if !out.Accepted() {
		return out, out.Err
	}
	return out, nil
}

// process claims the event and applies it in one transaction, so a duplicate delivery
// either sees the finished claim or blocks on it and then sees it.
func (s *WebhookService) process(ctx context.Context, ev *payment.Event, claim func(context.Context) (bool, error)) domain.Outcome {
	log := logger.FromContext(ctx)

	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var tr Transition
	err := s.tx.WithinTx(txCtx, func(ctx context.Context) error {
		claimed, err := claim(ctx)
		if err != nil {
			return err
		}
		if !claimed {
			tr = skipped(domain.ReasonDuplicate, "")
			return nil
		}

		tr, err = s.dispatch(ctx, ev)
		if err != nil {
			return err
		}
		return s.events.Finish(ctx, ev.ID, tr.Outcome)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("webhook processing timed out", "timeout", s.timeout)
		} else {
			log.Error("webhook processing failed", "error", err)
		}
		return domain.RejectedOutcome(domain.Retryable("webhook processing failed, retry later", fmt.Errorf("event %s: %w", ev.ID, err)))
	}

	if tr.Outcome.Kind == domain.Applied && tr.UserID != "" {
		s.subs.Invalidate(ctx, tr.UserID)
		s.notifier.SubscriptionChanged(ctx, Change{UserID: tr.UserID, Cause: string(ev.Kind), At: s.now()})
	}

	log.Info("webhook processed", "outcome", tr.Outcome.String(), "user_id", tr.UserID)
	return tr.Outcome
}

func (s *WebhookService) dispatch(ctx context.Context, ev *payment.Event) (Transition, error) {
	switch d := ev.Data.(type) {
	case payment.CheckoutCompleted:
		return s.subs.CompleteCheckout(ctx, d)
	case payment.InvoicePaid:
		return s.subs.Renew(ctx, d, ev.Created)
	case payment.InvoiceFailed:
		return s.subs.RecordPaymentFailure(ctx, d)
	case payment.SubscriptionChanged:
		return s.subs.ApplyGatewayStatus(ctx, d)
	case payment.SubscriptionCancelled:
		return s.subs.Cancel(ctx, d, ev.Created)
	default:
		return skipped(domain.ReasonUnhandledKind, ""), nil
	}
}

// Events lists the most recently archived events.
func (s *WebhookService) Events(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := s.events.List(ctx, limit)
	if err != nil {
		return nil, domain.ErrInternal("failed to list webhook events", err)
	}
	return events, nil
}
