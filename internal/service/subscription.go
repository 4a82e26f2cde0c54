package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mealcart/backend/internal/billing"
	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/logger"
	"github.com/mealcart/backend/pkg/payment"
)

// renewAttempts bounds the compare-and-set retries of a renewal racing another writer.
const renewAttempts = 3

var errRenewContention = errors.New("renewal lost the compare-and-set race")

// Transition is the result of one state machine step. UserID is set when a record was
// identified, even if nothing changed.
type Transition struct {
	Outcome domain.Outcome
	UserID  string
}

func applied(userID string) Transition {
	return Transition{Outcome: domain.AppliedOutcome(), UserID: userID}
}

func skipped(reason domain.SkipReason, userID string) Transition {
	return Transition{Outcome: domain.SkippedOutcome(reason), UserID: userID}
}

// SubscriptionService is the subscription state machine. Every transition is a
// conditional update in the store, so callers may run them concurrently and repeat
// them freely; they run inside whatever transaction ctx carries.
type SubscriptionService struct {
	subs        domain.SubscriptionStore
	ledger      domain.LedgerStore
	cache       StatusCache
	maxFailures int
	expiryGrace time.Duration
	now         Clock
}

// NewSubscriptionService creates the state machine. A nil cache disables caching.
func NewSubscriptionService(
	subs domain.SubscriptionStore,
	ledger domain.LedgerStore,
	cache StatusCache,
	maxFailures int,
	expiryGrace time.Duration,
) *SubscriptionService {
	if cache == nil {
		cache = nopCache{}
	}
	return &SubscriptionService{
		subs:        subs,
		ledger:      ledger,
		cache:       cache,
		maxFailures: maxFailures,
		expiryGrace: expiryGrace,
		now:         systemClock,
	}
}

// WithClock replaces the time source.
func (s *SubscriptionService) WithClock(c Clock) *SubscriptionService {
	s.now = c
	return s
}

// CompleteCheckout applies a finished checkout session. A paid session moves its
// ledger entry to paid and activates the owner for one billing month; any other
// payment status is mirrored onto the ledger only.
func (s *SubscriptionService) CompleteCheckout(ctx context.Context, ev payment.CheckoutCompleted) (Transition, error) {
	log := logger.FromContext(ctx).With(slog.String("session_id", ev.SessionID))

	entry, err := s.ledger.FindBySessionID(ctx, ev.SessionID)
	if err != nil {
		return Transition{}, err
	}
	if entry == nil {
		log.Warn("checkout completed for unknown session")
		return skipped(domain.ReasonNotFound, ""), nil
	}
	if entry.PaymentStatus == domain.PaymentPaid {
		return skipped(domain.ReasonDuplicate, entry.UserID), nil
	}
	if ev.UserID != "" && ev.UserID != entry.UserID {
		log.Warn("checkout reference does not match ledger owner",
			"client_reference_id", ev.UserID, "ledger_user_id", entry.UserID)
	}

	now := s.now()
	status := billing.MapCheckoutPayment(ev.PaymentStatus)
	if status != domain.PaymentPaid {
		ok, err := s.ledger.MarkUnpaid(ctx, ev.SessionID, status, ev.Status, now)
		if err != nil {
			return Transition{}, err
		}
		if !ok {
			return skipped(domain.ReasonDuplicate, entry.UserID), nil
		}
		log.Info("checkout finished without payment", "payment_status", status, "gateway_status", ev.Status)
		return applied(entry.UserID), nil
	}

	paid, err := s.ledger.MarkPaid(ctx, ev.SessionID, ev.Status, now)
	if err != nil {
		return Transition{}, err
	}
	if paid == nil {
		// Another delivery got there between our read and the update.
		return skipped(domain.ReasonDuplicate, entry.UserID), nil
	}

	end := billing.AddBillingMonth(now)
	ok, err := s.subs.Activate(ctx, domain.Activation{
		UserID:                entry.UserID,
		Start:                 now,
		End:                   end,
		GatewayCustomerID:     ev.CustomerID,
		GatewaySubscriptionID: ev.SubscriptionID,
		At:                    now,
	})
	if err != nil {
		return Transition{}, err
	}
	if !ok {
		log.Warn("ledger entry paid but its user no longer exists", "user_id", entry.UserID)
		return applied(""), nil
	}

	log.Info("subscription activated", "user_id", entry.UserID, "subscription_end_date", end)
	return applied(entry.UserID), nil
}

// Renew extends the paid period by one billing month from its current end. created is
// when the gateway emitted the invoice event; a cancellation recorded after that wins.
func (s *SubscriptionService) Renew(ctx context.Context, inv payment.InvoicePaid, created time.Time) (Transition, error) {
	log := logger.FromContext(ctx).With(slog.String("invoice_id", inv.InvoiceID), slog.String("customer_id", inv.CustomerID))

	if inv.BillingReason == payment.BillingReasonCreate {
		// The checkout completion already granted the first period.
		return skipped(domain.ReasonDuplicate, ""), nil
	}

	for range renewAttempts {
		rec, err := s.subs.FindRecordByCustomerID(ctx, inv.CustomerID)
		if err != nil {
			return Transition{}, err
		}
		if rec == nil {
			log.Warn("invoice paid for unknown customer")
			return skipped(domain.ReasonNotFound, ""), nil
		}
		if rec.LastInvoiceID == inv.InvoiceID {
			return skipped(domain.ReasonDuplicate, rec.UserID), nil
		}
		if rec.Status == domain.StatusCancelled && rec.CancelledAt != nil && !created.After(*rec.CancelledAt) {
			log.Info("invoice predates cancellation, not renewing", "cancelled_at", rec.CancelledAt)
			return skipped(domain.ReasonDuplicate, rec.UserID), nil
		}

		now := s.now()
		newEnd := billing.AddBillingMonth(billing.RenewalBase(rec.SubscriptionEndDate, now))
		if !newEnd.After(now) {
			// The old period lapsed more than a month ago; start the new one today.
			newEnd = billing.AddBillingMonth(now)
		}

		ok, err := s.subs.Renew(ctx, domain.Renewal{
			UserID:        rec.UserID,
			PreviousEnd:   rec.SubscriptionEndDate,
			PreviousState: rec.Status,
			NewEnd:        newEnd,
			InvoiceID:     inv.InvoiceID,
			At:            now,
		})
		if err != nil {
			return Transition{}, err
		}
		if ok {
			log.Info("subscription renewed", "user_id", rec.UserID, "subscription_end_date", newEnd)
			return applied(rec.UserID), nil
		}
		log.Debug("renewal raced another update, retrying", "user_id", rec.UserID)
	}
	return Transition{}, fmt.Errorf("invoice %s: %w", inv.InvoiceID, errRenewContention)
}

// RecordPaymentFailure counts a failed charge; reaching the configured threshold
// expires the subscription.
func (s *SubscriptionService) RecordPaymentFailure(ctx context.Context, inv payment.InvoiceFailed) (Transition, error) {
	log := logger.FromContext(ctx).With(slog.String("invoice_id", inv.InvoiceID), slog.String("customer_id", inv.CustomerID))

	rec, err := s.subs.RecordPaymentFailure(ctx, inv.CustomerID, s.maxFailures, s.now())
	if err != nil {
		return Transition{}, err
	}
	if rec == nil {
		log.Warn("invoice failed for unknown customer")
		return skipped(domain.ReasonNotFound, ""), nil
	}

	log.Info("payment failure recorded",
		"user_id", rec.UserID, "payment_failure_count", rec.PaymentFailureCount, "subscription_status", rec.Status)
	return applied(rec.UserID), nil
}

// ApplyGatewayStatus overwrites the local status with the mapped gateway status.
func (s *SubscriptionService) ApplyGatewayStatus(ctx context.Context, ev payment.SubscriptionChanged) (Transition, error) {
	log := logger.FromContext(ctx).With(slog.String("customer_id", ev.CustomerID), slog.String("gateway_status", ev.Status))

	status, ok := billing.MapGatewayStatus(ev.Status)
	if !ok {
		log.Info("gateway status has no local meaning")
		return skipped(domain.ReasonUnknownStatus, ""), nil
	}

	now := s.now()
	userID, err := s.subs.SetStatus(ctx, ev.CustomerID, ev.SubscriptionID, status, now)
	if err != nil {
		return Transition{}, err
	}
	if userID == "" {
		return s.statusUnchanged(ctx, log, ev, status)
	}

	log.Info("subscription status updated", "user_id", userID, "subscription_status", status)
	return applied(userID), nil
}

// Cancel marks the subscription cancelled. The cancellation time is the gateway's own
// when it sent one, else the event time.
func (s *SubscriptionService) Cancel(ctx context.Context, ev payment.SubscriptionCancelled, created time.Time) (Transition, error) {
	log := logger.FromContext(ctx).With(slog.String("customer_id", ev.CustomerID))

	now := s.now()
	cancelledAt := now
	switch {
	case ev.CanceledAt != nil:
		cancelledAt = *ev.CanceledAt
	case !created.IsZero():
		cancelledAt = created
	}

	userID, err := s.subs.Cancel(ctx, ev.CustomerID, ev.SubscriptionID, cancelledAt, now)
	if err != nil {
		return Transition{}, err
	}
	if userID == "" {
		return s.unchanged(ctx, log, ev.CustomerID)
	}

	log.Info("subscription cancelled", "user_id", userID, "cancelled_at", cancelledAt)
	return applied(userID), nil
}

// unchanged tells a missing customer apart from a guard that did not hold.
func (s *SubscriptionService) unchanged(ctx context.Context, log *slog.Logger, customerID string) (Transition, error) {
	rec, err := s.subs.FindRecordByCustomerID(ctx, customerID)
	if err != nil {
		return Transition{}, err
	}
	if rec == nil {
		log.Warn("event for unknown customer")
		return skipped(domain.ReasonNotFound, ""), nil
	}
	return skipped(domain.ReasonDuplicate, rec.UserID), nil
}

// statusUnchanged explains why SetStatus matched no row. Besides a missing record and a
// repeated status, the update refuses events about a replaced gateway subscription and
// refuses to mark a record active once its paid period has ended.
func (s *SubscriptionService) statusUnchanged(ctx context.Context, log *slog.Logger, ev payment.SubscriptionChanged, status domain.SubscriptionStatus) (Transition, error) {
	rec, err := s.subs.FindRecordByCustomerID(ctx, ev.CustomerID)
	if err != nil {
		return Transition{}, err
	}
	switch {
	case rec == nil:
		log.Warn("event for unknown customer")
		return skipped(domain.ReasonNotFound, ""), nil
	case ev.SubscriptionID != "" && rec.GatewaySubscriptionID != "" && rec.GatewaySubscriptionID != ev.SubscriptionID:
		log.Info("update for a replaced gateway subscription", "gateway_subscription_id", rec.GatewaySubscriptionID)
		return skipped(domain.ReasonSubscriptionMismatch, rec.UserID), nil
	case rec.Status == status:
		return skipped(domain.ReasonDuplicate, rec.UserID), nil
	default:
		log.Info("not reactivating a lapsed period", "subscription_end_date", rec.SubscriptionEndDate)
		return skipped(domain.ReasonPeriodLapsed, rec.UserID), nil
	}
}

// ExpireLapsed moves paid subscriptions past their end (plus grace) and trials past
// their trial end to expired. Returns the affected user ids.
func (s *SubscriptionService) ExpireLapsed(ctx context.Context) ([]string, error) {
	now := s.now()
	ids, err := s.subs.ExpireLapsed(ctx, domain.ExpirySweep{
		PaidBefore:  now.Add(-s.expiryGrace),
		TrialBefore: now,
		At:          now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		logger.FromContext(ctx).Warn("failed to invalidate status cache", "error", err)
	}
	return ids, nil
}

// Status evaluates the access policy for userID. A missing user is not an error: it is
// reported as having no access.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (billing.Access, error) {
	rec, err := s.Record(ctx, userID)
	if err != nil {
		return billing.Access{}, domain.ErrInternal("failed to load subscription", err)
	}
	return billing.Evaluate(rec, s.now()), nil
}

// Record returns the subscription record through the status cache, or nil.
func (s *SubscriptionService) Record(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	log := logger.FromContext(ctx)

	rec, err := s.cache.Get(ctx, userID)
	if err != nil {
		log.Warn("status cache read failed", "user_id", userID, "error", err)
	}
	if rec != nil {
		return rec, nil
	}

	gen, genErr := s.cache.Generation(ctx, userID)
	if genErr != nil {
		log.Warn("status cache generation read failed", "user_id", userID, "error", genErr)
	}

	rec, err = s.subs.FindRecord(ctx, userID)
	if err != nil || rec == nil {
		return nil, err
	}
	if genErr == nil {
		if err := s.cache.SetIfCurrent(ctx, rec, gen); err != nil {
			log.Warn("status cache write failed", "user_id", userID, "error", err)
		}
	}
	return rec, nil
}

// Invalidate drops cached records after a committed change.
func (s *SubscriptionService) Invalidate(ctx context.Context, userIDs ...string) {
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		logger.FromContext(ctx).Warn("failed to invalidate status cache", "error", err)
	}
}

// Counts returns the number of users per subscription status.
func (s *SubscriptionService) Counts(ctx context.Context) (map[domain.SubscriptionStatus]int, error) {
	counts, err := s.subs.CountByStatus(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to count subscriptions", err)
	}
	return counts, nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*domain.SubscriptionRecord, error) { return nil, nil }

func (nopCache) Generation(context.Context, string) (int64, error) { return 0, nil }

func (nopCache) SetIfCurrent(context.Context, *domain.SubscriptionRecord, int64) error { return nil }

func (nopCache) Invalidate(context.Context, ...string) error { return nil }
