package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mealcart/backend/internal/billing"
	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/logger"
	"github.com/mealcart/backend/pkg/payment"
)

// CheckoutService opens gateway checkout sessions and records them in the ledger.
type CheckoutService struct {
	accounts domain.AccountStore
	subs     domain.SubscriptionStore
	ledger   domain.LedgerStore
	gateway  payment.PaymentGateway
	validate *validator.Validate
	amount   decimal.Decimal
	currency string
	now      Clock
}

// NewCheckoutService creates a CheckoutService charging amount in currency per period.
func NewCheckoutService(
	accounts domain.AccountStore,
	subs domain.SubscriptionStore,
	ledger domain.LedgerStore,
	gateway payment.PaymentGateway,
	amount decimal.Decimal,
	currency string,
) *CheckoutService {
	return &CheckoutService{
		accounts: accounts,
		subs:     subs,
		ledger:   ledger,
		gateway:  gateway,
		validate: validator.New(),
		amount:   amount,
		currency: currency,
		now:      systemClock,
	}
}

// WithClock replaces the time source.
func (s *CheckoutService) WithClock(c Clock) *CheckoutService {
	s.now = c
	return s
}

// CreateCheckout checks eligibility, opens a session with the gateway and writes a
// pending ledger entry for it. A gateway failure leaves the ledger untouched.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req *domain.CreateCheckoutRequest) (*domain.CheckoutResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest(formatValidationErrors(err))
	}
	log := logger.FromContext(ctx).With(slog.String("user_id", req.UserID))

	rec, err := s.subs.FindRecord(ctx, req.UserID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load subscription", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound("user not found")
	}

	now := s.now()
	if !billing.CanCheckout(rec, now) {
		log.Info("checkout refused, subscription still running", "subscription_end_date", rec.SubscriptionEndDate)
		return nil, domain.AlreadySubscribed()
	}

	origin := strings.TrimRight(req.OriginURL, "/")
	session, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutParams{
		UserID:     req.UserID,
		Email:      req.UserEmail,
		Amount:     s.amount,
		Currency:   s.currency,
		SuccessURL: origin + "/subscription/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  origin + "/subscription/cancel",
	})
	if err != nil {
		log.Error("gateway rejected checkout", "gateway", s.gateway.Name(), "error", err)
		return nil, domain.GatewayUnavailable(err)
	}

	entry := domain.NewLedgerEntry(session.ID, req.UserID, req.UserEmail, s.amount, s.currency, session.Status, now)
	if err := s.ledger.Create(ctx, entry); err != nil {
		return nil, domain.ErrInternal("failed to record checkout", err)
	}

	log.Info("checkout session opened", "session_id", session.ID, "amount", s.amount.String(), "currency", s.currency)
	return &domain.CheckoutResponse{
		CheckoutURL: session.URL,
		SessionID:   session.ID,
	}, nil
}

// CheckoutStatus returns the ledger entry for sessionID with the gateway's live session
// status. It never writes: the webhook is the only path that moves the ledger.
func (s *CheckoutService) CheckoutStatus(ctx context.Context, sessionID string) (*domain.CheckoutStatusResponse, error) {
	entry, err := s.ledger.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load checkout", err)
	}
	if entry == nil {
		return nil, domain.ErrNotFound("checkout session not found")
	}

	resp := &domain.CheckoutStatusResponse{
		SessionID:     entry.SessionID,
		PaymentStatus: entry.PaymentStatus,
		GatewayStatus: entry.GatewayStatus,
		Amount:        entry.Amount,
		Currency:      entry.Currency,
		CreatedAt:     entry.CreatedAt,
		CompletedAt:   entry.CompletedAt,
	}

	live, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		logger.FromContext(ctx).Warn("gateway session lookup failed, serving stored status",
			"session_id", sessionID, "error", err)
		return resp, nil
	}
	resp.GatewayStatus = live.Status
	return resp, nil
}

// Ledger lists a user's checkout attempts, newest first.
func (s *CheckoutService) Ledger(ctx context.Context, userID string) ([]*domain.LedgerEntry, error) {
	entries, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to list ledger", err)
	}
	return entries, nil
}
