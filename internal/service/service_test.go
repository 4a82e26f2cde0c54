package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/logger"
	"github.com/mealcart/backend/internal/repository"
	"github.com/mealcart/backend/pkg/crypto"
	"github.com/mealcart/backend/pkg/payment"
)

const (
	testWebhookSecret = "whsec_test"
	testSealKey       = "0123456789abcdef0123456789abcdef"
	testOrigin        = "https://app.mealcart.test"
)

// Jan 31 in a leap year, so the first period ends on Feb 29.
var t0 = time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *recordingNotifier) SubscriptionChanged(_ context.Context, c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
}

func (n *recordingNotifier) all() []Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Change(nil), n.changes...)
}

type harness struct {
	t        *testing.T
	now      time.Time
	stores   *repository.Stores
	gateway  *payment.MockGateway
	notes    *recordingNotifier
	auth     *AuthService
	subs     *SubscriptionService
	checkout *CheckoutService
	webhooks *WebhookService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithTimeout(t, 5*time.Second)
}

func newHarnessWithTimeout(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := repository.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, repository.RunSQLiteMigrations(ctx, db))
	stores := repository.NewSQLiteStores(db)
	t.Cleanup(stores.Close)

	sealer, err := crypto.NewSealer(testSealKey)
	require.NoError(t, err)

	h := &harness{
		t:       t,
		now:     t0,
		stores:  stores,
		gateway: payment.NewMockGateway(testWebhookSecret),
		notes:   &recordingNotifier{},
	}
	clock := func() time.Time { return h.now }

	h.auth = NewAuthService("jwt-secret", "admin@mealcart.test", "admin123", 7*24*time.Hour, stores.Accounts, logger.Discard()).
		WithClock(clock)
	h.subs = NewSubscriptionService(stores.Subscriptions, stores.Ledger, nil, 3, 72*time.Hour).
		WithClock(clock)
	h.checkout = NewCheckoutService(stores.Accounts, stores.Subscriptions, stores.Ledger, h.gateway, decimal.RequireFromString("9.99"), "usd").
		WithClock(clock)
	h.webhooks = NewWebhookService(h.gateway, h.subs, stores.Events, stores.Tx, sealer, h.notes, timeout).
		WithClock(clock)
	return h
}

func (h *harness) ctx() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func (h *harness) register(email string) string {
	h.t.Helper()
	resp, err := h.auth.Register(h.ctx(), &domain.RegisterRequest{Email: email, Password: "secret123"})
	require.NoError(h.t, err)
	return resp.User.ID
}

func (h *harness) openCheckout(userID, email string) string {
	h.t.Helper()
	resp, err := h.checkout.CreateCheckout(h.ctx(), &domain.CreateCheckoutRequest{
		UserID:    userID,
		UserEmail: email,
		OriginURL: testOrigin,
	})
	require.NoError(h.t, err)
	return resp.SessionID
}

// deliver signs and routes an event built around object.
func (h *harness) deliver(eventID string, kind payment.Kind, created time.Time, object map[string]any) domain.Outcome {
	h.t.Helper()
	payload, err := payment.NewEventPayload(eventID, kind, created, object)
	require.NoError(h.t, err)
	return h.webhooks.Handle(h.ctx(), payload, payment.Sign(testWebhookSecret, payload))
}

func (h *harness) completeCheckout(eventID, sessionID, userID, customerID, paymentStatus string) domain.Outcome {
	return h.deliver(eventID, payment.KindCheckoutCompleted, h.now, map[string]any{
		"id":                  sessionID,
		"object":              "checkout.session",
		"status":              payment.SessionComplete,
		"payment_status":      paymentStatus,
		"customer":            customerID,
		"subscription":        "sub_" + customerID,
		"client_reference_id": userID,
	})
}

func (h *harness) invoice(eventID string, kind payment.Kind, created time.Time, invoiceID, customerID, reason string) domain.Outcome {
	return h.deliver(eventID, kind, created, map[string]any{
		"id":             invoiceID,
		"object":         "invoice",
		"customer":       customerID,
		"subscription":   "sub_" + customerID,
		"billing_reason": reason,
		"attempt_count":  1,
	})
}

// subscribe registers a user and takes them through a paid checkout.
func (h *harness) subscribe(email, customerID string) string {
	h.t.Helper()
	userID := h.register(email)
	sessionID := h.openCheckout(userID, email)
	out := h.completeCheckout("", sessionID, userID, customerID, "paid")
	require.Equal(h.t, domain.Applied, out.Kind, out.String())
	return userID
}

func (h *harness) record(userID string) *domain.SubscriptionRecord {
	h.t.Helper()
	rec, err := h.stores.Subscriptions.FindRecord(context.Background(), userID)
	require.NoError(h.t, err)
	require.NotNil(h.t, rec)
	return rec
}

func (h *harness) archived(eventID string) *domain.WebhookEvent {
	h.t.Helper()
	ev, err := h.stores.Events.Get(context.Background(), eventID)
	require.NoError(h.t, err)
	return ev
}
