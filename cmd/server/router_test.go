package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealcart/backend/internal/handler"
	"github.com/mealcart/backend/internal/logger"
	"github.com/mealcart/backend/internal/repository"
	"github.com/mealcart/backend/internal/service"
	"github.com/mealcart/backend/internal/ws"
	"github.com/mealcart/backend/pkg/crypto"
	"github.com/mealcart/backend/pkg/payment"
)

const testWebhookSecret = "whsec_test"

func testRouter(t *testing.T) chi.Router {
	t.Helper()
	ctx := context.Background()

	stores, err := repository.Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	sealer, err := crypto.NewSealer("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	log := logger.Discard()
	gateway := payment.NewMockGateway(testWebhookSecret)
	authSvc := service.NewAuthService("jwt-secret", "admin@mealcart.test", "admin123", 7*24*time.Hour, stores.Accounts, log)
	subs := service.NewSubscriptionService(stores.Subscriptions, stores.Ledger, nil, 3, 72*time.Hour)
	checkout := service.NewCheckoutService(stores.Accounts, stores.Subscriptions, stores.Ledger, gateway, decimal.RequireFromString("9.99"), "usd")
	webhooks := service.NewWebhookService(gateway, subs, stores.Events, stores.Tx, sealer, nil, 5*time.Second)

	return newRouter(routes{
		log:         log,
		corsOrigins: []string{"http://localhost:3000"},
		authSvc:     authSvc,
		subs:        subs,
		auth:        handler.NewAuthHandler(authSvc),
		payment:     handler.NewPaymentHandler(checkout, subs),
		webhook:     handler.NewWebhookHandler(webhooks),
		admin:       handler.NewAdminHandler(authSvc, subs, checkout, webhooks, nil),
		health:      handler.NewHealthHandler(stores.Ping, nil),
		status:      ws.NewStatusHandler(ws.NewHub(log), authSvc, subs, log),
	})
}

func TestRouter_WebhookBurstIsNotRateLimited(t *testing.T) {
	r := testRouter(t)

	codes := map[int]int{}
	for i := range 60 {
		payload, err := payment.NewEventPayload(fmt.Sprintf("evt_%d", i), payment.KindInvoicePaid, time.Now(), map[string]any{
			"id":             fmt.Sprintf("in_%d", i),
			"object":         "invoice",
			"customer":       "cus_1",
			"billing_reason": "subscription_cycle",
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/webhook/payment", bytes.NewReader(payload))
		req.RemoteAddr = "3.18.12.63:443"
		req.Header.Set(payment.MockSignatureHeader, payment.Sign(testWebhookSecret, payload))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes[rec.Code]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 60}, codes)
}

func TestRouter_PublicRoutesAreRateLimited(t *testing.T) {
	r := testRouter(t)

	codes := map[int]int{}
	for range 100 {
		req := httptest.NewRequest(http.MethodGet, "/subscription/status/ghost", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes[rec.Code]++
	}
	assert.Positive(t, codes[http.StatusTooManyRequests])
	assert.GreaterOrEqual(t, codes[http.StatusOK], 40)
}
