package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/handler"
	"github.com/mealcart/backend/internal/logger"
	"github.com/mealcart/backend/internal/middleware"
	"github.com/mealcart/backend/internal/repository"
	"github.com/mealcart/backend/internal/service"
	"github.com/mealcart/backend/pkg/crypto"
	"github.com/mealcart/backend/pkg/payment"
)

const webhookSecret = "whsec_test"

type app struct {
	t       *testing.T
	router  chi.Router
	gateway *payment.MockGateway
	auth    *service.AuthService
}

func newApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()

	stores, err := repository.Open(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	sealer, err := crypto.NewSealer("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	gateway := payment.NewMockGateway(webhookSecret)
	auth := service.NewAuthService("jwt-secret", "admin@mealcart.test", "admin123", 7*24*time.Hour, stores.Accounts, logger.Discard())
	require.NoError(t, auth.SeedAdmin(ctx))
	subs := service.NewSubscriptionService(stores.Subscriptions, stores.Ledger, nil, 3, 72*time.Hour)
	checkout := service.NewCheckoutService(stores.Accounts, stores.Subscriptions, stores.Ledger, gateway, decimal.RequireFromString("9.99"), "usd")
	webhooks := service.NewWebhookService(gateway, subs, stores.Events, stores.Tx, sealer, nil, 5*time.Second)

	authH := handler.NewAuthHandler(auth)
	paymentH := handler.NewPaymentHandler(checkout, subs)
	webhookH := handler.NewWebhookHandler(webhooks)
	adminH := handler.NewAdminHandler(auth, subs, checkout, webhooks, nil)

	r := chi.NewRouter()
	r.Post("/webhook/payment", webhookH.Payment)
	r.Post("/subscription/create-checkout", paymentH.CreateCheckout)
	r.Get("/subscription/checkout/status/{sessionID}", paymentH.CheckoutStatus)
	r.Get("/subscription/status/{userID}", paymentH.Status)
	r.Post("/api/auth/register", authH.Register)
	r.Post("/api/auth/login", authH.Login)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(auth))
		r.Get("/api/auth/me", authH.Me)
		r.With(middleware.RequireAccess(subs)).Get("/api/premium/access", paymentH.PremiumAccess)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly)
			r.Get("/api/admin/stats", adminH.GetStats)
			r.Get("/api/admin/users", adminH.ListUsers)
			r.Get("/api/admin/users/{id}/ledger", adminH.UserLedger)
			r.Get("/api/admin/webhook-events", adminH.WebhookEvents)
			r.Post("/api/admin/webhook-events/{id}/replay", adminH.ReplayWebhookEvent)
		})
	})

	return &app{t: t, router: r, gateway: gateway, auth: auth}
}

func (a *app) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *app) register(email string) domain.LoginResponse {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": "secret123"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (a *app) adminToken() string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@mealcart.test", "password": "admin123"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.LoginResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func (a *app) checkout(userID, email string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/subscription/create-checkout", "", map[string]string{
		"user_id": userID, "user_email": email, "origin_url": "https://app.mealcart.test",
	})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp domain.CheckoutResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.SessionID
}

func (a *app) webhook(payload []byte) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, "/webhook/payment", "", payload,
		payment.MockSignatureHeader, payment.Sign(webhookSecret, payload))
}

func completedPayload(t *testing.T, eventID, sessionID, userID string) []byte {
	t.Helper()
	payload, err := payment.NewEventPayload(eventID, payment.KindCheckoutCompleted, time.Now(), map[string]any{
		"id":                  sessionID,
		"object":              "checkout.session",
		"status":              payment.SessionComplete,
		"payment_status":      "paid",
		"customer":            "cus_1",
		"subscription":        "sub_1",
		"client_reference_id": userID,
	})
	require.NoError(t, err)
	return payload
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestRegisterAndMe(t *testing.T) {
	a := newApp(t)
	resp := a.register("ana@example.com")
	assert.Equal(t, domain.StatusTrial, resp.User.SubscriptionStatus)

	rec := a.do(http.MethodGet, "/api/auth/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana@example.com", decode(t, rec)["email"])

	rec = a.do(http.MethodPost, "/api/auth/register", "", []byte(`{"email":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "nope", "password": "secret123"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutFlow(t *testing.T) {
	a := newApp(t)
	user := a.register("ana@example.com")

	rec := a.do(http.MethodPost, "/subscription/create-checkout", "", map[string]string{
		"user_id": user.User.ID, "user_email": "ana@example.com", "origin_url": "not a url",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/subscription/create-checkout", "", map[string]string{
		"user_id": "ghost", "user_email": "ghost@example.com", "origin_url": "https://app.mealcart.test",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sessionID := a.checkout(user.User.ID, "ana@example.com")

	rec = a.do(http.MethodGet, "/subscription/checkout/status/"+sessionID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, string(domain.PaymentPending), body["payment_status"])
	assert.Equal(t, payment.SessionOpen, body["gateway_status"])

	rec = a.do(http.MethodGet, "/subscription/checkout/status/cs_missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.webhook(completedPayload(t, "evt_1", sessionID, user.User.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	rec = a.do(http.MethodGet, "/subscription/status/"+user.User.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, true, body["has_access"])
	assert.Equal(t, true, body["subscription_active"])
	assert.Equal(t, string(domain.StatusActive), body["subscription_status"])

	rec = a.do(http.MethodPost, "/subscription/create-checkout", "", map[string]string{
		"user_id": user.User.ID, "user_email": "ana@example.com", "origin_url": "https://app.mealcart.test",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_GatewayDown(t *testing.T) {
	a := newApp(t)
	user := a.register("ana@example.com")
	a.gateway.FailWith(errors.New("provider down"))

	rec := a.do(http.MethodPost, "/subscription/create-checkout", "", map[string]string{
		"user_id": user.User.ID, "user_email": "ana@example.com", "origin_url": "https://app.mealcart.test",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatus_UnknownUserHasNoAccess(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodGet, "/subscription/status/ghost", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["has_access"])
}

func TestWebhook_Rejections(t *testing.T) {
	a := newApp(t)

	payload := completedPayload(t, "evt_1", "cs_1", "u1")
	rec := a.do(http.MethodPost, "/webhook/payment", "", payload, payment.MockSignatureHeader, "sha256=deadbeef")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/webhook/payment", "", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.webhook([]byte(`{"id":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown sessions are acknowledged so the gateway stops retrying.
	rec = a.webhook(payload)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPremiumAccess(t *testing.T) {
	a := newApp(t)
	user := a.register("ana@example.com")

	rec := a.do(http.MethodGet, "/api/premium/access", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/api/premium/access", user.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["trial_active"])
}

func TestAdminEndpoints(t *testing.T) {
	a := newApp(t)
	user := a.register("ana@example.com")
	sessionID := a.checkout(user.User.ID, "ana@example.com")
	require.Equal(t, http.StatusOK, a.webhook(completedPayload(t, "evt_1", sessionID, user.User.ID)).Code)

	rec := a.do(http.MethodGet, "/api/admin/stats", user.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := a.adminToken()

	rec = a.do(http.MethodGet, "/api/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.EqualValues(t, 2, stats["users"])
	assert.EqualValues(t, 1, stats["subscriptions"].(map[string]any)["active"])

	rec = a.do(http.MethodGet, "/api/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []domain.UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)

	rec = a.do(http.MethodGet, "/api/admin/users/"+user.User.ID+"/ledger", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.LedgerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, domain.PaymentPaid, entries[0].PaymentStatus)

	rec = a.do(http.MethodGet, "/api/admin/webhook-events?limit=10", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 1)

	rec = a.do(http.MethodPost, "/api/admin/webhook-events/evt_1/replay", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "skipped", decode(t, rec)["outcome"])

	rec = a.do(http.MethodPost, "/api/admin/webhook-events/evt_missing/replay", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	rec := httptest.NewRecorder()
	handler.NewHealthHandler(ok, nil).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "cache")

	rec = httptest.NewRecorder()
	handler.NewHealthHandler(ok, down).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","database":"ok","cache":"error"}`, rec.Body.String())
}
