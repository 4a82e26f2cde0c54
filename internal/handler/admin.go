package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mealcart/backend/internal/service"
)

// BreakerState reports the payment gateway circuit breaker state.
type BreakerState interface {
	State() string
}

type AdminHandler struct {
	authSvc  *service.AuthService
	subs     *service.SubscriptionService
	checkout *service.CheckoutService
	webhooks *service.WebhookService
	breaker  BreakerState
}

func NewAdminHandler(
	authSvc *service.AuthService,
	subs *service.SubscriptionService,
	checkout *service.CheckoutService,
	webhooks *service.WebhookService,
	breaker BreakerState,
) *AdminHandler {
	return &AdminHandler{authSvc: authSvc, subs: subs, checkout: checkout, webhooks: webhooks, breaker: breaker}
}

// GetStats returns subscription counts per status.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.subs.Counts(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	stats := map[string]any{
		"users":         total,
		"subscriptions": counts,
	}
	if h.breaker != nil {
		stats["gatewayBreaker"] = h.breaker.State()
	}
	JSON(w, http.StatusOK, stats)
}

// ListUsers returns all users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authSvc.ListUsers(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, users)
}

// UserLedger handles GET /api/admin/users/{id}/ledger.
func (h *AdminHandler) UserLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.checkout.Ledger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, entries)
}

// WebhookEvents handles GET /api/admin/webhook-events?limit=N.
func (h *AdminHandler) WebhookEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.webhooks.Events(r.Context(), limit)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, events)
}

// ReplayWebhookEvent handles POST /api/admin/webhook-events/{id}/replay.
func (h *AdminHandler) ReplayWebhookEvent(w http.ResponseWriter, r *http.Request) {
	out, err := h.webhooks.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"outcome": out.Kind.String(),
		"reason":  string(out.Reason),
	})
}
