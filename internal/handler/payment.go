package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mealcart/backend/internal/contextkeys"
	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/service"
)

// PaymentHandler serves checkout and subscription status endpoints.
type PaymentHandler struct {
	checkout *service.CheckoutService
	subs     *service.SubscriptionService
}

func NewPaymentHandler(checkout *service.CheckoutService, subs *service.SubscriptionService) *PaymentHandler {
	return &PaymentHandler{checkout: checkout, subs: subs}
}

// CreateCheckout handles POST /subscription/create-checkout.
func (h *PaymentHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCheckoutRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, r, err)
		return
	}

	resp, err := h.checkout.CreateCheckout(r.Context(), &req)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// CheckoutStatus handles GET /subscription/checkout/status/{sessionID}.
func (h *PaymentHandler) CheckoutStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.checkout.CheckoutStatus(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// Status handles GET /subscription/status/{userID}. Unknown users get a no-access answer.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	access, err := h.subs.Status(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, access)
}

// PremiumAccess handles GET /api/premium/access. Mounted behind RequireAccess.
func (h *PaymentHandler) PremiumAccess(w http.ResponseWriter, r *http.Request) {
	access, err := h.subs.Status(r.Context(), contextkeys.UserIDFrom(r.Context()))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, access)
}
