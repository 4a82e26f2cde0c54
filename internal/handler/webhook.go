package handler

import (
	"io"
	"net/http"

	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/service"
)

// maxWebhookBody bounds the payload read from the gateway.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhooks *service.WebhookService
}

func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Payment handles POST /webhook/payment. Every accepted outcome, including skipped
// events, is acknowledged with 200 so the gateway stops redelivering.
func (h *WebhookHandler) Payment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		Error(w, r, domain.ErrBadRequest("failed to read body"))
		return
	}

	out := h.webhooks.Handle(r.Context(), body, r.Header.Get(h.webhooks.SignatureHeader()))
	if !out.Accepted() {
		Error(w, r, out.Err)
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"received": true})
}
