package middleware

import (
	"net/http"

	"github.com/mealcart/backend/internal/contextkeys"
	"github.com/mealcart/backend/internal/handler"
	"github.com/mealcart/backend/internal/service"
)

// RequireAccess gates premium routes on the access policy. Must be used after Auth.
// No access is answered with 402 so clients can route the user to checkout.
func RequireAccess(subs *service.SubscriptionService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := contextkeys.UserIDFrom(r.Context())
			if userID == "" {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
				return
			}

			access, err := subs.Status(r.Context(), userID)
			if err != nil {
				handler.Error(w, r, err)
				return
			}
			if !access.HasAccess {
				handler.JSON(w, http.StatusPaymentRequired, map[string]any{
					"error":               "premium access required",
					"subscription_status": access.SubscriptionStatus,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
