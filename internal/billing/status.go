package billing

import "github.com/mealcart/backend/internal/domain"

// MapGatewayStatus translates a gateway subscription status into the local enum.
// ok is false for statuses with no local meaning.
func MapGatewayStatus(gatewayStatus string) (domain.SubscriptionStatus, bool) {
	switch gatewayStatus {
	case "active":
		return domain.StatusActive, true
	case "trialing":
		return domain.StatusTrial, true
	case "canceled", "cancelled":
		return domain.StatusCancelled, true
	case "incomplete":
		// Awaiting the first payment; no access until it lands.
		return domain.StatusPastDue, true
	case "incomplete_expired", "unpaid":
		return domain.StatusExpired, true
	case "past_due":
		return domain.StatusPastDue, true
	}
	return "", false
}

// MapCheckoutPayment translates a checkout session payment status into a ledger status.
func MapCheckoutPayment(paymentStatus string) domain.PaymentStatus {
	switch paymentStatus {
	case "paid", "no_payment_required":
		return domain.PaymentPaid
	case "", "unpaid":
		return domain.PaymentPending
	}
	return domain.PaymentFailed
}
