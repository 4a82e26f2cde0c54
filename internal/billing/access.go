package billing

import (
	"time"

	"github.com/mealcart/backend/internal/domain"
)

// Access is the breakdown behind HasAccess.
type Access struct {
	HasAccess          bool                      `json:"has_access"`
	SubscriptionStatus domain.SubscriptionStatus `json:"subscription_status"`
	TrialActive        bool                      `json:"trial_active"`
	SubscriptionActive bool                      `json:"subscription_active"`
	TrialEndDate       *time.Time                `json:"trial_end_date"`
	SubscriptionEnd    *time.Time                `json:"subscription_end_date"`
	NextBillingDate    *time.Time                `json:"next_billing_date"`
}

// HasAccess reports whether the record grants premium access at now.
func HasAccess(rec *domain.SubscriptionRecord, now time.Time) bool {
	return Evaluate(rec, now).HasAccess
}

// Evaluate applies the access policy. A nil record (unknown user) has no access.
func Evaluate(rec *domain.SubscriptionRecord, now time.Time) Access {
	if rec == nil {
		return Access{}
	}

	trialActive := rec.TrialEndDate != nil && now.Before(*rec.TrialEndDate)
	subActive := rec.Status == domain.StatusActive &&
		rec.SubscriptionEndDate != nil && now.Before(*rec.SubscriptionEndDate)

	return Access{
		HasAccess:          trialActive || subActive,
		SubscriptionStatus: rec.Status,
		TrialActive:        trialActive,
		SubscriptionActive: subActive,
		TrialEndDate:       rec.TrialEndDate,
		SubscriptionEnd:    rec.SubscriptionEndDate,
		NextBillingDate:    rec.NextBillingDate,
	}
}

// CanCheckout reports whether a new checkout may be opened: everyone except holders of a
// currently running paid subscription.
func CanCheckout(rec *domain.SubscriptionRecord, now time.Time) bool {
	if rec == nil {
		return true
	}
	return !(rec.Status == domain.StatusActive &&
		rec.SubscriptionEndDate != nil && rec.SubscriptionEndDate.After(now))
}
