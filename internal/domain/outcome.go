package domain

import "fmt"

// OutcomeKind tags the result of applying one webhook event.
type OutcomeKind int

const (
	Applied OutcomeKind = iota
	Skipped
	Rejected
)

func (k OutcomeKind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// SkipReason explains why an accepted event changed nothing.
type SkipReason string

const (
	ReasonDuplicate     SkipReason = "stale_or_duplicate"
	ReasonNotFound      SkipReason = "record_not_found"
	ReasonUnhandledKind SkipReason = "unhandled_kind"
	ReasonUnknownStatus SkipReason = "unknown_gateway_status"

	// ReasonSubscriptionMismatch: the event names a gateway subscription other than the
	// one the record points at (a replaced subscription).
	ReasonSubscriptionMismatch SkipReason = "subscription_mismatch"
	// ReasonPeriodLapsed: the gateway reports active but the paid period already ended.
	ReasonPeriodLapsed SkipReason = "period_lapsed"
)

// Outcome is what a transition did. Rejected outcomes carry the error kind in Err.
type Outcome struct {
	Kind   OutcomeKind
	Reason SkipReason
	Err    error
}

func AppliedOutcome() Outcome {
	return Outcome{Kind: Applied}
}

func SkippedOutcome(reason SkipReason) Outcome {
	return Outcome{Kind: Skipped, Reason: reason}
}

func RejectedOutcome(err error) Outcome {
	return Outcome{Kind: Rejected, Err: err}
}

// Accepted reports whether the gateway should receive a 2xx acknowledgment.
func (o Outcome) Accepted() bool {
	return o.Kind != Rejected
}

func (o Outcome) String() string {
	switch o.Kind {
	case Skipped:
		return fmt.Sprintf("skipped(%s)", o.Reason)
	case Rejected:
		return fmt.Sprintf("rejected(%v)", o.Err)
	}
	return o.Kind.String()
}
