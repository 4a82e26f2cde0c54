package domain

import (
	"context"
	"time"
)

// AccountStore persists user accounts.
type AccountStore interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Exists(ctx context.Context, email string) (bool, error)
	ListAll(ctx context.Context) ([]*User, error)
}

// SubscriptionStore reads and conditionally updates Subscription Records. Every write
// re-checks its precondition in the UPDATE itself; a false/empty result means the
// precondition no longer held (or the row does not exist).
type SubscriptionStore interface {
	FindRecord(ctx context.Context, userID string) (*SubscriptionRecord, error)
	FindRecordByCustomerID(ctx context.Context, customerID string) (*SubscriptionRecord, error)
	Activate(ctx context.Context, a Activation) (bool, error)
	Renew(ctx context.Context, r Renewal) (bool, error)
	// RecordPaymentFailure increments the failure counter and expires the record once the
	// counter reaches threshold. Returns nil when no record has the customer id.
	RecordPaymentFailure(ctx context.Context, customerID string, threshold int, at time.Time) (*SubscriptionRecord, error)
	// SetStatus overwrites the status of the record owning customerID, provided subscriptionID
	// matches the stored one (either side empty matches). Returns the user id or "".
	SetStatus(ctx context.Context, customerID, subscriptionID string, status SubscriptionStatus, at time.Time) (string, error)
	// Cancel moves a not-yet-cancelled record to cancelled, stamping cancelledAt.
	// Returns the user id or "".
	Cancel(ctx context.Context, customerID, subscriptionID string, cancelledAt, at time.Time) (string, error)
	ExpireLapsed(ctx context.Context, sweep ExpirySweep) ([]string, error)
	CountByStatus(ctx context.Context) (map[SubscriptionStatus]int, error)
}

// LedgerStore persists checkout attempts.
type LedgerStore interface {
	Create(ctx context.Context, e *LedgerEntry) error
	FindBySessionID(ctx context.Context, sessionID string) (*LedgerEntry, error)
	ListByUser(ctx context.Context, userID string) ([]*LedgerEntry, error)
	// MarkPaid moves an entry that is not yet paid to paid and stamps completed_at.
	// Returns nil when nothing changed.
	MarkPaid(ctx context.Context, sessionID, gatewayStatus string, at time.Time) (*LedgerEntry, error)
	// MarkUnpaid mirrors a non-paid gateway outcome onto a pending entry.
	MarkUnpaid(ctx context.Context, sessionID string, status PaymentStatus, gatewayStatus string, at time.Time) (bool, error)
}

// WebhookEvent is one archived gateway event.
type WebhookEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Payload    string    `json:"-"` // sealed
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// EventArchive records processed gateway events. Claim returns false when the event id
// was already recorded.
type EventArchive interface {
	Claim(ctx context.Context, ev *WebhookEvent) (bool, error)
	// Reclaim reopens an event that was skipped because its record did not exist yet.
	Reclaim(ctx context.Context, eventID string) (bool, error)
	Finish(ctx context.Context, eventID string, outcome Outcome) error
	Get(ctx context.Context, eventID string) (*WebhookEvent, error)
	List(ctx context.Context, limit int) ([]*WebhookEvent, error)
}

// Transactor runs fn inside one database transaction carried on the context.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
