package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedEvent is returned by ParseEvent for payloads that are not a usable gateway event.
var ErrMalformedEvent = errors.New("payment: malformed event")

// Kind is a gateway event type.
type Kind string

const (
	KindCheckoutCompleted     Kind = "checkout.session.completed"
	KindInvoicePaid           Kind = "invoice.payment_succeeded"
	KindInvoiceFailed         Kind = "invoice.payment_failed"
	KindSubscriptionUpdated   Kind = "customer.subscription.updated"
	KindSubscriptionCancelled Kind = "customer.subscription.deleted"
)

// Event is a verified and parsed gateway event. Data holds exactly one of the
// variants below; anything the router does not act on is Unrecognized.
type Event struct {
	ID      string
	Kind    Kind
	Created time.Time
	Data    EventData
}

// EventData is the closed set of event payloads.
type EventData interface {
	eventData()
}

// CheckoutCompleted reports that a hosted checkout session finished.
type CheckoutCompleted struct {
	SessionID      string
	Status         string
	PaymentStatus  string
	CustomerID     string
	SubscriptionID string
	UserID         string // client_reference_id
}

// InvoicePaid reports a successful recurring charge.
type InvoicePaid struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	BillingReason  string
}

// BillingReasonCreate marks the invoice of a subscription's first period, which the
// checkout completion already paid for.
const BillingReasonCreate = "subscription_create"

// InvoiceFailed reports a failed recurring charge.
type InvoiceFailed struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	AttemptCount   int
}

// SubscriptionChanged carries the gateway's new subscription status.
type SubscriptionChanged struct {
	SubscriptionID string
	CustomerID     string
	Status         string
}

// SubscriptionCancelled reports that the gateway ended a subscription.
type SubscriptionCancelled struct {
	SubscriptionID string
	CustomerID     string
	CanceledAt     *time.Time
}

// Unrecognized is any valid event whose type is not handled.
type Unrecognized struct {
	Type string
}

func (CheckoutCompleted) eventData()     {}
func (InvoicePaid) eventData()           {}
func (InvoiceFailed) eventData()         {}
func (SubscriptionChanged) eventData()   {}
func (SubscriptionCancelled) eventData() {}
func (Unrecognized) eventData()          {}

type rawEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type rawCheckoutSession struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
}

type rawInvoice struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	AttemptCount  int    `json:"attempt_count"`
	BillingReason string `json:"billing_reason"`
}

type rawSubscription struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	Status     string `json:"status"`
	CanceledAt int64  `json:"canceled_at"`
}

// ParseEvent decodes a gateway event envelope into the closed variant. It must only be
// called on payloads whose signature has been verified.
func ParseEvent(payload []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	if len(raw.Data.Object) == 0 || string(raw.Data.Object) == "null" {
		return nil, fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
	}

	ev := &Event{ID: raw.ID, Kind: Kind(raw.Type)}
	if raw.Created > 0 {
		ev.Created = time.Unix(raw.Created, 0).UTC()
	}

	var err error
	switch ev.Kind {
	case KindCheckoutCompleted:
		ev.Data, err = parseCheckoutSession(raw.Data.Object)
	case KindInvoicePaid, KindInvoiceFailed:
		ev.Data, err = parseInvoice(ev.Kind, raw.Data.Object)
	case KindSubscriptionUpdated, KindSubscriptionCancelled:
		ev.Data, err = parseSubscription(ev.Kind, raw.Data.Object)
	default:
		ev.Data = Unrecognized{Type: raw.Type}
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func parseCheckoutSession(obj json.RawMessage) (EventData, error) {
	var s rawCheckoutSession
	if err := json.Unmarshal(obj, &s); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", ErrMalformedEvent, err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("%w: checkout session without id", ErrMalformedEvent)
	}
	return CheckoutCompleted{
		SessionID:      s.ID,
		Status:         s.Status,
		PaymentStatus:  s.PaymentStatus,
		CustomerID:     s.Customer,
		SubscriptionID: s.Subscription,
		UserID:         s.ClientReferenceID,
	}, nil
}

func parseInvoice(kind Kind, obj json.RawMessage) (EventData, error) {
	var inv rawInvoice
	if err := json.Unmarshal(obj, &inv); err != nil {
		return nil, fmt.Errorf("%w: invoice: %v", ErrMalformedEvent, err)
	}
	if inv.ID == "" || inv.Customer == "" {
		return nil, fmt.Errorf("%w: invoice without id or customer", ErrMalformedEvent)
	}
	if kind == KindInvoicePaid {
		return InvoicePaid{
			InvoiceID:      inv.ID,
			CustomerID:     inv.Customer,
			SubscriptionID: inv.Subscription,
			BillingReason:  inv.BillingReason,
		}, nil
	}
	return InvoiceFailed{
		InvoiceID:      inv.ID,
		CustomerID:     inv.Customer,
		SubscriptionID: inv.Subscription,
		AttemptCount:   inv.AttemptCount,
	}, nil
}

func parseSubscription(kind Kind, obj json.RawMessage) (EventData, error) {
	var sub rawSubscription
	if err := json.Unmarshal(obj, &sub); err != nil {
		return nil, fmt.Errorf("%w: subscription: %v", ErrMalformedEvent, err)
	}
	if sub.ID == "" || sub.Customer == "" {
		return nil, fmt.Errorf("%w: subscription without id or customer", ErrMalformedEvent)
	}
	if kind == KindSubscriptionUpdated {
		return SubscriptionChanged{SubscriptionID: sub.ID, CustomerID: sub.Customer, Status: sub.Status}, nil
	}
	out := SubscriptionCancelled{SubscriptionID: sub.ID, CustomerID: sub.Customer}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		out.CanceledAt = &t
	}
	return out, nil
}
