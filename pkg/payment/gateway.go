package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrSignature is returned by VerifySignature when the header does not authenticate the payload.
var ErrSignature = errors.New("payment: signature verification failed")

// PaymentGateway defines the interface for payment providers.
type PaymentGateway interface {
	// Name identifies the provider in logs.
	Name() string
	// CreateCheckoutSession opens a hosted checkout session for one subscription.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error)
	// GetCheckoutSession returns the provider's current view of a session.
	GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error)
	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string
	// VerifySignature authenticates a raw webhook payload. It never parses the payload.
	VerifySignature(payload []byte, signature string) error
}

// CheckoutParams describes the session to open.
type CheckoutParams struct {
	UserID     string
	Email      string
	Amount     decimal.Decimal
	Currency   string
	SuccessURL string
	CancelURL  string
}

// Session is a gateway checkout session.
type Session struct {
	ID            string
	URL           string
	Status        string // open, complete, expired
	PaymentStatus string // paid, unpaid, no_payment_required
}

// Session status values shared by both adapters.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"
)
