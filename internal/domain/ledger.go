package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the local outcome of one checkout attempt.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// LedgerEntry records one checkout attempt. SessionID is the idempotency key for every
// webhook that references the session.
type LedgerEntry struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	UserID        string          `json:"user_id"`
	UserEmail     string          `json:"user_email"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	GatewayStatus string          `json:"gateway_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// NewLedgerEntry builds a pending entry for a freshly opened gateway session.
func NewLedgerEntry(sessionID, userID, email string, amount decimal.Decimal, currency, gatewayStatus string, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		UserID:        userID,
		UserEmail:     email,
		Amount:        amount,
		Currency:      currency,
		PaymentStatus: PaymentPending,
		GatewayStatus: gatewayStatus,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CreateCheckoutRequest is the body of POST /subscription/create-checkout.
type CreateCheckoutRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	UserEmail string `json:"user_email" validate:"required,email"`
	OriginURL string `json:"origin_url" validate:"required,url"`
}

// CheckoutResponse returns the URL to redirect the user to for payment.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// CheckoutStatusResponse is the ledger entry plus the gateway's live view of the session.
type CheckoutStatusResponse struct {
	SessionID     string          `json:"session_id"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	GatewayStatus string          `json:"gateway_status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}
