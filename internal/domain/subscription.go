package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the local billing state of a user.
type SubscriptionStatus string

const (
	StatusTrial     SubscriptionStatus = "trial"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusPastDue, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Account roles carried in the JWT.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a registered account. The billing columns form the Subscription Record.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // bcrypt hash, never serialized
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Subscription SubscriptionRecord `json:"subscription"`
}

// SubscriptionRecord is the per-user billing state. Only the subscription state machine writes it.
type SubscriptionRecord struct {
	UserID                string             `json:"user_id"`
	Status                SubscriptionStatus `json:"subscription_status"`
	TrialEndDate          *time.Time         `json:"trial_end_date,omitempty"`
	SubscriptionStartDate *time.Time         `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time         `json:"subscription_end_date,omitempty"`
	NextBillingDate       *time.Time         `json:"next_billing_date,omitempty"`
	CancelledAt           *time.Time         `json:"cancelled_at,omitempty"`
	GatewayCustomerID     string             `json:"gateway_customer_id,omitempty"`
	GatewaySubscriptionID string             `json:"gateway_subscription_id,omitempty"`
	PaymentFailureCount   int                `json:"payment_failure_count"`
	LastInvoiceID         string             `json:"last_invoice_id,omitempty"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// Activation carries the effect of a paid checkout on the Subscription Record.
type Activation struct {
	UserID                string
	Start                 time.Time
	End                   time.Time
	GatewayCustomerID     string
	GatewaySubscriptionID string
	At                    time.Time
}

// Renewal is a compare-and-set extension of the current billing period.
type Renewal struct {
	UserID        string
	PreviousEnd   *time.Time
	PreviousState SubscriptionStatus
	NewEnd        time.Time
	InvoiceID     string
	At            time.Time
}

// ExpirySweep selects records whose paid period or trial has lapsed.
type ExpirySweep struct {
	PaidBefore  time.Time
	TrialBefore time.Time
	At          time.Time
}

// RegisterRequest is the validated input for creating an account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest is the validated input for logging in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// LoginResponse is the API response after successful login.
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// JWTClaims represents the JWT payload.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserResponse is the safe API response for a user (no password).
type UserResponse struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	Role               string             `json:"role"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	TrialEndDate       *time.Time         `json:"trial_end_date,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
}

// NewUserID generates a new UUID for a user.
func NewUserID() string {
	return uuid.New().String()
}
