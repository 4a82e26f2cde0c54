package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Billing error kinds. Service code wraps these so callers can branch with errors.Is.
var (
	ErrInvalidSignature      = errors.New("billing: invalid webhook signature")
	ErrMalformedPayload      = errors.New("billing: malformed webhook payload")
	ErrAlreadySubscribed     = errors.New("billing: already subscribed")
	ErrGatewayUnavailable    = errors.New("billing: payment gateway unavailable")
	ErrRecordNotFound        = errors.New("billing: record not found")
	ErrStaleOrDuplicateEvent = errors.New("billing: stale or duplicate event")
)

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg, Err: ErrRecordNotFound}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: msg}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: msg}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: msg, Err: err}
}

// Billing constructors.

func AlreadySubscribed() *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: "already subscribed", Err: ErrAlreadySubscribed}
}

// GatewayUnavailable keeps the gateway's own error in the chain next to ErrGatewayUnavailable.
func GatewayUnavailable(err error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: "payment service unavailable, try again later",
		Err:     fmt.Errorf("%w: %w", ErrGatewayUnavailable, err),
	}
}

func InvalidSignature(err error) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: "invalid signature", Err: fmt.Errorf("%w: %w", ErrInvalidSignature, err)}
}

func MalformedPayload(err error) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: "malformed payload", Err: fmt.Errorf("%w: %w", ErrMalformedPayload, err)}
}

// Retryable marks failures the payment gateway should redeliver (timeouts, storage errors).
func Retryable(msg string, err error) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
