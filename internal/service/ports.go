package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mealcart/backend/internal/domain"
)

// StatusCache caches subscription records for the polling endpoint. Every Invalidate
// bumps the user's generation; SetIfCurrent writes only while the generation read
// before the store load is still current, so a fill never outlives a later change.
type StatusCache interface {
	Get(ctx context.Context, userID string) (*domain.SubscriptionRecord, error)
	Generation(ctx context.Context, userID string) (int64, error)
	SetIfCurrent(ctx context.Context, rec *domain.SubscriptionRecord, generation int64) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

// Notifier is told about committed subscription changes.
type Notifier interface {
	SubscriptionChanged(ctx context.Context, change Change)
}

// Change describes one committed transition.
type Change struct {
	UserID string    `json:"user_id"`
	Cause  string    `json:"cause"` // gateway event kind or "expiry_sweep"
	At     time.Time `json:"at"`
}

type noopNotifier struct{}

func (noopNotifier) SubscriptionChanged(context.Context, Change) {}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
