package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mealcart/backend/internal/billing"
	"github.com/mealcart/backend/internal/eventbus"
)

// RoutingSubscriptionChanged is the routing key of change messages on the bus.
const RoutingSubscriptionChanged = "subscription.changed"

// Broadcaster pushes a payload to the live connections of one user.
type Broadcaster interface {
	Broadcast(userID string, payload []byte)
}

// ChangeMessage is published for every committed subscription change.
type ChangeMessage struct {
	UserID string         `json:"user_id"`
	Cause  string         `json:"cause"`
	At     time.Time      `json:"at"`
	Access billing.Access `json:"access"`
}

// ChangeNotifier fans committed changes out to the message bus and to WebSocket clients.
type ChangeNotifier struct {
	subs      *SubscriptionService
	publisher eventbus.Publisher
	hub       Broadcaster
	logger    *slog.Logger
}

// NewChangeNotifier creates a notifier. hub may be nil.
func NewChangeNotifier(subs *SubscriptionService, publisher eventbus.Publisher, hub Broadcaster, logger *slog.Logger) *ChangeNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeNotifier{subs: subs, publisher: publisher, hub: hub, logger: logger}
}

// SubscriptionChanged reads the fresh status and publishes it. Failures are logged; the
// change itself is already committed.
func (n *ChangeNotifier) SubscriptionChanged(ctx context.Context, change Change) {
	log := n.logger.With(slog.String("user_id", change.UserID), slog.String("cause", change.Cause))

	access, err := n.subs.Status(ctx, change.UserID)
	if err != nil {
		log.Warn("failed to load status for notification", "error", err)
		return
	}

	payload, err := json.Marshal(ChangeMessage{
		UserID: change.UserID,
		Cause:  change.Cause,
		At:     change.At,
		Access: access,
	})
	if err != nil {
		log.Error("failed to encode change message", "error", err)
		return
	}

	if err := n.publisher.Publish(ctx, RoutingSubscriptionChanged, payload); err != nil {
		log.Warn("failed to publish change", "error", err)
	}
	if n.hub != nil {
		n.hub.Broadcast(change.UserID, payload)
	}
}
