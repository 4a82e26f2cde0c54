package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/logger"
)

type published struct {
	key     string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{key: key, payload: payload})
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeHub struct {
	mu   sync.Mutex
	sent map[string][][]byte
}

func (h *fakeHub) Broadcast(userID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent == nil {
		h.sent = make(map[string][][]byte)
	}
	h.sent[userID] = append(h.sent[userID], payload)
}

func TestChangeNotifier_PublishesFreshStatus(t *testing.T) {
	h := newHarness(t)
	pub := &fakePublisher{}
	hub := &fakeHub{}
	notifier := NewChangeNotifier(h.subs, pub, hub, logger.Discard())
	h.webhooks.notifier = notifier

	userID := h.subscribe("ana@example.com", "cus_1")

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, RoutingSubscriptionChanged, pub.msgs[0].key)

	var msg ChangeMessage
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &msg))
	assert.Equal(t, userID, msg.UserID)
	assert.True(t, msg.Access.SubscriptionActive)
	assert.Equal(t, domain.StatusActive, msg.Access.SubscriptionStatus)

	require.Len(t, hub.sent[userID], 1)
	assert.JSONEq(t, string(pub.msgs[0].payload), string(hub.sent[userID][0]))
}

func TestChangeNotifier_BusFailureStillReachesHub(t *testing.T) {
	h := newHarness(t)
	pub := &fakePublisher{err: errors.New("broker gone")}
	hub := &fakeHub{}
	notifier := NewChangeNotifier(h.subs, pub, hub, logger.Discard())

	userID := h.register("ana@example.com")
	notifier.SubscriptionChanged(context.Background(), Change{UserID: userID, Cause: "test", At: h.now})

	assert.Len(t, pub.msgs, 1)
	assert.Len(t, hub.sent[userID], 1)
}
