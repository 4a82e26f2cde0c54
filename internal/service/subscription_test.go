package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealcart/backend/internal/domain"
	"github.com/mealcart/backend/internal/logger"
)

type mapCache struct {
	mu          sync.Mutex
	recs        map[string]*domain.SubscriptionRecord
	gens        map[string]int64
	sets        int
	invalidated []string
	failGet     bool
}

func newMapCache() *mapCache {
	return &mapCache{recs: make(map[string]*domain.SubscriptionRecord), gens: make(map[string]int64)}
}

func (c *mapCache) Get(_ context.Context, userID string) (*domain.SubscriptionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, errors.New("cache down")
	}
	return c.recs[userID], nil
}

func (c *mapCache) Generation(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

func (c *mapCache) SetIfCurrent(_ context.Context, rec *domain.SubscriptionRecord, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[rec.UserID] != gen {
		return nil
	}
	c.sets++
	c.recs[rec.UserID] = rec
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.recs, id)
		c.gens[id]++
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

func TestStatus_MissingUserHasNoAccess(t *testing.T) {
	h := newHarness(t)

	got, err := h.subs.Status(h.ctx(), "nobody")
	require.NoError(t, err)
	assert.False(t, got.HasAccess)
	assert.False(t, got.TrialActive)
	assert.False(t, got.SubscriptionActive)
}

func TestStatus_TrialThenPaid(t *testing.T) {
	h := newHarness(t)
	userID := h.register("ana@example.com")

	got, err := h.subs.Status(h.ctx(), userID)
	require.NoError(t, err)
	assert.True(t, got.HasAccess)
	assert.True(t, got.TrialActive)
	assert.Equal(t, domain.StatusTrial, got.SubscriptionStatus)

	h.now = t0.Add(8 * 24 * time.Hour)
	got, err = h.subs.Status(h.ctx(), userID)
	require.NoError(t, err)
	assert.False(t, got.HasAccess)

	sessionID := h.openCheckout(userID, "ana@example.com")
	h.completeCheckout("", sessionID, userID, "cus_1", "paid")
	got, err = h.subs.Status(h.ctx(), userID)
	require.NoError(t, err)
	assert.True(t, got.HasAccess)
	assert.True(t, got.SubscriptionActive)
	assert.False(t, got.TrialActive)
}

func TestStatus_ReadThroughCache(t *testing.T) {
	h := newHarness(t)
	cache := newMapCache()
	h.subs.cache = cache
	userID := h.register("ana@example.com")

	_, err := h.subs.Status(h.ctx(), userID)
	require.NoError(t, err)
	_, err = h.subs.Status(h.ctx(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// An applied webhook drops the cached copy.
	sessionID := h.openCheckout(userID, "ana@example.com")
	h.completeCheckout("", sessionID, userID, "cus_1", "paid")
	assert.Contains(t, cache.invalidated, userID)

	got, err := h.subs.Status(h.ctx(), userID)
	require.NoError(t, err)
	assert.True(t, got.SubscriptionActive)

	// A broken cache degrades to the store.
	cache.failGet = true
	got, err = h.subs.Status(h.ctx(), userID)
	require.NoError(t, err)
	assert.True(t, got.SubscriptionActive)
}

// pausingStore runs afterFind once, between loading a record and returning it.
type pausingStore struct {
	domain.SubscriptionStore
	afterFind func()
}

func (s *pausingStore) FindRecord(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	rec, err := s.SubscriptionStore.FindRecord(ctx, userID)
	if hook := s.afterFind; hook != nil {
		s.afterFind = nil
		hook()
	}
	return rec, err
}

func TestStatus_FillRacingWebhookIsDropped(t *testing.T) {
	h := newHarness(t)
	cache := newMapCache()
	h.subs.cache = cache
	userID := h.register("ana@example.com")
	sessionID := h.openCheckout(userID, "ana@example.com")

	store := &pausingStore{SubscriptionStore: h.subs.subs}
	h.subs.subs = store
	store.afterFind = func() {
		out := h.completeCheckout("", sessionID, userID, "cus_1", "paid")
		require.Equal(t, domain.Applied, out.Kind)
	}

	// This read loaded the trial record before the payment committed.
	got, err := h.subs.Status(h.ctx(), userID)
	require.NoError(t, err)
	assert.False(t, got.SubscriptionActive)
	assert.Zero(t, cache.sets)

	got, err = h.subs.Status(h.ctx(), userID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.SubscriptionStatus)
	assert.True(t, got.HasAccess)
	assert.Equal(t, 1, cache.sets)
}

func TestExpirySweeper_ExpiresLapsedRecords(t *testing.T) {
	h := newHarness(t)
	paid := h.subscribe("paid@example.com", "cus_1")
	trial := h.register("trial@example.com")
	notes := &recordingNotifier{}
	sweeper := NewExpirySweeper(h.subs, notes, time.Minute, logger.Discard())

	end := *h.record(paid).SubscriptionEndDate

	// Inside the grace period only the lapsed trial expires.
	h.now = end.Add(time.Hour)
	n, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusActive, h.record(paid).Status)
	assert.Equal(t, domain.StatusExpired, h.record(trial).Status)

	h.now = end.Add(73 * time.Hour)
	n, err = sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusExpired, h.record(paid).Status)

	n, err = sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	var ids []string
	for _, c := range notes.all() {
		assert.Equal(t, "expiry_sweep", c.Cause)
		ids = append(ids, c.UserID)
	}
	assert.ElementsMatch(t, []string{paid, trial}, ids)
}

func TestCounts(t *testing.T) {
	h := newHarness(t)
	h.subscribe("paid@example.com", "cus_1")
	h.register("trial@example.com")

	counts, err := h.subs.Counts(h.ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusActive])
	assert.Equal(t, 1, counts[domain.StatusTrial])
}
