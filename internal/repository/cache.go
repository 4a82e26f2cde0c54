package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mealcart/backend/internal/domain"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// StatusCache is a read-through cache of subscription records for the polling endpoint.
// Keys: mealcart:subscription:{user_id} holds the record, mealcart:subscription:gen:{user_id}
// the invalidation counter that guards fills.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// generationTTL outlives any fill by a wide margin; an expired counter reads as 0,
// which only makes pending fills miss.
const generationTTL = 24 * time.Hour

// fillScript sets KEYS[1] only while the counter in KEYS[2] still equals ARGV[1].
var fillScript = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func (c *StatusCache) key(userID string) string {
	return "mealcart:subscription:" + userID
}

func (c *StatusCache) genKey(userID string) string {
	return "mealcart:subscription:gen:" + userID
}

// Get returns (nil, nil) on a miss.
func (c *StatusCache) Get(ctx context.Context, userID string) (*domain.SubscriptionRecord, error) {
	b, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read status cache: %w", err)
	}
	var rec domain.SubscriptionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cached status: %w", err)
	}
	return &rec, nil
}

// Generation returns the user's invalidation counter, 0 when none was recorded.
func (c *StatusCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read status cache generation: %w", err)
	}
	return gen, nil
}

// SetIfCurrent stores rec unless the user was invalidated after generation was read.
func (c *StatusCache) SetIfCurrent(ctx context.Context, rec *domain.SubscriptionRecord, generation int64) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	keys := []string{c.key(rec.UserID), c.genKey(rec.UserID)}
	err = fillScript.Run(ctx, c.client, keys, strconv.FormatInt(generation, 10), b, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to write status cache: %w", err)
	}
	return nil
}

// Invalidate bumps each user's generation and drops the cached record in one transaction.
func (c *StatusCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Incr(ctx, c.genKey(id))
			pipe.Expire(ctx, c.genKey(id), generationTTL)
			pipe.Del(ctx, c.key(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate status cache: %w", err)
	}
	return nil
}

// NoopStatusCache always misses.
type NoopStatusCache struct{}

func (NoopStatusCache) Get(context.Context, string) (*domain.SubscriptionRecord, error) {
	return nil, nil
}

func (NoopStatusCache) Generation(context.Context, string) (int64, error) { return 0, nil }

func (NoopStatusCache) SetIfCurrent(context.Context, *domain.SubscriptionRecord, int64) error {
	return nil
}

func (NoopStatusCache) Invalidate(context.Context, ...string) error { return nil }
