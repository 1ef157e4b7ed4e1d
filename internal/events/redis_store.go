package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultProcessedTTL bounds how long a webhook event id is remembered. Stripe
// retries deliveries for up to three days.
const DefaultProcessedTTL = 7 * 24 * time.Hour

// RedisProcessedStore tracks processed events with SETNX keys.
type RedisProcessedStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisProcessedStore(client redis.Cmdable, ttl time.Duration) *RedisProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	return &RedisProcessedStore{client: client, prefix: "slotbook:processed:", ttl: ttl}
}

func (s *RedisProcessedStore) key(provider, eventID string) string {
	return s.prefix + normalizeProvider(provider) + ":" + eventID
}

func (s *RedisProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	n, err := s.client.Exists(ctx, s.key(provider, eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("events: redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	ok, err := s.client.SetNX(ctx, s.key(provider, eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: redis setnx: %w", err)
	}
	return ok, nil
}
