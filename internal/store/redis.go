package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimKeyPrefix = "stripe_event:"

type RedisStore struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func claimKey(stripeEventID string) string {
	return claimKeyPrefix + stripeEventID
}

// ClaimEvent marks a Stripe event id as being handled by owner. It returns
// false when another delivery already holds the claim.
func (s *RedisStore) ClaimEvent(ctx context.Context, stripeEventID, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, claimKey(stripeEventID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming event %s: %w", stripeEventID, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// ReleaseEvent drops a claim held by owner so a later Stripe retry can
// take it. Claims held by someone else are left alone.
func (s *RedisStore) ReleaseEvent(ctx context.Context, stripeEventID, owner string) error {
	if err := releaseScript.Run(ctx, s.client, []string{claimKey(stripeEventID)}, owner).Err(); err != nil {
		return fmt.Errorf("releasing event %s: %w", stripeEventID, err)
	}
	return nil
}
