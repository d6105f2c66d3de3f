package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore backs the rate limiter with Redis so the bound holds
// across instances. INCR is atomic server-side; EXPIRE NX sets the TTL only
// on the call that created the key.
type RedisCounterStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr %q: %w", key, err)
	}
	return incr.Val(), nil
}
