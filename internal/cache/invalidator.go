package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	invalidatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustboard_cache_keys_invalidated_total",
		Help: "Cache keys deleted after mutations",
	})
	invalidateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trustboard_cache_invalidate_failures_total",
		Help: "Failed cache invalidation calls",
	})
)

// Invalidator deletes cached views. Implementations must finish before the
// mutating response is returned, so an immediate follow-up read cannot see a
// stale view next to fresh data.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...Key) error
}

// RedisInvalidator deletes view keys from the shared Redis cache.
type RedisInvalidator struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisInvalidator {
	return &RedisInvalidator{client: client}
}

func (i *RedisInvalidator) Invalidate(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	raw := make([]string, len(keys))
	for n, k := range keys {
		raw[n] = k.String()
	}
	if err := i.client.Del(ctx, raw...).Err(); err != nil {
		invalidateFailures.Inc()
		return fmt.Errorf("delete cache keys: %w", err)
	}
	invalidatedTotal.Add(float64(len(keys)))
	return nil
}

// MemoryInvalidator records deletions for tests and for running without a
// cache backend.
type MemoryInvalidator struct {
	mu      sync.Mutex
	deleted []Key
}

func NewMemory() *MemoryInvalidator {
	return &MemoryInvalidator{}
}

func (i *MemoryInvalidator) Invalidate(_ context.Context, keys ...Key) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deleted = append(i.deleted, keys...)
	invalidatedTotal.Add(float64(len(keys)))
	return nil
}

// Deleted returns every key invalidated so far. Test helper.
func (i *MemoryInvalidator) Deleted() []Key {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Key{}, i.deleted...)
}
