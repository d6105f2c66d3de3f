package ratelimit

import (
	"context"
	"fmt"
	"time"

	"trustboard/pkg/requestcontext"
)

// CounterStore is the injectable counter capability. The in-memory
// implementation is correct for a single instance; across multiple instances
// without a shared store, limiting degrades to best-effort per instance. The
// Redis implementation gives a global bound.
type CounterStore interface {
	// Incr atomically increments the counter at key and returns the
	// post-increment value. A key created by this call expires after ttl.
	// The increment must be atomic per key: a read-then-write would let two
	// concurrent requests both observe "under limit" and both pass.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter implements fixed-window counting keyed by
// (identity, action, windowIndex). Windows evict lazily: each window's key
// differs by index, and stale keys age out via the store's TTL.
type Limiter struct {
	store  CounterStore
	limits map[Action]Limit
}

func New(store CounterStore, limits map[Action]Limit) *Limiter {
	return &Limiter{store: store, limits: limits}
}

// CheckAndConsume consumes one unit of the identity's budget for action and
// reports whether the call is allowed. Denied calls have still consumed
// nothing observable: the post-increment count is already over the limit, so
// further increments in the same window change no outcome.
func (l *Limiter) CheckAndConsume(ctx context.Context, identity string, action Action) (*Result, error) {
	cfg, ok := l.limits[action]
	if !ok {
		return nil, fmt.Errorf("no rate limit configured for action %q", action)
	}

	now := requestcontext.Now(ctx)
	windowMs := cfg.Window.Milliseconds()
	windowIndex := now.UnixMilli() / windowMs

	key := fmt.Sprintf("rl:%s:%s:%d", action, identity, windowIndex)
	// TTL outlives the window slightly so a counter never vanishes mid-window.
	count, err := l.store.Incr(ctx, key, cfg.Window*2)
	if err != nil {
		return nil, fmt.Errorf("increment counter: %w", err)
	}

	resetIn := time.Duration((windowIndex+1)*windowMs-now.UnixMilli()) * time.Millisecond
	remaining := cfg.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= int64(cfg.Limit),
		Limit:     cfg.Limit,
		Remaining: remaining,
		ResetIn:   resetIn,
	}, nil
}
