// Package counter provides counter-store implementations for the rate
// limiter: an in-memory map for single-instance deployments and a Redis
// store for shared limits across instances.
package counter

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold bounds how large the map may grow before expired entries
// are swept during an insert.
const pruneThreshold = 4096

// InMemoryCounterStore keeps fixed-window counters in a mutex-guarded map.
// Counters are per process: across multiple instances limiting is
// best-effort. Expired entries are pruned opportunistically since window keys
// are never reused.
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*entry
}

type entry struct {
	count     int64
	expiresAt time.Time
}

func NewInMemory() *InMemoryCounterStore {
	return &InMemoryCounterStore{counters: make(map[string]*entry)}
}

// Incr atomically increments the counter at key. Holding the store mutex for
// the whole read-modify-write keeps concurrent callers from both observing a
// pre-increment value.
func (s *InMemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.counters[key]
	if ok && now.After(e.expiresAt) {
		delete(s.counters, key)
		ok = false
	}
	if !ok {
		if len(s.counters) >= pruneThreshold {
			s.prune(now)
		}
		e = &entry{expiresAt: now.Add(ttl)}
		s.counters[key] = e
	}
	e.count++
	return e.count, nil
}

// Len reports live (non-expired) counters. Test helper.
func (s *InMemoryCounterStore) Len() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.counters {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}

// prune removes expired entries. Must be called holding s.mu.
func (s *InMemoryCounterStore) prune(now time.Time) {
	for k, e := range s.counters {
		if now.After(e.expiresAt) {
			delete(s.counters, k)
		}
	}
}
