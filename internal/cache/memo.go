// Package cache memoizes expensive read-side computations by content key.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long a computed value is served before recomputing.
const DefaultTTL = 5 * time.Minute

// Entry is a memoized value and when it was computed.
type Entry[V any] struct {
	Value      V
	ComputedAt time.Time
}

// Memo caches the result of a computation per key. Callers pick keys that
// change whenever the inputs change (a content hash), so a hit is always
// valid for its inputs. Freshness is judged on the injected clock; the
// underlying ttlcache expiry runs on wall time and only bounds memory.
type Memo[V any] struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, Entry[V]]
	clock clockwork.Clock
	ttl   time.Duration
}

// New returns a memo whose entries expire after ttl (DefaultTTL when zero).
func New[V any](ttl time.Duration, clock clockwork.Clock) *Memo[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memo[V]{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, Entry[V]](ttl),
			ttlcache.WithDisableTouchOnHit[string, Entry[V]](),
		),
		clock: clock,
		ttl:   ttl,
	}
}

// lookup returns the entry for key if it is younger than the TTL on m.clock.
func (m *Memo[V]) lookup(key string) (Entry[V], bool) {
	item := m.cache.Get(key)
	if item == nil {
		return Entry[V]{}, false
	}
	e := item.Value()
	if m.clock.Since(e.ComputedAt) >= m.ttl {
		m.cache.Delete(key)
		return Entry[V]{}, false
	}
	return e, true
}

// Get returns the cached entry for key or computes, stores and returns it.
// Concurrent misses on the same memo are serialized so the computation runs
// once. Errors are not cached.
func (m *Memo[V]) Get(ctx context.Context, key string, compute func(context.Context) (V, error)) (Entry[V], bool, error) {
	if e, ok := m.lookup(key); ok {
		return e, true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.lookup(key); ok {
		return e, true, nil
	}

	v, err := compute(ctx)
	if err != nil {
		return Entry[V]{}, false, err
	}
	e := Entry[V]{Value: v, ComputedAt: m.clock.Now().UTC()}
	m.cache.Set(key, e, ttlcache.DefaultTTL)
	return e, false, nil
}

// Invalidate drops every entry.
func (m *Memo[V]) Invalidate() {
	m.cache.DeleteAll()
}

// Len reports how many entries are cached.
func (m *Memo[V]) Len() int {
	return m.cache.Len()
}
