package t212

import (
	"sync"
	"time"
)

// ttlCache memoizes a single fetched value with an explicit expiry
// check. Metadata endpoints change rarely; a stale read within the TTL
// is acceptable.
type ttlCache[T any] struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	value     T
	fetchedAt time.Time
}

func newTTLCache[T any](ttl time.Duration, now func() time.Time) *ttlCache[T] {
	return &ttlCache[T]{ttl: ttl, now: now}
}

// get returns the cached value, refetching when the entry is missing or
// older than the TTL. Fetch errors are returned without poisoning a
// previously cached value.
func (c *ttlCache[T]) get(fetch func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) <= c.ttl {
		return c.value, nil
	}

	value, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}

	c.value = value
	c.fetchedAt = c.now()
	return value, nil
}
