// Package idempotency binds retried orders.place requests to their first
// computed outcome. Entries live in a TTL-bounded LRU; a single-flight guard
// keeps concurrent duplicates of one key down to a single computation.
package idempotency

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/efecan0/trading-gateway-go/internal/domain"
)

const DefaultTTL = 300 * time.Second

// maxEntries bounds memory against the live key set; the LRU's internal sweep
// handles expiry.
const maxEntries = 8192

type inflight struct {
	done   chan struct{}
	result domain.OrderResult
}

type Cache struct {
	entries *expirable.LRU[string, domain.OrderResult]

	mu       sync.Mutex
	inflight map[string]*inflight
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:  expirable.NewLRU[string, domain.OrderResult](maxEntries, nil, ttl),
		inflight: make(map[string]*inflight),
	}
}

// Get returns the cached outcome; expired entries are evicted on read.
func (c *Cache) Get(key string) (domain.OrderResult, bool) {
	return c.entries.Get(key)
}

// Put overwrites unconditionally.
func (c *Cache) Put(key string, result domain.OrderResult) {
	c.entries.Add(key, result)
}

// Bind returns the outcome bound to key, computing it at most once. The
// second return reports a replay: true when the outcome came from the cache
// or from another in-flight computation of the same key.
func (c *Cache) Bind(key string, compute func() domain.OrderResult) (domain.OrderResult, bool) {
	c.mu.Lock()
	if cached, ok := c.entries.Get(key); ok {
		c.mu.Unlock()
		return cached, true
	}
	if fl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-fl.done
		return fl.result, true
	}
	fl := &inflight{done: make(chan struct{})}
	c.inflight[key] = fl
	c.mu.Unlock()

	fl.result = compute()

	c.mu.Lock()
	c.entries.Add(key, fl.result)
	delete(c.inflight, key)
	c.mu.Unlock()
	close(fl.done)

	return fl.result, false
}

func (c *Cache) Len() int {
	return c.entries.Len()
}
