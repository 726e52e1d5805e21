// Package tokencache maps compact opaque keys to full batch tokens for a
// bounded time, so interactive controls can reference a token without
// embedding it in size-constrained control identifiers. Losing an entry only
// degrades the affordance; durable state is never touched.
package tokencache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/batchbot/batchbot/pkg/naming"
)

const (
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = 10 * time.Minute
)

// Entry is one cached key→token mapping.
type Entry struct {
	Key       string
	Token     string
	Label     string
	CreatedAt time.Time
}

// Option customizes cache behaviour.
type Option func(*Cache)

// WithTTL overrides how long entries stay resolvable.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithSweepInterval overrides the background sweep cadence. Non-positive
// disables the sweeper; entries still expire lazily on Resolve.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) { c.sweepEvery = d }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is a TTL-bounded key→token map with a periodic background sweep.
type Cache struct {
	ttl        time.Duration
	sweepEvery time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New builds a cache and starts its sweeper.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:        defaultTTL,
		sweepEvery: defaultSweepInterval,
		now:        time.Now,
		logger:     slog.Default().With("component", "token-cache"),
		entries:    map[string]Entry{},
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepEvery > 0 {
		go c.sweepLoop()
	} else {
		close(c.done)
	}
	return c
}

// Put stores the token under a fresh compact key and returns the key.
func (c *Cache) Put(token, label string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := naming.NewCacheKey()
	for _, taken := c.entries[key]; taken; _, taken = c.entries[key] {
		key = naming.NewCacheKey()
	}
	c.entries[key] = Entry{
		Key:       key,
		Token:     token,
		Label:     label,
		CreatedAt: c.now().UTC(),
	}
	return key
}

// Resolve returns the entry for key if it has not expired.
func (c *Cache) Resolve(key string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if c.expired(entry, c.now()) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Entry{}, false
	}
	return entry, true
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes all expired entries immediately and reports how many were
// dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Close stops the background sweeper. The cache stays usable afterwards;
// expiry then happens only lazily.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Cache) sweepLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if dropped := c.Sweep(); dropped > 0 {
				c.logger.Debug("expired token keys swept", "dropped", dropped)
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) expired(entry Entry, now time.Time) bool {
	return now.Sub(entry.CreatedAt) > c.ttl
}
