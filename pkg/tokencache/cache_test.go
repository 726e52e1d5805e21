package tokencache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is an adjustable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, clock *fakeClock) *Cache {
	t.Helper()
	c := New(WithClock(clock.Now), WithSweepInterval(0))
	t.Cleanup(c.Close)
	return c
}

func TestPutThenResolveWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	c := newTestCache(t, clock)

	key := c.Put("token123abc4", "Example Batch")
	require.NotEmpty(t, key)

	clock.Advance(29 * time.Minute)
	entry, ok := c.Resolve(key)
	require.True(t, ok)
	assert.Equal(t, "token123abc4", entry.Token)
	assert.Equal(t, "Example Batch", entry.Label)
}

func TestResolveAfterTTLReturnsAbsent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	c := newTestCache(t, clock)

	key := c.Put("token123abc4", "Example Batch")
	clock.Advance(31 * time.Minute)

	_, ok := c.Resolve(key)
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "lazy expiry also drops the entry")
}

func TestResolveUnknownKey(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := newTestCache(t, clock)
	_, ok := c.Resolve("nope1234")
	assert.False(t, ok)
}

func TestSweepDropsOnlyExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	c := newTestCache(t, clock)

	old := c.Put("oldtoken0001", "Old")
	clock.Advance(20 * time.Minute)
	fresh := c.Put("newtoken0001", "New")
	clock.Advance(15 * time.Minute) // old is 35m, fresh is 15m

	dropped := c.Sweep()
	assert.Equal(t, 1, dropped)

	_, ok := c.Resolve(old)
	assert.False(t, ok)
	_, ok = c.Resolve(fresh)
	assert.True(t, ok)
}

func TestCustomTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	c := New(WithClock(clock.Now), WithSweepInterval(0), WithTTL(time.Minute))
	t.Cleanup(c.Close)

	key := c.Put("token123abc4", "Short-lived")
	clock.Advance(2 * time.Minute)
	_, ok := c.Resolve(key)
	assert.False(t, ok)
}

func TestBackgroundSweeper(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	c := New(WithClock(clock.Now), WithTTL(time.Minute), WithSweepInterval(5*time.Millisecond))

	c.Put("token123abc4", "Doomed")
	clock.Advance(2 * time.Minute)

	assert.Eventually(t, func() bool { return c.Len() == 0 },
		time.Second, 10*time.Millisecond, "sweeper should drop the expired entry")
	c.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(WithSweepInterval(time.Hour))
	c.Close()
	c.Close()
}

func TestKeysAreUnique(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := newTestCache(t, clock)
	seen := map[string]struct{}{}
	for i := 0; i < 500; i++ {
		key := c.Put("sametoken123", "label")
		_, dup := seen[key]
		require.False(t, dup)
		seen[key] = struct{}{}
	}
}
