package sessions

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type browseState struct {
	Position int
	Order    []string
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemory[browseState]()

	_, ok := store.Get(42)
	assert.False(t, ok)

	store.Put(42, browseState{Position: 3, Order: []string{"a", "b"}})
	got, ok := store.Get(42)
	require.True(t, ok)
	assert.Equal(t, 3, got.Position)
	assert.Equal(t, []string{"a", "b"}, got.Order)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreIsolatesKeys(t *testing.T) {
	store := NewMemory[int]()
	store.Put(1, 10)
	store.Put(2, 20)

	one, _ := store.Get(1)
	two, _ := store.Get(2)
	assert.Equal(t, 10, one)
	assert.Equal(t, 20, two)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemory[int]()
	store.Put(7, 70)
	store.Delete(7)
	_, ok := store.Get(7)
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	store.Delete(7)
	assert.Zero(t, store.Len())
}

func TestMemoryStoreOverwrite(t *testing.T) {
	store := NewMemory[string]()
	store.Put(1, "first")
	store.Put(1, "second")
	got, _ := store.Get(1)
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemory[int]()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			store.Put(id, int(id))
			store.Get(id)
			store.Delete(id)
		}(int64(i))
	}
	wg.Wait()
	assert.Zero(t, store.Len())
}
