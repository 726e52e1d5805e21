// Package sessions provides the conversation-keyed session store abstraction
// shared by the authoring and browse state machines. The in-memory
// implementation is the default; the interface leaves room for an external
// backend without touching call sites.
package sessions

import "sync"

// Store holds per-conversation session state.
type Store[S any] interface {
	// Get returns the session for the conversation, if any.
	Get(conv int64) (S, bool)

	// Put installs or replaces the session for the conversation.
	Put(conv int64, session S)

	// Delete discards the session for the conversation.
	Delete(conv int64)

	// Len reports the number of live sessions.
	Len() int
}

// Memory is a mutex-guarded map-backed Store.
type Memory[S any] struct {
	mu       sync.RWMutex
	sessions map[int64]S
}

// NewMemory returns an empty in-memory session store.
func NewMemory[S any]() *Memory[S] {
	return &Memory[S]{sessions: make(map[int64]S)}
}

func (m *Memory[S]) Get(conv int64) (S, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[conv]
	return s, ok
}

func (m *Memory[S]) Put(conv int64, session S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[conv] = session
}

func (m *Memory[S]) Delete(conv int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, conv)
}

func (m *Memory[S]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
