package session

import (
	"context"
	"sync"
)

// Store persists the session triple across process restarts.
//
// Load returns (nil, nil) when no complete session exists — absence is a state,
// not an error. Save replaces all three entries together. Clear removes them
// and is idempotent. Implementations must be safe for concurrent use.
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in process memory. It is the default store and
// the one tests use; sessions do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	current *Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the held session, or nil when absent or incomplete.
func (m *MemoryStore) Load(_ context.Context) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.current.Complete() {
		return nil, nil
	}
	return m.current.Clone(), nil
}

// Save replaces the held session with a copy of s.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s.Clone()
	return nil
}

// Clear drops the held session. Safe to call when nothing is stored.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}
