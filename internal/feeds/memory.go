package feeds

import (
	"context"
	"sync"
	"time"
)

type itemKey struct {
	feed string
	item string
}

// MemoryStore keeps feed state in process memory, for tests and runs without
// a database. Every feed looks new on process start.
type MemoryStore struct {
	mu     sync.Mutex
	builds map[string]time.Time
	items  map[itemKey]bool
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		builds: make(map[string]time.Time),
		items:  make(map[itemKey]bool),
	}
}

// LastBuildDate implements Store.
func (m *MemoryStore) LastBuildDate(_ context.Context, feedURL string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builds[feedURL], nil
}

// SetLastBuildDate implements Store.
func (m *MemoryStore) SetLastBuildDate(_ context.Context, feedURL string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds[feedURL] = t
	return nil
}

// IsItemSeen implements Store.
func (m *MemoryStore) IsItemSeen(_ context.Context, feedURL, itemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[itemKey{feed: feedURL, item: itemID}], nil
}

// MarkItemSeen implements Store.
func (m *MemoryStore) MarkItemSeen(_ context.Context, feedURL, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[itemKey{feed: feedURL, item: itemID}] = true
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() {}
