package tracking

import (
	"context"
	"sync"
	"time"
)

type memoryKey struct {
	mode string
	url  string
}

// MemoryTracker keeps delivery state in process memory. It backs tests and
// runs without a database; state does not survive the process.
type MemoryTracker struct {
	mu      sync.Mutex
	entries map[memoryKey]Entry
	now     func() time.Time
}

// NewMemoryTracker builds an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		entries: make(map[memoryKey]Entry),
		now:     time.Now,
	}
}

// HasAlreadyDelivered implements Tracker.
func (m *MemoryTracker) HasAlreadyDelivered(_ context.Context, mode, url, hash string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[memoryKey{mode: mode, url: url}]
	if !ok {
		return false, "", nil
	}
	return entry.ContentHash == hash && entry.LastError == "", entry.LastError, nil
}

// RecordDelivery implements Tracker. A later attempt for the same key
// overwrites the earlier one.
func (m *MemoryTracker) RecordDelivery(_ context.Context, mode, url, journalName, hash, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memoryKey{mode: mode, url: url}] = Entry{
		URL:          url,
		DeliveryMode: mode,
		JournalName:  journalName,
		ContentHash:  hash,
		LastError:    errMsg,
		DeliveredAt:  m.now(),
	}
	return nil
}

// Close implements Tracker.
func (m *MemoryTracker) Close() {}
