package publisher

import (
	"context"
	"sync"
)

// MemoryPublisher records notifications in memory, for tests.
type MemoryPublisher struct {
	mu   sync.Mutex
	sent []Notification
}

// NewMemoryPublisher builds an empty publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish implements Publisher.
func (m *MemoryPublisher) Publish(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of all published notifications.
func (m *MemoryPublisher) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}

// Close implements Publisher.
func (m *MemoryPublisher) Close() error { return nil }
