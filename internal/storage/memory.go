package storage

import (
	"context"
	"sync"
)

// MemoryProvider keeps artifacts in a map, for tests.
type MemoryProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryProvider builds an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{objects: make(map[string][]byte)}
}

// Save implements Provider.
func (p *MemoryProvider) Save(_ context.Context, objectName string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[objectName] = append([]byte(nil), data...)
	return nil
}

// Get returns a stored artifact.
func (p *MemoryProvider) Get(objectName string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.objects[objectName]
	return data, ok
}

// Names returns the stored object names.
func (p *MemoryProvider) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.objects))
	for name := range p.objects {
		names = append(names, name)
	}
	return names
}
