// Package storage writes generated record artifacts. The local filesystem
// provider is the default; GCS archives records off-host, and the memory
// provider backs tests. The harvester only ever appends whole files, so the
// contract is a single Save.
package storage

import (
	"context"
	"path"
)

// Provider stores one artifact under a path-like object name.
type Provider interface {
	Save(ctx context.Context, objectName string, data []byte) error
}

// NoOpProvider discards everything, for dry runs where records are generated
// and tracked but not kept.
type NoOpProvider struct{}

// Save does nothing.
func (NoOpProvider) Save(context.Context, string, []byte) error { return nil }

// Prefixed nests every object under a fixed prefix. An empty prefix returns
// the provider unchanged.
func Prefixed(p Provider, prefix string) Provider {
	if prefix == "" {
		return p
	}
	return prefixed{p: p, prefix: prefix}
}

type prefixed struct {
	p      Provider
	prefix string
}

func (w prefixed) Save(ctx context.Context, objectName string, data []byte) error {
	return w.p.Save(ctx, path.Join(w.prefix, objectName), data)
}
