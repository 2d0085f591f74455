package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalProvider writes artifacts under a base directory. Files appear
// atomically via a temp-file rename, so a crashed run never leaves a
// half-written record file for downstream ingestion to trip on.
type LocalProvider struct {
	baseDir string
}

// NewLocalProvider ensures the base directory exists.
func NewLocalProvider(baseDir string) (*LocalProvider, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", baseDir, err)
	}
	return &LocalProvider{baseDir: baseDir}, nil
}

// Save implements Provider.
func (p *LocalProvider) Save(_ context.Context, objectName string, data []byte) error {
	target := filepath.Join(p.baseDir, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", objectName, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", objectName, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", objectName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", objectName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s into place: %w", objectName, err)
	}
	return nil
}
