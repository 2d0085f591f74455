package storage

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSProvider archives record artifacts in a Google Cloud Storage bucket.
// Authentication goes through Application Default Credentials.
type GCSProvider struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewGCSProvider builds a client and verifies the bucket is reachable, so a
// misconfigured archive fails at startup instead of at the end of a run.
func NewGCSProvider(ctx context.Context, bucket string, logger *zap.Logger) (*GCSProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close gcs client after attrs failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("stat gcs bucket %q: %w", bucket, err)
	}
	return &GCSProvider{client: client, bucket: bucket, logger: logger}, nil
}

// Save implements Provider. The upload is finalized on Close.
func (g *GCSProvider) Save(ctx context.Context, objectName string, data []byte) error {
	wc := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		if cerr := wc.Close(); cerr != nil {
			g.logger.Warn("close gcs writer after write failure", zap.Error(cerr))
		}
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("finalize gcs object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the client.
func (g *GCSProvider) Close() error {
	return g.client.Close()
}
