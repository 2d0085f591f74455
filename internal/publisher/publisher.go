// Package publisher announces finished deliveries so downstream catalog
// ingestion can pick up new record files without polling the output folder.
package publisher

import "context"

// Notification describes one delivered record.
type Notification struct {
	Journal      string `json:"journal"`
	URL          string `json:"url"`
	DeliveryMode string `json:"delivery_mode"`
	ContentHash  string `json:"content_hash"`
	Object       string `json:"object"`
}

// Publisher sends delivery notifications.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
	Close() error
}

// NoOpPublisher drops notifications, for NONE-mode and test runs.
type NoOpPublisher struct{}

// Publish does nothing.
func (NoOpPublisher) Publish(context.Context, Notification) error { return nil }

// Close does nothing.
func (NoOpPublisher) Close() error { return nil }
