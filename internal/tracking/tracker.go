// Package tracking decides at-most-once delivery of generated records. The
// store keys on (url, delivery mode) and remembers the content hash of the
// last delivery, so a re-harvest of unchanged content is recognized and
// skipped while changed content or a previously failed delivery goes out
// again. It is the single authority for the previously-delivered counts a
// run reports.
package tracking

import (
	"context"
	"time"
)

// Entry is one tracked delivery.
type Entry struct {
	URL          string
	DeliveryMode string
	JournalName  string
	ContentHash  string
	LastError    string
	DeliveredAt  time.Time
}

// Tracker is the delivery tracking contract. Implementations must tolerate
// concurrent readers; writes follow a single-logical-writer-per-run contract
// and are mutex-guarded or upsert-based underneath.
type Tracker interface {
	// HasAlreadyDelivered reports whether (url, mode) was already delivered
	// under this exact hash. The last recorded error text comes along so
	// callers can decide to retry failed deliveries.
	HasAlreadyDelivered(ctx context.Context, mode, url, hash string) (bool, string, error)

	// RecordDelivery stores the outcome of one delivery attempt. An empty
	// errMsg marks success.
	RecordDelivery(ctx context.Context, mode, url, journalName, hash, errMsg string) error

	Close()
}
