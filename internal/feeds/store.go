// Package feeds handles RSS/Atom syndication state: fetching and parsing a
// journal's feed, remembering the feed's last build date so unchanged feeds
// are skipped wholesale, and tracking which item ids were already seen so an
// item is harvested at most once across runs.
package feeds

import (
	"context"
	"time"
)

// Store persists per-feed harvest state. Implementations must tolerate
// concurrent readers; the dispatcher is the only writer during a run.
type Store interface {
	// LastBuildDate returns the stored build date for a feed, or the zero
	// time when the feed was never harvested.
	LastBuildDate(ctx context.Context, feedURL string) (time.Time, error)

	// SetLastBuildDate records a feed's build date after a harvest.
	SetLastBuildDate(ctx context.Context, feedURL string, t time.Time) error

	// IsItemSeen reports whether an item id was harvested before.
	IsItemSeen(ctx context.Context, feedURL, itemID string) (bool, error)

	// MarkItemSeen records an item id as harvested.
	MarkItemSeen(ctx context.Context, feedURL, itemID string) error

	Close()
}
