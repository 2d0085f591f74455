package tracking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryTrackerUnknownURL(t *testing.T) {
	t.Parallel()

	tracker := NewMemoryTracker()
	delivered, lastError, err := tracker.HasAlreadyDelivered(context.Background(), "LIVE", "https://example.org/a", "hash-1")
	require.NoError(t, err)
	require.False(t, delivered)
	require.Empty(t, lastError)
}

func TestMemoryTrackerUnchangedContentIsDeduplicated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := NewMemoryTracker()
	require.NoError(t, tracker.RecordDelivery(ctx, "LIVE", "https://example.org/a", "Theo Journal", "hash-1", ""))

	delivered, _, err := tracker.HasAlreadyDelivered(ctx, "LIVE", "https://example.org/a", "hash-1")
	require.NoError(t, err)
	require.True(t, delivered)

	// Changed content goes out again.
	delivered, _, err = tracker.HasAlreadyDelivered(ctx, "LIVE", "https://example.org/a", "hash-2")
	require.NoError(t, err)
	require.False(t, delivered)
}

func TestMemoryTrackerFailedDeliveryAllowsRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := NewMemoryTracker()
	require.NoError(t, tracker.RecordDelivery(ctx, "LIVE", "https://example.org/a", "Theo Journal", "hash-1", "upload refused"))

	delivered, lastError, err := tracker.HasAlreadyDelivered(ctx, "LIVE", "https://example.org/a", "hash-1")
	require.NoError(t, err)
	require.False(t, delivered)
	require.Equal(t, "upload refused", lastError)
}

func TestMemoryTrackerModesAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := NewMemoryTracker()
	require.NoError(t, tracker.RecordDelivery(ctx, "TEST", "https://example.org/a", "Theo Journal", "hash-1", ""))

	delivered, _, err := tracker.HasAlreadyDelivered(ctx, "LIVE", "https://example.org/a", "hash-1")
	require.NoError(t, err)
	require.False(t, delivered)
}
