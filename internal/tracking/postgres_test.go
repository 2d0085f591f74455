package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestPostgresTrackerHasAlreadyDelivered(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tracker, err := NewPostgresTracker(mock, nil)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT content_hash, last_error FROM delivered_records").
		WithArgs("https://example.org/a", "LIVE").
		WillReturnRows(pgxmock.NewRows([]string{"content_hash", "last_error"}).AddRow("hash-1", ""))

	delivered, lastError, err := tracker.HasAlreadyDelivered(context.Background(), "LIVE", "https://example.org/a", "hash-1")
	require.NoError(t, err)
	require.True(t, delivered)
	require.Empty(t, lastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTrackerNoRowMeansNotDelivered(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tracker, err := NewPostgresTracker(mock, nil)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT content_hash, last_error FROM delivered_records").
		WithArgs("https://example.org/a", "LIVE").
		WillReturnRows(pgxmock.NewRows([]string{"content_hash", "last_error"}))

	delivered, _, err := tracker.HasAlreadyDelivered(context.Background(), "LIVE", "https://example.org/a", "hash-1")
	require.NoError(t, err)
	require.False(t, delivered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTrackerPreviousErrorAllowsRetry(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tracker, err := NewPostgresTracker(mock, nil)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT content_hash, last_error FROM delivered_records").
		WithArgs("https://example.org/a", "LIVE").
		WillReturnRows(pgxmock.NewRows([]string{"content_hash", "last_error"}).AddRow("hash-1", "upload refused"))

	delivered, lastError, err := tracker.HasAlreadyDelivered(context.Background(), "LIVE", "https://example.org/a", "hash-1")
	require.NoError(t, err)
	require.False(t, delivered)
	require.Equal(t, "upload refused", lastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTrackerRecordDelivery(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tracker, err := NewPostgresTracker(mock, nil)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	tracker.now = func() time.Time { return now }

	mock.ExpectExec("INSERT INTO delivered_records").
		WithArgs("https://example.org/a", "LIVE", "Theo Journal", "hash-1", "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = tracker.RecordDelivery(context.Background(), "LIVE", "https://example.org/a", "Theo Journal", "hash-1", "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
