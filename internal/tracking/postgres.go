package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// dbConn is the slice of the pgx pool the tracker needs. pgxmock satisfies
// it in tests.
type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTracker persists delivery state in the delivered_records table:
//
//	CREATE TABLE delivered_records (
//	    url           TEXT NOT NULL,
//	    delivery_mode TEXT NOT NULL,
//	    journal_name  TEXT NOT NULL,
//	    content_hash  TEXT NOT NULL,
//	    last_error    TEXT NOT NULL DEFAULT '',
//	    delivered_at  TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (url, delivery_mode)
//	);
type PostgresTracker struct {
	db     dbConn
	now    func() time.Time
	logger *zap.Logger
}

// NewPostgresTracker wraps an existing pool. The caller keeps ownership of
// the pool; Close here is a no-op.
func NewPostgresTracker(db dbConn, logger *zap.Logger) (*PostgresTracker, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresTracker{db: db, now: time.Now, logger: logger}, nil
}

const selectDeliverySQL = `
SELECT content_hash, last_error FROM delivered_records
WHERE url = $1 AND delivery_mode = $2`

// HasAlreadyDelivered implements Tracker.
func (t *PostgresTracker) HasAlreadyDelivered(ctx context.Context, mode, url, hash string) (bool, string, error) {
	var storedHash, lastError string
	err := t.db.QueryRow(ctx, selectDeliverySQL, url, mode).Scan(&storedHash, &lastError)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("query delivered_records: %w", err)
	}
	return storedHash == hash && lastError == "", lastError, nil
}

const upsertDeliverySQL = `
INSERT INTO delivered_records (url, delivery_mode, journal_name, content_hash, last_error, delivered_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (url, delivery_mode) DO UPDATE SET
    journal_name = EXCLUDED.journal_name,
    content_hash = EXCLUDED.content_hash,
    last_error   = EXCLUDED.last_error,
    delivered_at = EXCLUDED.delivered_at`

// RecordDelivery implements Tracker. The upsert keeps one row per
// (url, mode), last attempt wins.
func (t *PostgresTracker) RecordDelivery(ctx context.Context, mode, url, journalName, hash, errMsg string) error {
	if _, err := t.db.Exec(ctx, upsertDeliverySQL, url, mode, journalName, hash, errMsg, t.now().UTC()); err != nil {
		return fmt.Errorf("upsert delivered_records: %w", err)
	}
	t.logger.Debug("recorded delivery",
		zap.String("url", url),
		zap.String("mode", mode),
		zap.String("journal", journalName),
		zap.Bool("failed", errMsg != ""))
	return nil
}

// Close implements Tracker. The shared pool is closed by its provider.
func (t *PostgresTracker) Close() {}
