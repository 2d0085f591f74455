package feeds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists feed state in two tables:
//
//	CREATE TABLE rss_feeds (
//	    feed_url        TEXT PRIMARY KEY,
//	    last_build_date TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE rss_items (
//	    feed_url   TEXT NOT NULL,
//	    item_id    TEXT NOT NULL,
//	    first_seen TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (feed_url, item_id)
//	);
type PostgresStore struct {
	db  dbConn
	now func() time.Time
}

// NewPostgresStore wraps an existing pool. The caller keeps ownership of the
// pool; Close here is a no-op.
func NewPostgresStore(db dbConn) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

// LastBuildDate implements Store.
func (s *PostgresStore) LastBuildDate(ctx context.Context, feedURL string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(ctx, `SELECT last_build_date FROM rss_feeds WHERE feed_url = $1`, feedURL).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query rss_feeds: %w", err)
	}
	return t, nil
}

const upsertBuildDateSQL = `
INSERT INTO rss_feeds (feed_url, last_build_date) VALUES ($1, $2)
ON CONFLICT (feed_url) DO UPDATE SET last_build_date = EXCLUDED.last_build_date`

// SetLastBuildDate implements Store.
func (s *PostgresStore) SetLastBuildDate(ctx context.Context, feedURL string, t time.Time) error {
	if _, err := s.db.Exec(ctx, upsertBuildDateSQL, feedURL, t.UTC()); err != nil {
		return fmt.Errorf("upsert rss_feeds: %w", err)
	}
	return nil
}

// IsItemSeen implements Store.
func (s *PostgresStore) IsItemSeen(ctx context.Context, feedURL, itemID string) (bool, error) {
	var seen bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rss_items WHERE feed_url = $1 AND item_id = $2)`,
		feedURL, itemID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("query rss_items: %w", err)
	}
	return seen, nil
}

// MarkItemSeen implements Store. Re-marking a seen item is not an error.
func (s *PostgresStore) MarkItemSeen(ctx context.Context, feedURL, itemID string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO rss_items (feed_url, item_id, first_seen) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		feedURL, itemID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("insert rss_items: %w", err)
	}
	return nil
}

// Close implements Store. The shared pool is closed by its provider.
func (s *PostgresStore) Close() {}
