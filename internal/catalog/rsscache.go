package catalog

import (
	"context"
	"database/sql"
	"time"
)

// RssCacheRepo persists, per indexer, the newest release already seen by
// the RSS watcher (C9), grounded on the teacher's indexer_rss_cache
// columns but moved to its own table since this module's indexers table
// has no settings-table fallback for the Prowlarr-aggregated case the
// teacher special-cases.
type RssCacheRepo struct {
	db *sql.DB
}

// CacheBoundary is the last release URL (and, if known, publish time)
// the watcher saw for one indexer.
type CacheBoundary struct {
	URL  string
	Seen time.Time
}

// Get returns the cache boundary for indexerID, or (nil, nil) if none
// has been recorded yet.
func (r *RssCacheRepo) Get(ctx context.Context, indexerID int64) (*CacheBoundary, error) {
	row := r.db.QueryRowContext(ctx, `SELECT last_url, last_seen FROM rss_cache_boundaries WHERE indexer_id = ?`, indexerID)
	var b CacheBoundary
	var seen sql.NullTime
	if err := row.Scan(&b.URL, &seen); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fatal("catalog.RssCache.Get", err)
	}
	if seen.Valid {
		b.Seen = seen.Time
	}
	return &b, nil
}

// Update records boundary as the newest release seen for indexerID.
func (r *RssCacheRepo) Update(ctx context.Context, indexerID int64, boundary CacheBoundary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rss_cache_boundaries (indexer_id, last_url, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(indexer_id) DO UPDATE SET last_url = excluded.last_url, last_seen = excluded.last_seen`,
		indexerID, boundary.URL, boundary.Seen)
	if err != nil {
		return fatal("catalog.RssCache.Update", err)
	}
	return nil
}
