// Package rsssync implements C9, the RSS/calendar watcher: a periodic
// sweep of every registered indexer's recent-releases feed, matched
// against monitored movies that are still wanted, deduplicated by
// per-indexer cache boundary and enqueued onto C2 with the idempotency
// key spec.md §4.9 requires ((movie_id, release_url) collapsed into a
// single search-bypass grab).
//
// Grounded on the teacher's internal/rsssync (FeedFetcher, WantedIndex,
// cache boundary), trimmed to the movie-only matching this module's
// decisioning.Release already assumes, and generalized so a release
// found via RSS skips straight to a grab job, without a fresh indexer
// search, when decisioning.Select accepts it under the movie's profile.
package rsssync

import "time"

// Config bounds the watcher's feed walk. The Watcher reads only
// MaxReleasesPerFeed; LookbackWindow and BackoffThreshold are carried
// from configuration but not used, so there is no lookback cut-off and
// no per-indexer backoff.
type Config struct {
	LookbackWindow     time.Duration
	BackoffThreshold   int
	MaxReleasesPerFeed int
}

// DefaultConfig mirrors the teacher's rssBackoffThreshold/maxResultsPerIndexer
// constants.
func DefaultConfig() Config {
	return Config{
		LookbackWindow:     7 * 24 * time.Hour,
		BackoffThreshold:   3,
		MaxReleasesPerFeed: 1000,
	}
}

// RunStats summarizes one sweep, returned for logging/tests.
type RunStats struct {
	IndexersSwept int
	Releases      int
	Matched       int
	Enqueued      int
}
