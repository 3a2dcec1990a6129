package rsssync

import (
	"github.com/cinequeue/cinequeue/internal/catalog"
	"github.com/cinequeue/cinequeue/internal/decisioning"
)

// isAtCacheBoundary reports whether release is the release already
// recorded as the newest seen for its indexer, the point at which the
// watcher should stop walking a feed (grounded on the teacher's
// IsAtCacheBoundary; this module's decisioning.Release carries no
// publish timestamp, so the comparison is by download URL alone).
func isAtCacheBoundary(release decisioning.Release, boundary *catalog.CacheBoundary) bool {
	if boundary == nil || boundary.URL == "" {
		return false
	}
	return release.DownloadURL == boundary.URL
}
