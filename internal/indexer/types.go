// Package indexer implements C4, the indexer client pool: per-host
// token-bucket rate limiting, a closed/open/half-open circuit breaker
// per indexer, and parallel fan-out across enabled indexer adapters
// with independent per-indexer timeouts and an aggregate deadline, per
// spec.md §4.4.
package indexer

import (
	"context"
	"time"

	"github.com/cinequeue/cinequeue/internal/decisioning"
)

// Protocol mirrors decisioning.Protocol to keep this package free of a
// decisioning import cycle risk while matching its vocabulary.
type Protocol = decisioning.Protocol

// Instance is one configured indexer (spec.md §4.4's
// {base_url, credentials, categories, priority, rate_limit, circuit_state}).
type Instance struct {
	ID         int64
	Name       string
	Host       string // rate-limit bucket key; shared across instances on the same host
	BaseURL    string
	APIKey     string
	Categories []int
	Priority   int
	Protocol   Protocol
	Enabled    bool
}

// Adapter is implemented by a concrete indexer client (e.g. prowlarr).
// Pool dispatches Search calls to every enabled, non-open-circuit
// Adapter concurrently.
type Adapter interface {
	Instance() Instance
	Search(ctx context.Context, req SearchRequest) ([]decisioning.Release, error)
}

// SearchRequest is the normalized query handed to every adapter.
type SearchRequest struct {
	Query      string
	ImdbID     string
	TmdbID     int
	Year       int
	Categories []int
}

// SearchResult is one indexer's contribution to an aggregate search,
// always returned (even on failure) so the caller can observe which
// indexers contributed.
type SearchResult struct {
	IndexerID   int64
	IndexerName string
	Releases    []decisioning.Release
	Err         error
	Duration    time.Duration
}
