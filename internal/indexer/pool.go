package indexer

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pool aggregates a set of Adapters behind a single Search call,
// fanning out concurrently with independent per-indexer timeouts and
// an aggregate deadline (spec.md §4.4's "Parallel fan-out"). errgroup
// (an indirect teacher dependency, promoted to direct use here) is the
// idiomatic replacement for the hand-rolled WaitGroup fan-out the
// teacher uses elsewhere.
type Pool struct {
	mu       sync.RWMutex
	adapters map[int64]Adapter
	breakers map[int64]*CircuitBreaker
	hosts    *HostRegistry

	perIndexerTimeout time.Duration
	aggregateTimeout  time.Duration
	breakerCfg        CircuitBreakerConfig
	logger            zerolog.Logger
}

// PoolConfig configures timeouts and circuit-breaker thresholds shared
// by every member of the pool.
type PoolConfig struct {
	PerIndexerTimeout time.Duration
	AggregateTimeout  time.Duration
	Breaker           CircuitBreakerConfig
	HostLimiter       HostLimiterConfig
}

// NewPool creates an empty Pool.
func NewPool(cfg PoolConfig, logger zerolog.Logger) *Pool {
	if cfg.PerIndexerTimeout <= 0 {
		cfg.PerIndexerTimeout = 30 * time.Second
	}
	if cfg.AggregateTimeout <= 0 {
		cfg.AggregateTimeout = 60 * time.Second
	}
	if cfg.HostLimiter.RequestsPerMinute <= 0 {
		cfg.HostLimiter = DefaultHostLimiterConfig()
	}
	return &Pool{
		adapters:          make(map[int64]Adapter),
		breakers:          make(map[int64]*CircuitBreaker),
		hosts:             NewHostRegistry(cfg.HostLimiter),
		perIndexerTimeout: cfg.PerIndexerTimeout,
		aggregateTimeout:  cfg.AggregateTimeout,
		breakerCfg:        cfg.Breaker,
		logger:            logger.With().Str("component", "indexer-pool").Logger(),
	}
}

// Register adds or replaces an adapter in the pool.
func (p *Pool) Register(a Adapter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := a.Instance().ID
	p.adapters[id] = a
	if _, ok := p.breakers[id]; !ok {
		p.breakers[id] = NewCircuitBreaker(p.breakerCfg)
	}
}

// Unregister removes an adapter from the pool.
func (p *Pool) Unregister(indexerID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.adapters, indexerID)
	delete(p.breakers, indexerID)
}

// Search dispatches req to every enabled, non-open-circuit adapter
// concurrently. A failing indexer never fails the aggregate; the
// aggregate call returns once every dispatched search has completed or
// the aggregate timeout elapses, whichever comes first.
func (p *Pool) Search(ctx context.Context, req SearchRequest) []SearchResult {
	p.mu.RLock()
	targets := make([]Adapter, 0, len(p.adapters))
	breakers := make(map[int64]*CircuitBreaker, len(p.breakers))
	for id, a := range p.adapters {
		inst := a.Instance()
		if !inst.Enabled {
			continue
		}
		breaker := p.breakers[id]
		if breaker != nil && !breaker.Allow() {
			continue
		}
		targets = append(targets, a)
		breakers[id] = breaker
	}
	p.mu.RUnlock()

	aggCtx, cancel := context.WithTimeout(ctx, p.aggregateTimeout)
	defer cancel()

	results := make([]SearchResult, len(targets))
	g, gCtx := errgroup.WithContext(aggCtx)
	// Each adapter's own failure must not cancel its siblings, so each
	// goroutine swallows its error into the result slot rather than
	// returning it to the group.
	for i, a := range targets {
		i, a := i, a
		g.Go(func() error {
			results[i] = p.searchOne(gCtx, a, breakers[a.Instance().ID], req)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Pool) searchOne(ctx context.Context, a Adapter, breaker *CircuitBreaker, req SearchRequest) SearchResult {
	inst := a.Instance()
	result := SearchResult{IndexerID: inst.ID, IndexerName: inst.Name}

	if limiter := p.hosts.For(inst.Host); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			result.Err = err
			return result
		}
		defer func() {
			if isRateLimitError(result.Err) {
				limiter.RecordRateLimited()
			} else {
				limiter.RecordSuccess()
			}
		}()
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.perIndexerTimeout)
	defer cancel()

	start := time.Now()
	releases, err := a.Search(reqCtx, req)
	result.Duration = time.Since(start)
	result.Releases = releases
	result.Err = err

	if breaker != nil {
		if err != nil {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}
	}

	if err != nil {
		p.logger.Warn().Err(err).Str("indexer", inst.Name).Dur("elapsed", result.Duration).Msg("indexer search failed")
	}

	return result
}

// isRateLimitError reports whether err represents an HTTP 429 response,
// the signal that trips the adaptive cooldown layered on the token
// bucket (spec.md §4.4).
func isRateLimitError(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// RateLimitError is returned by an Adapter when the remote indexer
// responds with HTTP 429.
type RateLimitError struct {
	StatusCode int
	URL        *url.URL
}

func (e *RateLimitError) Error() string {
	return "indexer rate limited the request: " + http.StatusText(e.StatusCode)
}
