package indexer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinequeue/cinequeue/internal/decisioning"
	"github.com/cinequeue/cinequeue/internal/indexer"
)

type fakeAdapter struct {
	inst    indexer.Instance
	delay   time.Duration
	err     error
	release decisioning.Release
}

func (f *fakeAdapter) Instance() indexer.Instance { return f.inst }

func (f *fakeAdapter) Search(ctx context.Context, req indexer.SearchRequest) ([]decisioning.Release, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []decisioning.Release{f.release}, nil
}

func newPool(t *testing.T) *indexer.Pool {
	t.Helper()
	return indexer.NewPool(indexer.PoolConfig{
		PerIndexerTimeout: time.Second,
		AggregateTimeout:  2 * time.Second,
		HostLimiter:       indexer.HostLimiterConfig{RequestsPerMinute: 6000, Burst: 10},
	}, zerolog.Nop())
}

func TestPool_SearchAggregatesAllEnabledAdapters(t *testing.T) {
	p := newPool(t)
	p.Register(&fakeAdapter{
		inst:    indexer.Instance{ID: 1, Name: "one", Host: "h1.example.com", Enabled: true},
		release: decisioning.Release{Title: "from one"},
	})
	p.Register(&fakeAdapter{
		inst:    indexer.Instance{ID: 2, Name: "two", Host: "h2.example.com", Enabled: true},
		release: decisioning.Release{Title: "from two"},
	})

	results := p.Search(context.Background(), indexer.SearchRequest{Query: "test"})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
		require.Len(t, r.Releases, 1)
	}
}

func TestPool_SearchSkipsDisabledAdapters(t *testing.T) {
	p := newPool(t)
	p.Register(&fakeAdapter{inst: indexer.Instance{ID: 1, Name: "off", Host: "h1.example.com", Enabled: false}})
	p.Register(&fakeAdapter{
		inst:    indexer.Instance{ID: 2, Name: "on", Host: "h2.example.com", Enabled: true},
		release: decisioning.Release{Title: "on"},
	})

	results := p.Search(context.Background(), indexer.SearchRequest{})
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].IndexerID)
}

func TestPool_SearchOneFailureDoesNotCancelSiblings(t *testing.T) {
	p := newPool(t)
	p.Register(&fakeAdapter{
		inst: indexer.Instance{ID: 1, Name: "fails-fast", Host: "h1.example.com", Enabled: true},
		err:  errors.New("boom"),
	})
	p.Register(&fakeAdapter{
		inst:    indexer.Instance{ID: 2, Name: "slow-success", Host: "h2.example.com", Enabled: true},
		delay:   200 * time.Millisecond,
		release: decisioning.Release{Title: "slow but fine"},
	})

	results := p.Search(context.Background(), indexer.SearchRequest{})
	require.Len(t, results, 2)

	byID := map[int64]indexer.SearchResult{}
	for _, r := range results {
		byID[r.IndexerID] = r
	}
	assert.Error(t, byID[1].Err)
	assert.NoError(t, byID[2].Err)
	require.Len(t, byID[2].Releases, 1)
}

func TestPool_SearchSkipsOpenCircuitAdapter(t *testing.T) {
	p := indexer.NewPool(indexer.PoolConfig{
		Breaker: indexer.CircuitBreakerConfig{FailureThreshold: 1, OpenDuration: time.Minute},
	}, zerolog.Nop())
	a := &fakeAdapter{inst: indexer.Instance{ID: 1, Name: "flaky", Host: "h1.example.com", Enabled: true}, err: errors.New("down")}
	p.Register(a)

	_ = p.Search(context.Background(), indexer.SearchRequest{})
	results := p.Search(context.Background(), indexer.SearchRequest{})
	assert.Empty(t, results, "the second search should find the circuit open and skip the adapter entirely")
}

func TestPool_UnregisterRemovesAdapter(t *testing.T) {
	p := newPool(t)
	p.Register(&fakeAdapter{inst: indexer.Instance{ID: 1, Name: "one", Host: "h1.example.com", Enabled: true}})
	p.Unregister(1)

	results := p.Search(context.Background(), indexer.SearchRequest{})
	assert.Empty(t, results)
}

func TestRateLimitError_ErrorsAsDetectsWrappedError(t *testing.T) {
	base := &indexer.RateLimitError{StatusCode: 429}
	wrapped := errors.Join(errors.New("request failed"), base)

	var rle *indexer.RateLimitError
	assert.True(t, errors.As(wrapped, &rle))
}
