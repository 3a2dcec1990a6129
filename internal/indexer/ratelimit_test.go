package indexer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinequeue/cinequeue/internal/indexer"
)

func TestHostLimiter_WaitRespectsBucketBurst(t *testing.T) {
	l := indexer.NewHostLimiter(indexer.HostLimiterConfig{RequestsPerMinute: 600, Burst: 2})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}

func TestHostLimiter_RecordRateLimitedIncreasesDelay(t *testing.T) {
	l := indexer.NewHostLimiter(indexer.HostLimiterConfig{
		RequestsPerMinute: 6000,
		Burst:             10,
		MaxAdaptiveDelay:  time.Second,
		BackoffFactor:     2.0,
		RecoveryRequests:  5,
	})

	l.RecordRateLimited()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond, "Wait should block for roughly the adaptive delay")
}

func TestHostLimiter_RecordSuccessRecoversAfterThreshold(t *testing.T) {
	l := indexer.NewHostLimiter(indexer.HostLimiterConfig{
		RequestsPerMinute: 6000,
		Burst:             10,
		MaxAdaptiveDelay:  time.Second,
		BackoffFactor:     2.0,
		RecoveryRequests:  2,
	})

	l.RecordRateLimited()
	l.RecordSuccess()
	l.RecordSuccess()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))
	assert.Less(t, time.Since(start), 600*time.Millisecond, "two recoveries should have halved the adaptive delay")
}

func TestHostRegistry_SharesLimiterPerHost(t *testing.T) {
	r := indexer.NewHostRegistry(indexer.DefaultHostLimiterConfig())
	a := r.For("tracker.example.com")
	b := r.For("tracker.example.com")
	c := r.For("other.example.com")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
