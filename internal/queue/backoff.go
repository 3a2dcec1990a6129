package queue

import (
	"math/rand"
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffConfig parameterizes the retry schedule (spec.md §4.2:
// base·2^attempts clamped to max_backoff, with full jitter).
type BackoffConfig struct {
	Base time.Duration
	Max  time.Duration
}

// nextBackoff computes the delay before attempt number `attempt` (1-based,
// the attempt about to be retried). go-retry's Backoff is a stateful
// cursor meant to be walked forward once per real retry; because a
// queue job's attempt count is durable (persisted across process
// restarts) rather than held in an in-memory loop, a fresh capped+
// jittered exponential backoff is rebuilt here and advanced `attempt`
// times, keeping only the final value — the same sequence a single
// long-lived retry.Do loop would have produced.
func nextBackoff(cfg BackoffConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := retry.NewExponential(cfg.Base)
	b = retry.WithCappedDuration(cfg.Max, b)

	delay := cfg.Max
	for i := 0; i < attempt; i++ {
		d, stop := b.Next()
		if stop {
			delay = cfg.Max
			break
		}
		delay = d
	}

	// go-retry's own jitter wrappers scale by 1±pct/100, which can push
	// the result past cfg.Max; spec.md §4.2 wants the capped exponential
	// scaled down by U(0.5,1.0) instead, so it is applied directly here
	// and can never exceed delay (and therefore never cfg.Max).
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(delay) * jitter)
}
