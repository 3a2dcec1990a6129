package indexer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter is a per-host token bucket (golang.org/x/time/rate,
// promoted from an indirect teacher dependency to direct use) layered
// with the teacher's adaptive 429-backoff (internal/prowlarr/
// ratelimit.go's RateLimiter), exactly as the teacher composes a fixed
// steady-state limit with a reactive cooldown on rate-limit responses.
type HostLimiter struct {
	bucket *rate.Limiter

	mu               sync.Mutex
	minDelay         time.Duration
	maxDelay         time.Duration
	currentDelay     time.Duration
	lastRequest      time.Time
	consecutiveOK    int
	backoffFactor    float64
	recoveryRequests int
}

// HostLimiterConfig configures both layers.
type HostLimiterConfig struct {
	RequestsPerMinute int
	Burst             int
	MaxAdaptiveDelay  time.Duration
	BackoffFactor     float64
	RecoveryRequests  int
}

// DefaultHostLimiterConfig returns spec.md §4.4's suggested defaults.
func DefaultHostLimiterConfig() HostLimiterConfig {
	return HostLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             5,
		MaxAdaptiveDelay:  30 * time.Second,
		BackoffFactor:     2.0,
		RecoveryRequests:  5,
	}
}

// NewHostLimiter creates a limiter for a single host.
func NewHostLimiter(cfg HostLimiterConfig) *HostLimiter {
	perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	return &HostLimiter{
		bucket:           rate.NewLimiter(perSecond, cfg.Burst),
		maxDelay:         cfg.MaxAdaptiveDelay,
		backoffFactor:    cfg.BackoffFactor,
		recoveryRequests: cfg.RecoveryRequests,
	}
}

// Wait blocks until both the steady-state token bucket and any active
// adaptive cooldown allow a request, or ctx is cancelled. No caller
// proceeds without a token (spec.md §4.4).
func (h *HostLimiter) Wait(ctx context.Context) error {
	if err := h.waitAdaptive(ctx); err != nil {
		return err
	}
	return h.bucket.Wait(ctx)
}

func (h *HostLimiter) waitAdaptive(ctx context.Context) error {
	h.mu.Lock()
	delay, lastReq := h.currentDelay, h.lastRequest
	h.mu.Unlock()

	if delay == 0 {
		return nil
	}
	elapsed := time.Since(lastReq)
	if elapsed >= delay {
		return nil
	}

	timer := time.NewTimer(delay - elapsed)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordSuccess gradually relaxes the adaptive delay.
func (h *HostLimiter) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRequest = time.Now()
	h.consecutiveOK++
	if h.currentDelay > h.minDelay && h.consecutiveOK >= h.recoveryRequests {
		h.currentDelay = time.Duration(float64(h.currentDelay) / h.backoffFactor)
		if h.currentDelay < h.minDelay {
			h.currentDelay = h.minDelay
		}
		h.consecutiveOK = 0
	}
}

// RecordRateLimited increases the adaptive delay after a 429 response.
func (h *HostLimiter) RecordRateLimited() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRequest = time.Now()
	h.consecutiveOK = 0
	if h.currentDelay == 0 {
		h.currentDelay = time.Second
	} else {
		h.currentDelay = time.Duration(float64(h.currentDelay) * h.backoffFactor)
	}
	if h.currentDelay > h.maxDelay {
		h.currentDelay = h.maxDelay
	}
}

// HostRegistry shares HostLimiters across indexer instances keyed by
// host, per spec.md §4.4's "bucket parameters are per-host, not
// per-indexer-instance" rule.
type HostRegistry struct {
	mu       sync.Mutex
	cfg      HostLimiterConfig
	limiters map[string]*HostLimiter
}

// NewHostRegistry creates a registry sharing cfg across every host.
func NewHostRegistry(cfg HostLimiterConfig) *HostRegistry {
	return &HostRegistry{cfg: cfg, limiters: make(map[string]*HostLimiter)}
}

// For returns the shared limiter for host, creating it on first use.
func (r *HostRegistry) For(host string) *HostLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[host]
	if !ok {
		l = NewHostLimiter(r.cfg)
		r.limiters[host] = l
	}
	return l
}
