// Package resilience implements the per-provider admission control, circuit
// breaking, and TTL caching middleware (spec §4.1-§4.3), grounded on the
// teacher's internal/providers/guards package but built on real ecosystem
// libraries already in the teacher's own dependency graph: golang.org/x/time/rate
// for the token bucket and github.com/sony/gobreaker for the breaker, rather
// than the teacher's hand-rolled equivalents.
package resilience

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tokencalls/signalwatch/internal/config"
	"github.com/tokencalls/signalwatch/internal/signalerr"
)

// safetyMargin is the hard-coded 10% buffer subtracted from a provider's
// advertised per-minute ceiling (§4.1) — not tunable per call.
const safetyMargin = 0.90

// RateLimiter wraps a rate.Limiter configured to admit at 90% of a
// provider's advertised per-minute ceiling. rate.Limiter's FIFO waiter queue
// gives the fairness the spec requires without hand-rolling one.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a limiter from a provider's advertised per-minute
// request ceiling and burst capacity.
func NewRateLimiter(perMinuteCap, burst int) *RateLimiter {
	if perMinuteCap <= 0 {
		perMinuteCap = 60
	}
	if burst <= 0 {
		burst = 10
	}
	perSecond := float64(perMinuteCap) * safetyMargin / 60.0
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Acquire suspends the caller until a token is available, or returns a
// Cancelled error if ctx is done first (§5 cancellation semantics: blocking
// operations unwind via a distinct cancellation error).
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if se := signalerr.FromContext(ctx, ""); se != nil {
			return se
		}
		return signalerr.Transient("", "rate limiter wait failed", err)
	}
	return nil
}

// MultiRateLimiter manages one RateLimiter per provider name.
type MultiRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*RateLimiter
}

func NewMultiRateLimiter() *MultiRateLimiter {
	return &MultiRateLimiter{limiters: map[string]*RateLimiter{}}
}

func (m *MultiRateLimiter) Register(provider string, cfg config.ProviderConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[provider] = NewRateLimiter(cfg.PerMinuteCap, cfg.BurstLimit)
}

func (m *MultiRateLimiter) Acquire(ctx context.Context, provider string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[provider]
	m.mu.RUnlock()
	if !ok {
		return nil // no limiter configured, admit freely
	}
	if err := limiter.Acquire(ctx); err != nil {
		if se, ok := signalerr.Of(err); ok {
			se.Provider = provider
			return se
		}
		return err
	}
	return nil
}
