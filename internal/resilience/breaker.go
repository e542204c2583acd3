package resilience

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tokencalls/signalwatch/internal/config"
	"github.com/tokencalls/signalwatch/internal/signalerr"
)

// ErrCircuitOpen is returned when a provider's breaker is open; callers treat
// this like ProviderEmpty for failover purposes (§4.7 step 3).
var ErrCircuitOpen = errors.New("circuit breaker open")

// Breaker wraps a gobreaker.CircuitBreaker configured to the three-state
// machine of §4.3: closed -> open after M consecutive failures, open ->
// half-open after a T-second cooldown, half-open allows a single probe.
// Grounded on the teacher's internal/infrastructure/providers/circuitbreakers.go
// CircuitBreakerManager, which wires gobreaker the same way.
type Breaker struct {
	cb            *gobreaker.CircuitBreaker
	maxRetries    int
	backoffBase   time.Duration
	backoffMax    time.Duration
}

func NewBreaker(name string, cfg config.ProviderConfig) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // single probe in half-open
		Interval:    0, // never reset closed-state counts on a timer; only on success
		Timeout:     time.Duration(cfg.CooldownSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
	}
	return &Breaker{
		cb:          gobreaker.NewCircuitBreaker(settings),
		maxRetries:  cfg.MaxRetries,
		backoffBase: time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
		backoffMax:  time.Duration(cfg.BackoffMaxMs) * time.Millisecond,
	}
}

// Execute runs fn under the breaker with bounded retry + exponential backoff
// with jitter (§4.3: base*2^attempt capped at a max delay, ±20% jitter, up to
// N attempts). fn should return a *signalerr.Error so Execute can tell a
// retryable TransientNetwork failure from one that must fail over or surface.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			wait := b.backoff(attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, signalerr.FromContext(ctx, b.cb.Name())
			}
		}

		result, err := b.cb.Execute(func() (interface{}, error) {
			return fn(ctx)
		})
		if err == nil {
			return result, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}

		lastErr = err
		se, ok := signalerr.Of(err)
		if !ok || !se.Retryable() {
			return nil, err // ProviderEmpty/Timeout/Cancelled/Fatal: no retry loop
		}
		if se.Surfaces() {
			return nil, err
		}
	}
	return nil, lastErr
}

// backoff computes base*2^(attempt-1) capped at backoffMax with ±20% jitter,
// matching §4.3 exactly.
func (b *Breaker) backoff(attempt int) time.Duration {
	base := b.backoffBase
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	max := b.backoffMax
	if max <= 0 {
		max = 30 * time.Second
	}

	delay := base << uint(attempt-1)
	if delay > max || delay <= 0 {
		delay = max
	}

	jitterFrac := (rand.Float64()*0.4 - 0.2) // +/-20%
	jittered := float64(delay) * (1 + jitterFrac)
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(jittered)
}

// MultiBreaker manages one Breaker per provider.
type MultiBreaker struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewMultiBreaker() *MultiBreaker {
	return &MultiBreaker{breakers: map[string]*Breaker{}}
}

func (m *MultiBreaker) Register(name string, cfg config.ProviderConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers[name] = NewBreaker(name, cfg)
}

func (m *MultiBreaker) Get(name string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[name]
	return b, ok
}
