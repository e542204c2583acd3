package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokencalls/signalwatch/internal/config"
	"github.com/tokencalls/signalwatch/internal/signalerr"
)

func TestBreakerRetriesTransientFailuresThenSucceeds(t *testing.T) {
	b := NewBreaker("flaky", config.ProviderConfig{
		MaxRetries: 3, BackoffBaseMs: 1, BackoffMaxMs: 5, FailureThreshold: 10, CooldownSeconds: 1,
	})

	attempts := 0
	result, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, signalerr.Transient("flaky", "temporary blip", nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestBreakerDoesNotRetryProviderEmpty(t *testing.T) {
	b := NewBreaker("empty-provider", config.ProviderConfig{
		MaxRetries: 3, BackoffBaseMs: 1, BackoffMaxMs: 5, FailureThreshold: 10, CooldownSeconds: 1,
	})

	attempts := 0
	_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, signalerr.ProviderEmpty("empty-provider", "no data")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBreakerOpensAfterConsecutiveFailuresAndFailsFast(t *testing.T) {
	b := NewBreaker("unstable", config.ProviderConfig{
		MaxRetries: 0, BackoffBaseMs: 1, BackoffMaxMs: 5, FailureThreshold: 2, CooldownSeconds: 60,
	})

	for i := 0; i < 2; i++ {
		_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, signalerr.Transient("unstable", "down", nil)
		})
		require.Error(t, err)
	}

	_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		t.Fatal("breaker should have failed fast without calling fn")
		return nil, nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBackoffStaysWithinJitterBounds(t *testing.T) {
	b := &Breaker{backoffBase: 100 * time.Millisecond, backoffMax: time.Second}
	for attempt := 1; attempt <= 4; attempt++ {
		delay := b.backoff(attempt)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.LessOrEqual(t, delay, b.backoffMax)
	}
}
