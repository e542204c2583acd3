package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokencalls/signalwatch/internal/config"
)

func TestRateLimiterAdmitsWithinSafetyMargin(t *testing.T) {
	tests := []struct {
		name         string
		perMinuteCap int
		burst        int
		requests     int
	}{
		{name: "small_burst_within_cap", perMinuteCap: 600, burst: 5, requests: 5},
		{name: "default_burst_when_unset", perMinuteCap: 600, burst: 0, requests: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := NewRateLimiter(tt.perMinuteCap, tt.burst)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			for i := 0; i < tt.requests; i++ {
				require.NoError(t, limiter.Acquire(ctx))
			}
		})
	}
}

func TestMultiRateLimiterAdmitsFreelyWhenUnregistered(t *testing.T) {
	m := NewMultiRateLimiter()
	err := m.Acquire(context.Background(), "unregistered-provider")
	assert.NoError(t, err)
}

func TestMultiRateLimiterTagsProviderOnCancellation(t *testing.T) {
	m := NewMultiRateLimiter()
	m.Register("slow-provider", config.ProviderConfig{PerMinuteCap: 60, BurstLimit: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Acquire(ctx, "slow-provider")
	require.Error(t, err)
}
