// Package priceengine implements the multi-provider current-price engine of
// §4.7: an ordered per-chain provider chain, each call passing through the
// TTL cache, rate limiter, and circuit breaker of internal/resilience before
// falling over to the next provider. Grounded on the teacher's
// internal/providers/adapters/*.go HTTP-adapter shape (CoinGeckoAdapter et
// al.), generalized from ticker-keyed market data to address-keyed lookups
// and rebuilt on internal/resilience instead of the teacher's hand-rolled
// providers/guards package.
package priceengine

import (
	"context"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

// Provider is a single market-data source able to resolve a current price
// for an on-chain address. Implementations are per-provider HTTP client
// singletons (§5).
type Provider interface {
	Name() string
	GetPrice(ctx context.Context, chain domainmodel.Chain, address string) (*domainmodel.PriceSnapshot, error)
}
