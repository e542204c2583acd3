package priceengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/resilience"
	"github.com/tokencalls/signalwatch/internal/signalerr"
)

// Chain-specific provider ordering from §4.7: Solana prefers its specialist
// first, EVM and any other chain fall back to the general chain only.
const (
	nameSolanaSpecialist = "solana-specialist"
	nameGeneral1         = "general-1"
	nameGeneral2         = "general-2"
	nameDexAggregator    = "dex-aggregator"
)

// Engine resolves current prices across an ordered provider chain, wrapping
// every provider call in the cache, rate limiter, and breaker.
type Engine struct {
	mu        sync.RWMutex
	providers map[string]Provider
	chains    map[domainmodel.Chain][]string

	cache   *resilience.Cache
	limiter *resilience.MultiRateLimiter
	breaker *resilience.MultiBreaker

	cacheTelemetry *resilience.Telemetry
	telemetry      map[string]*resilience.Telemetry
}

func New(limiter *resilience.MultiRateLimiter, breaker *resilience.MultiBreaker, cacheCapacity int) *Engine {
	names := []string{nameSolanaSpecialist, nameGeneral1, nameGeneral2, nameDexAggregator}
	telemetry := make(map[string]*resilience.Telemetry, len(names))
	for _, name := range names {
		telemetry[name] = resilience.NewTelemetry(name)
	}

	return &Engine{
		providers: map[string]Provider{},
		chains: map[domainmodel.Chain][]string{
			domainmodel.ChainSolana:  {nameSolanaSpecialist, nameGeneral1, nameGeneral2, nameDexAggregator},
			domainmodel.ChainEVM:     {nameGeneral1, nameGeneral2, nameDexAggregator},
			domainmodel.ChainUnknown: {nameGeneral1, nameGeneral2, nameDexAggregator},
		},
		cache:          resilience.NewCache(cacheCapacity),
		limiter:        limiter,
		breaker:        breaker,
		cacheTelemetry: resilience.NewTelemetry("price-cache"),
		telemetry:      telemetry,
	}
}

func (e *Engine) Register(p Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.providers[p.Name()] = p
}

func cacheKey(chain domainmodel.Chain, address string) string {
	return string(chain) + "|" + address
}

// GetPrice implements §4.7's control flow: cache check, then ordered
// provider fan-out each wrapped in rate-limit+retry+breaker, normalizing and
// caching on first success. Returns (nil, nil) — never an error — when every
// provider in the chain yields nothing, per the "never throws for absence"
// invariant. A Cancelled error is the one case that unwinds immediately
// instead of advancing to the next provider (§5 cancellation semantics).
func (e *Engine) GetPrice(ctx context.Context, chain domainmodel.Chain, address string, ttl time.Duration) (*domainmodel.PriceSnapshot, error) {
	key := cacheKey(chain, address)
	if cached, ok := e.cache.Get(key); ok {
		e.cacheTelemetry.RecordCacheHit()
		return cached.(*domainmodel.PriceSnapshot), nil
	}
	e.cacheTelemetry.RecordCacheMiss()

	order, ok := e.chains[chain]
	if !ok {
		order = e.chains[domainmodel.ChainUnknown]
	}

	for _, name := range order {
		e.mu.RLock()
		provider, exists := e.providers[name]
		e.mu.RUnlock()
		if !exists {
			continue
		}

		providerTelemetry := e.telemetry[name]

		if err := e.limiter.Acquire(ctx, name); err != nil {
			if isCancelled(err) {
				return nil, err
			}
			if providerTelemetry != nil {
				providerTelemetry.RecordRateLimitWait()
			}
			continue
		}

		callStart := time.Now()
		var result interface{}
		var err error
		if br, hasBreaker := e.breaker.Get(name); hasBreaker {
			result, err = br.Execute(ctx, func(ctx context.Context) (interface{}, error) {
				return provider.GetPrice(ctx, chain, address)
			})
		} else {
			result, err = provider.GetPrice(ctx, chain, address)
		}
		elapsed := time.Since(callStart)

		if err != nil {
			if isCancelled(err) {
				return nil, err
			}
			if providerTelemetry != nil {
				providerTelemetry.RecordFailure(elapsed)
			}
			if errors.Is(err, resilience.ErrCircuitOpen) {
				if providerTelemetry != nil {
					providerTelemetry.RecordCircuitOpen()
				}
				log.Debug().Str("provider", name).Str("address", address).Msg("circuit open, failing over")
			} else {
				log.Debug().Err(err).Str("provider", name).Str("address", address).Msg("provider call failed, failing over")
			}
			continue
		}

		snap, ok := result.(*domainmodel.PriceSnapshot)
		if !ok || snap == nil {
			continue
		}
		if providerTelemetry != nil {
			providerTelemetry.RecordSuccess(elapsed)
		}
		snap.Provider = name
		e.cache.Set(key, snap, ttl)
		return snap, nil
	}

	return nil, nil
}

func isCancelled(err error) bool {
	se, ok := signalerr.Of(err)
	return ok && se.Kind == signalerr.KindCancelled
}
