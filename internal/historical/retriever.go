// Package historical implements the historical price retriever of §4.8:
// entry-price-at-time resolution with bucketed fallback rungs, forward-ATH
// window computation, and checkpoint multipliers, all backed by an
// immutable on-disk cache. Grounded on the teacher's
// internal/infrastructure/datafacade TTLCache/CacheKeyWithTimestamp pattern,
// generalized from an in-memory layered cache to a disk-persisted one since
// historical results never expire and must survive process restarts.
package historical

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/signalerr"
)

// Provider is a historical market-data source: point-in-time price lookup
// and daily OHLC retrieval for a symbol (§6).
type Provider interface {
	Name() string
	PriceAt(ctx context.Context, symbol string, at time.Time) (*domainmodel.PriceSnapshot, error)
	DailyOHLC(ctx context.Context, symbol string, start time.Time, days int) ([]domainmodel.Candle, error)
}

// bucketRungs are the §4.8 entryPriceAt fallback offsets, tried in order
// after the exact timestamp.
var bucketRungs = []time.Duration{time.Hour, 6 * time.Hour, 24 * time.Hour}

// Retriever resolves historical entry prices and forward-ATH windows,
// failing over from primary to secondary provider and caching immutable
// results to disk.
type Retriever struct {
	primary   Provider
	secondary Provider
	cache     DiskCache
}

// DiskCache persists immutable (symbol, start_bucket, window_days)-keyed
// results; a *Store from this package's cache.go satisfies it.
type DiskCache interface {
	GetCandles(key string) ([]domainmodel.Candle, bool)
	PutCandles(key string, candles []domainmodel.Candle)
}

func New(primary, secondary Provider, cache DiskCache) *Retriever {
	return &Retriever{primary: primary, secondary: secondary, cache: cache}
}

// EntryPriceAt implements §4.8's rung sequence: exact, then t+1h, t+6h, t+24h,
// then current price as a last resort. The first non-null result wins; the
// returned source tag records which rung succeeded.
func (r *Retriever) EntryPriceAt(ctx context.Context, symbol string, t time.Time) (float64, domainmodel.PriceSource, error) {
	if price, err := r.priceAtWithFailover(ctx, symbol, t); err == nil && price != nil {
		return price.PriceUSD, domainmodel.SourceExact, nil
	} else if isCancelled(err) {
		return 0, "", err
	}

	rungSources := []domainmodel.PriceSource{domainmodel.SourceBucket1h, domainmodel.SourceBucket6h, domainmodel.SourceBucket24h}
	for i, offset := range bucketRungs {
		bucketed := t.Add(offset)
		price, err := r.priceAtWithFailover(ctx, symbol, bucketed)
		if isCancelled(err) {
			return 0, "", err
		}
		if err == nil && price != nil {
			return price.PriceUSD, rungSources[i], nil
		}
	}

	current, err := r.priceAtWithFailover(ctx, symbol, time.Now())
	if isCancelled(err) {
		return 0, "", err
	}
	if err == nil && current != nil {
		return current.PriceUSD, domainmodel.SourceCurrentFallback, nil
	}

	return 0, "", signalerr.ProviderEmpty("", "no historical price available at any rung for "+symbol)
}

func (r *Retriever) priceAtWithFailover(ctx context.Context, symbol string, at time.Time) (*domainmodel.PriceSnapshot, error) {
	if r.primary != nil {
		price, err := r.primary.PriceAt(ctx, symbol, at)
		if err == nil && price != nil {
			return price, nil
		}
		if isCancelled(err) {
			return nil, err
		}
		log.Debug().Str("symbol", symbol).Err(err).Msg("primary historical provider empty, failing over")
	}
	if r.secondary != nil {
		return r.secondary.PriceAt(ctx, symbol, at)
	}
	return nil, signalerr.ProviderEmpty("", "no historical providers configured")
}

// ForwardATHResult is the §4.8 forwardAthWindow output.
type ForwardATHResult struct {
	ATHPrice     float64
	ATHTimestamp time.Time
	DaysToATH    float64
	Candles      []domainmodel.Candle
	Completeness float64
}

// ForwardAthWindow fetches daily OHLC for [t_entry, t_entry+window_days],
// takes the max close-time high as ATH, and reports completeness as the
// ratio of candles actually returned to the number expected.
func (r *Retriever) ForwardAthWindow(ctx context.Context, symbol string, entry time.Time, windowDays int) (*ForwardATHResult, error) {
	cacheKey := diskCacheKey(symbol, entry, windowDays)
	if candles, ok := r.cache.GetCandles(cacheKey); ok {
		return summarize(candles, entry, windowDays), nil
	}

	candles, err := r.fetchOHLCWithFailover(ctx, symbol, entry, windowDays)
	if err != nil {
		return nil, err
	}
	if len(candles) > 0 {
		r.cache.PutCandles(cacheKey, candles)
	}
	return summarize(candles, entry, windowDays), nil
}

func (r *Retriever) fetchOHLCWithFailover(ctx context.Context, symbol string, start time.Time, days int) ([]domainmodel.Candle, error) {
	if r.primary != nil {
		candles, err := r.primary.DailyOHLC(ctx, symbol, start, days)
		if err == nil && len(candles) > 0 {
			return candles, nil
		}
		if isCancelled(err) {
			return nil, err
		}
		log.Debug().Str("symbol", symbol).Err(err).Msg("primary historical provider empty for OHLC, failing over")
	}
	if r.secondary != nil {
		return r.secondary.DailyOHLC(ctx, symbol, start, days)
	}
	return nil, nil
}

func summarize(candles []domainmodel.Candle, entry time.Time, windowDays int) *ForwardATHResult {
	result := &ForwardATHResult{Candles: candles}
	if windowDays > 0 {
		result.Completeness = float64(len(candles)) / float64(windowDays)
		if result.Completeness > 1 {
			result.Completeness = 1
		}
	}
	if len(candles) == 0 {
		return result
	}

	best := candles[0]
	for _, c := range candles {
		if c.High > best.High {
			best = c
		}
	}
	result.ATHPrice = best.High
	result.ATHTimestamp = best.Timestamp
	result.DaysToATH = best.Timestamp.Sub(entry).Hours() / 24
	return result
}

// AllTimeExtremesResult is the §4.12 HISTORICAL table's all-time-high/low
// summary for one symbol, observed since the signal's entry.
type AllTimeExtremesResult struct {
	ATH     float64
	ATHDate time.Time
	ATL     float64
	ATLDate time.Time
}

// AllTimeExtremes scans the daily candles from since through now and
// returns the highest high and lowest low observed, for the HISTORICAL
// table's all_time_ath/all_time_atl columns (§4.12). "All time" is bounded
// to what this system has tracked for the symbol, i.e. since its first
// mention, rather than the asset's true lifetime history.
func (r *Retriever) AllTimeExtremes(ctx context.Context, symbol string, since time.Time) (*AllTimeExtremesResult, error) {
	days := int(time.Since(since).Hours()/24) + 1
	if days < 1 {
		days = 1
	}

	cacheKey := diskCacheKey(symbol, since, days) + "|alltime"
	var candles []domainmodel.Candle
	if cached, ok := r.cache.GetCandles(cacheKey); ok {
		candles = cached
	} else {
		fetched, err := r.fetchOHLCWithFailover(ctx, symbol, since, days)
		if err != nil {
			return nil, err
		}
		candles = fetched
		if len(candles) > 0 {
			r.cache.PutCandles(cacheKey, candles)
		}
	}
	if len(candles) == 0 {
		return nil, signalerr.ProviderEmpty("", "no candles available to compute all-time extremes for "+symbol)
	}

	ath := candles[0]
	atl := candles[0]
	for _, c := range candles {
		if c.High > ath.High {
			ath = c
		}
		if c.Low < atl.Low {
			atl = c
		}
	}
	return &AllTimeExtremesResult{
		ATH:     ath.High,
		ATHDate: ath.Timestamp,
		ATL:     atl.Low,
		ATLDate: atl.Timestamp,
	}, nil
}

// CheckpointMultipliers implements §4.8's checkpointMultipliers: for each
// named offset, the nearest candle whose close-time is ≤ the checkpoint
// instant, multiplier = close / entryPrice. A checkpoint with no eligible
// candle (or a non-positive entryPrice) is present with a nil value (left
// for live updates to fill, per §4.11).
func CheckpointMultipliers(entryPrice float64, entryT time.Time, candles []domainmodel.Candle, checkpoints map[string]time.Duration) map[string]*float64 {
	out := map[string]*float64{}
	for name, offset := range checkpoints {
		instant := entryT.Add(offset)
		var nearest *domainmodel.Candle
		for i := range candles {
			c := &candles[i]
			if c.Timestamp.After(instant) {
				continue
			}
			if nearest == nil || c.Timestamp.After(nearest.Timestamp) {
				nearest = c
			}
		}
		if nearest == nil || entryPrice <= 0 {
			out[name] = nil
			continue
		}
		mult := nearest.Close / entryPrice
		out[name] = &mult
	}
	return out
}

func isCancelled(err error) bool {
	se, ok := signalerr.Of(err)
	return ok && se.Kind == signalerr.KindCancelled
}
