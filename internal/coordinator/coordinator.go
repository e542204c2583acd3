// Package coordinator implements the signal coordinator of §4.10: per
// processed-message orchestration across address extraction, the token
// filter, price resolution, historical entry/ATH fetches with strict
// timeouts, outcome open/advance, and the four-table write. Grounded on the
// teacher's internal/infrastructure/async.WorkerPool bounded-concurrency
// idiom (internal/infrastructure/async/concurrency.go), simplified here to a
// per-message semaphore since the coordinator fans out per-address work for
// one message at a time rather than running a long-lived pool.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokencalls/signalwatch/internal/addressx"
	"github.com/tokencalls/signalwatch/internal/deadtoken"
	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/historical"
	"github.com/tokencalls/signalwatch/internal/outcome"
	"github.com/tokencalls/signalwatch/internal/priceengine"
	"github.com/tokencalls/signalwatch/internal/tokenregistry"
	"github.com/tokencalls/signalwatch/internal/writer"
)

// Config holds the coordinator's tunables (§4.10, §9 runtime-config
// redesign flag): parallelism cap and the two strict per-call timeouts.
type Config struct {
	PerAddressParallelism int
	HistoricalEntryTimeout time.Duration
	ForwardATHTimeout      time.Duration
	CurrentPriceCacheTTL   time.Duration
	ForwardATHWindowDays   int
}

// Coordinator wires together every per-message collaborator named in §4.10.
type Coordinator struct {
	cfg        Config
	registry   *tokenregistry.Registry
	detector   *deadtoken.Detector
	prices     *priceengine.Engine
	historical *historical.Retriever
	outcomes   *outcome.Tracker
	writer     *writer.Writer
}

func New(cfg Config, registry *tokenregistry.Registry, detector *deadtoken.Detector, prices *priceengine.Engine, hist *historical.Retriever, outcomes *outcome.Tracker, w *writer.Writer) *Coordinator {
	if cfg.PerAddressParallelism <= 0 {
		cfg.PerAddressParallelism = 5
	}
	return &Coordinator{cfg: cfg, registry: registry, detector: detector, prices: prices, historical: hist, outcomes: outcomes, writer: w}
}

// Process implements §4.10's per-message steps 1-6.
func (c *Coordinator) Process(ctx context.Context, pm domainmodel.ProcessedMessage) error {
	if !pm.CryptoRelevant {
		return nil
	}

	if err := c.writer.AppendMessage(pm); err != nil {
		log.Warn().Err(err).Str("message_id", pm.Event.MessageID).Msg("failed to append message row")
	}

	hasAddressMention := false
	for _, candidate := range addressx.Extract(pm.Mentions) {
		if candidate.Valid {
			hasAddressMention = true
			break
		}
	}
	if c.registry.IsCommentary(hasAddressMention, pm.Event.Text) {
		return nil
	}

	for _, mention := range pm.Mentions {
		addrs := addressx.Extract([]string{mention})
		if len(addrs) == 0 {
			if spec, ok := c.registry.Lookup(mention); ok {
				addrs = resolveFromRegistry(spec)
			}
		}
		if len(addrs) == 0 {
			continue
		}
		// Majors are checked against their canonical addresses before any
		// price call; every candidate is filtered again once it is priced.
		kept := addrs
		if _, isMajor := c.registry.Lookup(mention); isMajor {
			kept, _ = c.registry.Filter(mention, addrs, pm.Event.Text)
		}
		if len(kept) == 0 {
			continue
		}

		c.processAddressesBounded(ctx, pm, kept)
	}

	return nil
}

func resolveFromRegistry(spec tokenregistry.TokenSpec) []domainmodel.Address {
	var out []domainmodel.Address
	for chain, addr := range spec.CanonicalAddresses {
		out = append(out, domainmodel.Address{Literal: addr, Chain: chain, Valid: true, Ticker: spec.Ticker})
	}
	return out
}

// processAddressesBounded fans out per-address work (§4.10 step 6) under a
// configurable parallelism cap; a failure on one address is isolated and
// never cancels the others.
func (c *Coordinator) processAddressesBounded(ctx context.Context, pm domainmodel.ProcessedMessage, addrs []domainmodel.Address) {
	sem := make(chan struct{}, c.cfg.PerAddressParallelism)
	var wg sync.WaitGroup

	for _, addr := range addrs {
		addr := addr
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := c.processOneAddress(ctx, pm, addr); err != nil {
				log.Warn().Err(err).Str("address", addr.Literal).Msg("per-address processing failed, continuing with others")
			}
		}()
	}
	wg.Wait()
}

func (c *Coordinator) processOneAddress(ctx context.Context, pm domainmodel.ProcessedMessage, addr domainmodel.Address) error {
	blacklisted, err := c.detector.IsBlacklisted(ctx, addr.Chain, addr.Literal)
	if err != nil {
		return err
	}
	if blacklisted {
		return nil
	}

	snap, err := c.prices.GetPrice(ctx, addr.Chain, addr.Literal, c.cfg.CurrentPriceCacheTTL)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	addr.Snapshot = snap

	kept, _ := c.registry.Filter(addr.Ticker, []domainmodel.Address{addr}, pm.Event.Text)
	if len(kept) == 0 {
		return nil
	}

	if err := c.writer.UpsertTokenPrice(addr, snap); err != nil {
		log.Warn().Err(err).Str("address", addr.Literal).Msg("failed to upsert token price row")
	}

	entryPrice := snap.PriceUSD
	entrySource := domainmodel.SourceExact
	entryTime := pm.Event.Timestamp

	if time.Since(pm.Event.Timestamp) > time.Hour {
		entryPrice, entrySource = c.fetchHistoricalEntry(ctx, snap.Symbol, pm.Event.Timestamp, snap.PriceUSD)
	}

	o, err := c.outcomes.Open(ctx, pm.Event.ChannelID, addr.Literal, addr.Chain, entryPrice, entrySource, entryTime, pm.Event.MessageID)
	if err != nil {
		return err
	}
	if o == nil {
		return nil
	}

	if time.Since(pm.Event.Timestamp) > 7*24*time.Hour {
		c.fetchForwardATH(ctx, pm.Event.ChannelID, addr, snap.Symbol, o)
	}

	c.refreshHistoricalExtremes(ctx, addr, snap.Symbol, snap.PriceUSD, o.EntryTimestamp)

	if _, err := c.outcomes.UpdatePrice(ctx, pm.Event.ChannelID, addr.Literal, snap.PriceUSD, time.Now()); err != nil {
		return err
	}

	class, err := c.detector.ClassifyAndRecord(ctx, addr.Chain, addr.Literal)
	if err == nil && class.IsDead() {
		if _, err := c.outcomes.CompleteDead(ctx, pm.Event.ChannelID, addr.Literal, class); err != nil {
			return err
		}
	}

	if updated, ok, err := c.outcomes.Get(ctx, pm.Event.ChannelID, addr.Literal); err == nil && ok {
		if err := c.writer.UpsertPerformance(updated); err != nil {
			log.Warn().Err(err).Str("address", addr.Literal).Msg("failed to upsert performance row")
		}
	}

	return nil
}

// fetchHistoricalEntry applies §4.10 step c: a strict timeout wrapping the
// historical entry-price lookup, falling back to the current price and
// tagging the source on timeout.
func (c *Coordinator) fetchHistoricalEntry(ctx context.Context, symbol string, at time.Time, currentPrice float64) (float64, domainmodel.PriceSource) {
	if c.historical == nil {
		return currentPrice, domainmodel.SourceCurrentFallback
	}
	timeout := c.cfg.HistoricalEntryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	price, source, err := c.historical.EntryPriceAt(cctx, symbol, at)
	if err != nil {
		return currentPrice, domainmodel.SourceCurrentFallback
	}
	return price, source
}

// refreshHistoricalExtremes writes the §4.12 HISTORICAL table row: the
// all-time high/low observed for addr's symbol since its first mention,
// and the current price's distance from each. Best-effort: a provider miss
// leaves the prior row untouched and is not reported; it never fails the
// per-address pipeline.
func (c *Coordinator) refreshHistoricalExtremes(ctx context.Context, addr domainmodel.Address, symbol string, currentPrice float64, since time.Time) {
	if c.historical == nil {
		return
	}
	extremes, err := c.historical.AllTimeExtremes(ctx, symbol, since)
	if err != nil || extremes == nil {
		return
	}
	if err := c.writer.UpsertHistorical(addr.Literal, addr.Chain, extremes.ATH, extremes.ATHDate, currentPrice, extremes.ATL, extremes.ATLDate); err != nil {
		log.Warn().Err(err).Str("address", addr.Literal).Msg("failed to upsert historical extremes row")
	}
}

// fetchForwardATH applies §4.10 step d: a shorter strict timeout around the
// opportunistic forward-ATH window fetch; on timeout the ATH is left at its
// best-known value rather than blocking the message pipeline.
func (c *Coordinator) fetchForwardATH(ctx context.Context, channelID string, addr domainmodel.Address, symbol string, o *domainmodel.SignalOutcome) {
	if c.historical == nil {
		return
	}
	timeout := c.cfg.ForwardATHTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	windowDays := c.cfg.ForwardATHWindowDays
	if windowDays <= 0 {
		windowDays = 30
	}

	result, err := c.historical.ForwardAthWindow(cctx, symbol, o.EntryTimestamp, windowDays)
	if err != nil || result == nil {
		return
	}
	if result.ATHPrice > o.ATHPrice {
		if _, err := c.outcomes.UpdatePrice(ctx, channelID, addr.Literal, result.ATHPrice, result.ATHTimestamp); err != nil {
			log.Warn().Err(err).Str("address", addr.Literal).Msg("failed to backfill forward-ATH")
		}
	}

	mults := historical.CheckpointMultipliers(o.EntryPrice, o.EntryTimestamp, result.Candles, domainmodel.CheckpointOffsets)
	for name, m := range mults {
		if m == nil {
			continue
		}
		if err := c.outcomes.SetCheckpointMultiplier(ctx, channelID, addr.Literal, name, *m); err != nil {
			log.Warn().Err(err).Str("address", addr.Literal).Str("checkpoint", name).Msg("failed to backfill checkpoint multiplier")
		}
	}
}
