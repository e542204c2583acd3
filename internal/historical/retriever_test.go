package historical

import (
	"context"
	"testing"
	"time"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/signalerr"
)

type fakeHistProvider struct {
	name       string
	priceAtFn  func(symbol string, at time.Time) (*domainmodel.PriceSnapshot, error)
	ohlc       []domainmodel.Candle
	ohlcErr    error
}

func (f *fakeHistProvider) Name() string { return f.name }

func (f *fakeHistProvider) PriceAt(ctx context.Context, symbol string, at time.Time) (*domainmodel.PriceSnapshot, error) {
	return f.priceAtFn(symbol, at)
}

func (f *fakeHistProvider) DailyOHLC(ctx context.Context, symbol string, start time.Time, days int) ([]domainmodel.Candle, error) {
	return f.ohlc, f.ohlcErr
}

func TestEntryPriceAtFallsBackThroughRungs(t *testing.T) {
	calls := 0
	primary := &fakeHistProvider{
		name: "primary",
		priceAtFn: func(symbol string, at time.Time) (*domainmodel.PriceSnapshot, error) {
			calls++
			if calls == 3 { // exact, +1h miss, +6h hit
				return &domainmodel.PriceSnapshot{PriceUSD: 42}, nil
			}
			return nil, signalerr.ProviderEmpty("primary", "empty")
		},
	}
	r := New(primary, nil, NewStore(t.TempDir()))

	price, source, err := r.EntryPriceAt(context.Background(), "ETH", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 42 || source != domainmodel.SourceBucket6h {
		t.Fatalf("expected bucket_6h rung with price 42, got price=%f source=%s", price, source)
	}
}

func TestForwardAthWindowComputesMaxHighAndCompleteness(t *testing.T) {
	entry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []domainmodel.Candle{
		{Open: 1, High: 2, Low: 1, Close: 1.5, Timestamp: entry.Add(24 * time.Hour)},
		{Open: 1.5, High: 5, Low: 1, Close: 4, Timestamp: entry.Add(48 * time.Hour)},
	}
	primary := &fakeHistProvider{name: "primary", ohlc: candles}
	r := New(primary, nil, NewStore(t.TempDir()))

	result, err := r.ForwardAthWindow(context.Background(), "ETH", entry, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ATHPrice != 5 {
		t.Fatalf("expected ATH 5, got %f", result.ATHPrice)
	}
	if result.Completeness <= 0 || result.Completeness > 1 {
		t.Fatalf("expected completeness in (0,1], got %f", result.Completeness)
	}
}

func TestCheckpointMultipliersPicksNearestCandleAtOrBeforeOffset(t *testing.T) {
	entry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []domainmodel.Candle{
		{Close: 2, Timestamp: entry.Add(23 * time.Hour)},
		{Close: 3, Timestamp: entry.Add(25 * time.Hour)},
	}
	mults := CheckpointMultipliers(1.0, entry, candles, map[string]time.Duration{"24h": 24 * time.Hour})
	if mults["24h"] == nil || *mults["24h"] != 2.0 {
		t.Fatalf("expected 24h checkpoint to use the 23h candle (close=2), got %+v", mults["24h"])
	}
}
