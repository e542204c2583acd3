package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/tokencalls/signalwatch/internal/deadtoken"
	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/outcome"
	"github.com/tokencalls/signalwatch/internal/persistence"
	"github.com/tokencalls/signalwatch/internal/priceengine"
	"github.com/tokencalls/signalwatch/internal/resilience"
	"github.com/tokencalls/signalwatch/internal/tokenregistry"
	"github.com/tokencalls/signalwatch/internal/writer"
)

type fakePriceProvider struct {
	name string
	snap *domainmodel.PriceSnapshot
}

func (f *fakePriceProvider) Name() string { return f.name }
func (f *fakePriceProvider) GetPrice(ctx context.Context, chain domainmodel.Chain, address string) (*domainmodel.PriceSnapshot, error) {
	return f.snap, nil
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	dir := t.TempDir()

	active, err := persistence.NewFileActiveStore(dir + "/tracking.json")
	if err != nil {
		t.Fatal(err)
	}
	completed, err := persistence.NewFileCompletedStore(dir + "/completed_history.json")
	if err != nil {
		t.Fatal(err)
	}
	blacklist, err := persistence.NewFileBlacklistStore(dir + "/dead_tokens_blacklist.json")
	if err != nil {
		t.Fatal(err)
	}

	tracker := outcome.New(active, completed)
	detector := deadtoken.New(nil, blacklist)

	engine := priceengine.New(resilience.NewMultiRateLimiter(), resilience.NewMultiBreaker(), 100)
	mc := 50000.0
	supply := 1e9
	engine.Register(&fakePriceProvider{name: "general-1", snap: &domainmodel.PriceSnapshot{PriceUSD: 1.5, Symbol: "TOK", MarketCap: &mc, Supply: &supply}})

	spec := tokenregistry.TokenSpec{
		Ticker: "TOK",
		CanonicalAddresses: map[domainmodel.Chain]string{
			domainmodel.ChainEVM: "0x1234567890abcdef1234567890abcdef12345678",
		},
	}
	reg := tokenregistry.New([]tokenregistry.TokenSpec{spec}, nil)

	w := writer.New(dir+"/output", nil)

	cfg := Config{PerAddressParallelism: 3, CurrentPriceCacheTTL: 300 * time.Second}
	return New(cfg, reg, detector, engine, nil, tracker, w)
}

func TestProcessOpensOutcomeForKnownAddress(t *testing.T) {
	c := newTestCoordinator(t)
	pm := domainmodel.ProcessedMessage{
		Event: domainmodel.MessageEvent{
			ChannelID:   "chan1",
			ChannelName: "alpha",
			MessageID:   "m1",
			Timestamp:   time.Now(),
			Text:        "just bought 0x1234567890abcdef1234567890abcdef12345678",
		},
		CryptoRelevant: true,
		Mentions:       []string{"0x1234567890abcdef1234567890abcdef12345678"},
	}

	if err := c.Process(context.Background(), pm); err != nil {
		t.Fatalf("process: %v", err)
	}

	o, ok, err := c.outcomes.Get(context.Background(), "chan1", "0x1234567890abcdef1234567890abcdef12345678")
	if err != nil {
		t.Fatalf("get outcome: %v", err)
	}
	if !ok {
		t.Fatal("expected an outcome to have been opened")
	}
	if o.EntryPrice != 1.5 {
		t.Fatalf("expected entry price 1.5, got %f", o.EntryPrice)
	}
}

func TestProcessSkipsWhenNotCryptoRelevant(t *testing.T) {
	c := newTestCoordinator(t)
	pm := domainmodel.ProcessedMessage{CryptoRelevant: false}
	if err := c.Process(context.Background(), pm); err != nil {
		t.Fatalf("process: %v", err)
	}
}
