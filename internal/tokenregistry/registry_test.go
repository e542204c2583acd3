package tokenregistry

import (
	"testing"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

func TestIsCommentaryShortCircuitsWithNoAddressNoVerbNoLink(t *testing.T) {
	r := New(nil, nil)
	if !r.IsCommentary(false, "ETH is looking strong today") {
		t.Fatal("expected prose-only mention to be classified as commentary")
	}
	if r.IsCommentary(false, "just bought some ETH") {
		t.Fatal("expected buy-verb mention to not be classified as commentary")
	}
	if r.IsCommentary(true, "ETH is looking strong today") {
		t.Fatal("expected presence of an address candidate to rule out commentary")
	}
}

func TestFilterMajorKeepsOnlyCanonicalAddress(t *testing.T) {
	spec := TokenSpec{
		Ticker: "ETH",
		CanonicalAddresses: map[domainmodel.Chain]string{
			domainmodel.ChainEVM: "0xcanonical",
		},
	}
	r := New([]TokenSpec{spec}, nil)
	candidates := []domainmodel.Address{
		{Literal: "0xcanonical", Chain: domainmodel.ChainEVM},
		{Literal: "0ximposter", Chain: domainmodel.ChainEVM},
	}
	kept, dropped := r.Filter("ETH", candidates, "just bought 0xcanonical")
	if len(kept) != 1 || kept[0].Literal != "0xcanonical" {
		t.Fatalf("expected only canonical address kept, got %+v", kept)
	}
	if len(dropped) != 1 || dropped[0].Reason != DropImposter {
		t.Fatalf("expected imposter drop, got %+v", dropped)
	}
}

func TestFilterNonMajorRequiresPriceMarketCapAndSupply(t *testing.T) {
	r := New(nil, nil)
	mc := 20000.0
	supply := 1000000.0
	candidates := []domainmodel.Address{
		{Literal: "0xgood", Chain: domainmodel.ChainEVM, Snapshot: &domainmodel.PriceSnapshot{PriceUSD: 0.01, MarketCap: &mc, Supply: &supply}},
		{Literal: "0xnosupply", Chain: domainmodel.ChainEVM, Snapshot: &domainmodel.PriceSnapshot{PriceUSD: 0.01, MarketCap: &mc}},
	}
	kept, dropped := r.Filter("NOTREAL", candidates, "just bought 0xgood and 0xnosupply")
	if len(kept) != 1 || kept[0].Literal != "0xgood" {
		t.Fatalf("expected only the fully-qualified candidate kept, got %+v", kept)
	}
	if len(dropped) != 1 || dropped[0].Reason != DropNoSupply {
		t.Fatalf("expected no-supply drop, got %+v", dropped)
	}
}

func TestFilterMajorAppliesFloorConstraintsOncePriceIsKnown(t *testing.T) {
	spec := TokenSpec{
		Ticker: "USDC",
		CanonicalAddresses: map[domainmodel.Chain]string{
			domainmodel.ChainEVM: "0xusdc",
		},
		Stablecoin: true,
	}
	r := New([]TokenSpec{spec}, nil)

	depegged := []domainmodel.Address{
		{Literal: "0xusdc", Chain: domainmodel.ChainEVM, Snapshot: &domainmodel.PriceSnapshot{PriceUSD: 0.80}},
	}
	kept, dropped := r.Filter("USDC", depegged, "bought 0xusdc")
	if len(kept) != 0 {
		t.Fatalf("expected depegged stablecoin to be dropped, got %+v", kept)
	}
	if len(dropped) != 1 || dropped[0].Reason != DropOffBand {
		t.Fatalf("expected off-stable-band drop, got %+v", dropped)
	}

	inBand := []domainmodel.Address{
		{Literal: "0xusdc", Chain: domainmodel.ChainEVM, Snapshot: &domainmodel.PriceSnapshot{PriceUSD: 1.01}},
	}
	kept, _ = r.Filter("USDC", inBand, "bought 0xusdc")
	if len(kept) != 1 {
		t.Fatalf("expected in-band stablecoin to be kept, got %+v", kept)
	}
}

func TestFilterMajorDropsBelowMinPriceAndMarketCap(t *testing.T) {
	spec := TokenSpec{
		Ticker: "ETH",
		CanonicalAddresses: map[domainmodel.Chain]string{
			domainmodel.ChainEVM: "0xeth",
		},
		MinPriceUSD:     100,
		MinMarketCapUSD: 1_000_000,
	}
	r := New([]TokenSpec{spec}, nil)

	belowPrice := []domainmodel.Address{
		{Literal: "0xeth", Chain: domainmodel.ChainEVM, Snapshot: &domainmodel.PriceSnapshot{PriceUSD: 1}},
	}
	kept, dropped := r.Filter("ETH", belowPrice, "bought 0xeth")
	if len(kept) != 0 || dropped[0].Reason != DropNoPrice {
		t.Fatalf("expected below-floor price to be dropped as DropNoPrice, got kept=%+v dropped=%+v", kept, dropped)
	}

	mc := 10.0
	belowMarketCap := []domainmodel.Address{
		{Literal: "0xeth", Chain: domainmodel.ChainEVM, Snapshot: &domainmodel.PriceSnapshot{PriceUSD: 200, MarketCap: &mc}},
	}
	kept, dropped = r.Filter("ETH", belowMarketCap, "bought 0xeth")
	if len(kept) != 0 || dropped[0].Reason != DropNoMarketCap {
		t.Fatalf("expected below-floor market cap to be dropped as DropNoMarketCap, got kept=%+v dropped=%+v", kept, dropped)
	}

	mc = 2_000_000
	good := []domainmodel.Address{
		{Literal: "0xeth", Chain: domainmodel.ChainEVM, Snapshot: &domainmodel.PriceSnapshot{PriceUSD: 200, MarketCap: &mc}},
	}
	kept, _ = r.Filter("ETH", good, "bought 0xeth")
	if len(kept) != 1 {
		t.Fatalf("expected candidate above both floors to be kept, got %+v", kept)
	}
}

func TestStablecoinInBand(t *testing.T) {
	if !StablecoinInBand(1.0) {
		t.Fatal("expected 1.0 to be in band")
	}
	if StablecoinInBand(1.2) {
		t.Fatal("expected 1.2 to be out of band")
	}
}
