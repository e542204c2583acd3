// Package tokenregistry implements the major-ticker whitelist and token
// filter of §4.5. Grounded on the teacher's internal/providers/runtime
// fallback-chain-as-config pattern, generalized from "provider chain per
// asset class" to "canonical address + floor constraints per ticker".
package tokenregistry

import (
	"regexp"
	"strings"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

// TokenSpec is one major ticker's per-chain canonical address and floor
// constraints.
type TokenSpec struct {
	Ticker             string
	CanonicalAddresses map[domainmodel.Chain]string
	Stablecoin         bool
	MinPriceUSD        float64
	MinMarketCapUSD    float64
}

// Registry holds the major-ticker whitelist and the ambiguous-ticker set
// used by the message processor's mention extraction (§4.9).
type Registry struct {
	majors      map[string]TokenSpec
	ambiguous   map[string]bool
	buyVerbs    *regexp.Regexp
	chartLink   *regexp.Regexp
}

// DropReason enumerates why a candidate address was excluded from the
// surviving set.
type DropReason string

const (
	DropCommentary DropReason = "commentary"
	DropImposter   DropReason = "imposter"
	DropNoPrice    DropReason = "no_price"
	DropNoMarketCap DropReason = "no_market_cap"
	DropNoSupply    DropReason = "no_supply"
	DropOffBand     DropReason = "off_stable_band"
)

// Dropped pairs a rejected candidate with why it was rejected.
type Dropped struct {
	Candidate domainmodel.Address
	Reason    DropReason
}

func New(majors []TokenSpec, ambiguousTickers []string) *Registry {
	r := &Registry{
		majors:    map[string]TokenSpec{},
		ambiguous: map[string]bool{},
		buyVerbs:  regexp.MustCompile(`(?i)\b(buy|bought|ape|aping|sold|sell|selling|long|short)\b`),
		chartLink: regexp.MustCompile(`(?i)(dexscreener\.com|birdeye\.so|dextools\.io|chart)`),
	}
	for _, m := range majors {
		r.majors[strings.ToUpper(m.Ticker)] = m
	}
	for _, t := range ambiguousTickers {
		r.ambiguous[strings.ToUpper(t)] = true
	}
	return r
}

// IsAmbiguous reports whether ticker requires a $/# prefix to count as a
// mention (§4.9), because it collides with a common English word.
func (r *Registry) IsAmbiguous(ticker string) bool {
	return r.ambiguous[strings.ToUpper(ticker)]
}

func (r *Registry) Lookup(ticker string) (TokenSpec, bool) {
	t, ok := r.majors[strings.ToUpper(ticker)]
	return t, ok
}

// IsCommentary applies the §4.5 heuristic: the message mentions the symbol
// only in prose, with no address-shaped candidate, no buy/sell verb, and no
// chart link.
func (r *Registry) IsCommentary(hasAddressCandidate bool, messageText string) bool {
	if hasAddressCandidate {
		return false
	}
	if r.buyVerbs.MatchString(messageText) {
		return false
	}
	if r.chartLink.MatchString(messageText) {
		return false
	}
	return true
}

// Filter applies §4.5's filter operation: symbol is the ticker the message
// referenced (if any; empty string if the candidates arrived address-first
// with no resolved ticker), candidates are the addresses surviving
// extraction, messageText is used only for the commentary check.
func (r *Registry) Filter(symbol string, candidates []domainmodel.Address, messageText string) ([]domainmodel.Address, []Dropped) {
	if r.IsCommentary(len(candidates) > 0, messageText) {
		return nil, []Dropped{{Reason: DropCommentary}}
	}

	spec, isMajor := r.Lookup(symbol)
	if isMajor {
		return r.filterMajor(spec, candidates)
	}
	return r.filterNonMajor(candidates)
}

// filterMajor keeps only candidates whose literal matches the major's
// canonical address for that chain, then applies §4.5's floor constraints
// (min price, min market cap, and the [0.95, 1.05] stablecoin band) once a
// price snapshot is available. Callers without a snapshot yet (the
// pre-price-resolution filter pass) only get the address-match check; the
// floor constraints are re-applied on the post-resolution pass once
// c.Snapshot is populated.
func (r *Registry) filterMajor(spec TokenSpec, candidates []domainmodel.Address) ([]domainmodel.Address, []Dropped) {
	var kept []domainmodel.Address
	var dropped []Dropped

	for _, c := range candidates {
		want, ok := spec.CanonicalAddresses[c.Chain]
		if !ok || !strings.EqualFold(c.Literal, want) {
			dropped = append(dropped, Dropped{Candidate: c, Reason: DropImposter})
			continue
		}

		if c.Snapshot == nil {
			kept = append(kept, c)
			continue
		}

		if spec.Stablecoin {
			if !StablecoinInBand(c.Snapshot.PriceUSD) {
				dropped = append(dropped, Dropped{Candidate: c, Reason: DropOffBand})
				continue
			}
		} else if spec.MinPriceUSD > 0 && c.Snapshot.PriceUSD < spec.MinPriceUSD {
			dropped = append(dropped, Dropped{Candidate: c, Reason: DropNoPrice})
			continue
		}

		if spec.MinMarketCapUSD > 0 && (c.Snapshot.MarketCap == nil || *c.Snapshot.MarketCap < spec.MinMarketCapUSD) {
			dropped = append(dropped, Dropped{Candidate: c, Reason: DropNoMarketCap})
			continue
		}

		kept = append(kept, c)
	}
	return kept, dropped
}

func (r *Registry) filterNonMajor(candidates []domainmodel.Address) ([]domainmodel.Address, []Dropped) {
	var kept []domainmodel.Address
	var dropped []Dropped
	for _, c := range candidates {
		if c.Snapshot == nil {
			dropped = append(dropped, Dropped{Candidate: c, Reason: DropNoPrice})
			continue
		}
		if c.Snapshot.PriceUSD <= 0 {
			dropped = append(dropped, Dropped{Candidate: c, Reason: DropNoPrice})
			continue
		}
		if c.Snapshot.MarketCap == nil || *c.Snapshot.MarketCap < 10000 {
			dropped = append(dropped, Dropped{Candidate: c, Reason: DropNoMarketCap})
			continue
		}
		if c.Snapshot.Supply == nil || *c.Snapshot.Supply <= 0 {
			dropped = append(dropped, Dropped{Candidate: c, Reason: DropNoSupply})
			continue
		}
		kept = append(kept, c)
	}
	return kept, dropped
}

// StablecoinInBand reports whether a stablecoin's observed price sits within
// the [0.95, 1.05] band required by §4.5.
func StablecoinInBand(price float64) bool {
	return price >= 0.95 && price <= 1.05
}

// DefaultMajors returns the spec-named major tickers (ETH, BTC, SOL, USDC,
// USDT) with empty canonical addresses; operators configure real addresses
// via YAML. New does not seed these: a registry gets only the majors it is
// constructed with.
func DefaultMajors() []TokenSpec {
	return []TokenSpec{
		{Ticker: "ETH", CanonicalAddresses: map[domainmodel.Chain]string{}, MinPriceUSD: 1},
		{Ticker: "BTC", CanonicalAddresses: map[domainmodel.Chain]string{}, MinPriceUSD: 1},
		{Ticker: "SOL", CanonicalAddresses: map[domainmodel.Chain]string{}, MinPriceUSD: 1},
		{Ticker: "USDC", CanonicalAddresses: map[domainmodel.Chain]string{}, Stablecoin: true, MinPriceUSD: 0.95},
		{Ticker: "USDT", CanonicalAddresses: map[domainmodel.Chain]string{}, Stablecoin: true, MinPriceUSD: 0.95},
	}
}
