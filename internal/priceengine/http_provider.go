package priceengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/signalerr"
)

// AddressPriceResponse is the normalized shape every HTTPProvider's
// decodeFn must produce from a provider's raw JSON — matching §6's "core
// normalizes all shapes into its own Price-snapshot" contract.
type AddressPriceResponse struct {
	PriceUSD       float64
	MarketCap      *float64
	Volume24h      *float64
	PriceChange24h *float64
	LiquidityUSD   *float64
	PairCreatedAt  *int64
	Supply         *float64
	Symbol         string
}

// decodeFn turns a provider's raw response body into the normalized shape.
type decodeFn func(body []byte) (*AddressPriceResponse, error)

// urlFn builds the provider-specific request URL for a given chain/address.
type urlFn func(baseURL string, chain domainmodel.Chain, address string) string

// HTTPProvider is a generic current-price adapter: one instance per
// provider, each with its own http.Client (a per-provider singleton per
// §5), its own URL builder, and its own response decoder. Grounded on the
// shared structure of the teacher's providers/adapters/*.go files
// (BinanceAdapter, CoinGeckoAdapter, CoinbaseAdapter, OKXAdapter), stripped
// of the teacher's momentum-scanning-specific aggregator ban and guard
// wiring (resilience now lives one layer up, in Engine).
type HTTPProvider struct {
	name    string
	baseURL string
	client  *http.Client
	buildURL urlFn
	decode   decodeFn
}

func NewHTTPProvider(name, baseURL string, buildURL urlFn, decode decodeFn) *HTTPProvider {
	return &HTTPProvider{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		buildURL: buildURL,
		decode:   decode,
	}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) GetPrice(ctx context.Context, chain domainmodel.Chain, address string) (*domainmodel.PriceSnapshot, error) {
	url := p.buildURL(p.baseURL, chain, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, signalerr.Fatal(p.name, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if se := signalerr.FromContext(ctx, p.name); se != nil {
			return nil, se
		}
		return nil, signalerr.Transient(p.name, "http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, signalerr.New(signalerr.KindRateLimited, p.name, "rate limited by provider", nil)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, signalerr.ProviderEmpty(p.name, "address not found")
	}
	if resp.StatusCode >= 500 {
		return nil, signalerr.Transient(p.name, fmt.Sprintf("provider returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, signalerr.ProviderEmpty(p.name, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, signalerr.Transient(p.name, "read response body", err)
	}

	normalized, err := p.decode(body)
	if err != nil {
		return nil, signalerr.ProviderEmpty(p.name, "decode response: "+err.Error())
	}
	if normalized == nil || normalized.PriceUSD <= 0 {
		return nil, signalerr.ProviderEmpty(p.name, "no usable price in response")
	}

	return &domainmodel.PriceSnapshot{
		PriceUSD:       normalized.PriceUSD,
		MarketCap:      normalized.MarketCap,
		Volume24h:      normalized.Volume24h,
		PriceChange24h: normalized.PriceChange24h,
		LiquidityUSD:   normalized.LiquidityUSD,
		PairCreatedAt:  normalized.PairCreatedAt,
		Supply:         normalized.Supply,
		Symbol:         normalized.Symbol,
		ObservedAt:     time.Now(),
	}, nil
}

// genericAddressJSON is the common shape the two general-purpose providers
// and the dex-aggregator all happen to expose (token-address keyed), mirrored
// after dexscreener/coingecko's simple-token-price shapes the teacher's
// CoinGeckoAdapter normalizes from.
type genericAddressJSON struct {
	PriceUSD       float64  `json:"price_usd"`
	MarketCapUSD   *float64 `json:"market_cap_usd"`
	Volume24hUSD   *float64 `json:"volume_24h_usd"`
	PriceChange24h *float64 `json:"price_change_24h"`
	LiquidityUSD   *float64 `json:"liquidity_usd"`
	PairCreatedAt  *int64   `json:"pair_created_at"`
	Supply         *float64 `json:"supply"`
	Symbol         string   `json:"symbol"`
}

func decodeGenericAddressJSON(body []byte) (*AddressPriceResponse, error) {
	var raw genericAddressJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return &AddressPriceResponse{
		PriceUSD:       raw.PriceUSD,
		MarketCap:      raw.MarketCapUSD,
		Volume24h:      raw.Volume24hUSD,
		PriceChange24h: raw.PriceChange24h,
		LiquidityUSD:   raw.LiquidityUSD,
		PairCreatedAt:  raw.PairCreatedAt,
		Supply:         raw.Supply,
		Symbol:         raw.Symbol,
	}, nil
}

func addressPathURL(baseURL string, chain domainmodel.Chain, address string) string {
	return fmt.Sprintf("%s/tokens/%s/%s", baseURL, chain, address)
}

// NewGeneral1 builds the first general-purpose provider in the EVM/default
// chain (§4.7): a straightforward address->price lookup.
func NewGeneral1(baseURL string) *HTTPProvider {
	return NewHTTPProvider(nameGeneral1, baseURL, addressPathURL, decodeGenericAddressJSON)
}

// NewGeneral2 builds the second general-purpose provider, consulted only
// after General1 fails or is rate-limited/open-circuited.
func NewGeneral2(baseURL string) *HTTPProvider {
	return NewHTTPProvider(nameGeneral2, baseURL, addressPathURL, decodeGenericAddressJSON)
}

// NewDexAggregator builds the DEX-aggregator fallback consulted last on
// every chain. It shares the URL shape and response decoder of the other
// providers.
func NewDexAggregator(baseURL string) *HTTPProvider {
	return NewHTTPProvider(nameDexAggregator, baseURL, addressPathURL, decodeGenericAddressJSON)
}

// NewSolanaSpecialist builds the Solana-chain-first provider (§4.7).
func NewSolanaSpecialist(baseURL string) *HTTPProvider {
	return NewHTTPProvider(nameSolanaSpecialist, baseURL, addressPathURL, decodeGenericAddressJSON)
}
