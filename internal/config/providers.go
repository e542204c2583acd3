// Package config holds the single typed configuration struct built at
// startup (spec §9 "runtime-typed configuration" redesign flag). Every
// component is handed a narrow view of Config rather than the whole value.
// Structure and the YAML loading/validation style are adapted from the
// teacher's internal/config/providers.go (ProvidersConfig/ProviderConfig).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-level configuration loaded once at startup (§6).
type Config struct {
	OutputRoot string `yaml:"output_root"`
	DataRoot   string `yaml:"data_root"`

	Providers map[string]ProviderConfig `yaml:"providers"`

	TrackingWindowDays    int `yaml:"tracking_window_days"`     // default 7, live outcomes (§9 open question)
	ForwardATHWindowDays  int `yaml:"forward_ath_window_days"`  // default 30, historical backfill
	UpdateIntervalSeconds int `yaml:"update_interval_seconds"`  // default 7200

	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // default 0.5
	MinMessageLength    int     `yaml:"min_message_length"`   // default 5
	EngagementICMax     float64 `yaml:"engagement_ic_max"`    // default 1000

	Sheet SheetConfig `yaml:"sheet"`

	HistoricalScraperLimit int `yaml:"historical_scraper_limit"` // default 100
	PriorityQueueCapacity  int `yaml:"priority_queue_capacity"`

	Timeouts Timeouts `yaml:"timeouts"`

	PerAddressParallelism int `yaml:"per_address_parallelism"` // default 5

	AmbiguousTickers []string `yaml:"ambiguous_tickers"` // common-English-word tickers requiring $/# prefix

	ChatGatewayURL string   `yaml:"chat_gateway_url"`
	Channels       []string `yaml:"channels"`

	Majors []TokenSpec `yaml:"majors"`
}

// TokenSpec configures one major-ticker whitelist entry (§4.9).
type TokenSpec struct {
	Ticker             string            `yaml:"ticker"`
	CanonicalAddresses map[string]string `yaml:"canonical_addresses"`
	MinPriceUSD        float64           `yaml:"min_price_usd"`
	MinMarketCapUSD    float64           `yaml:"min_market_cap_usd"`
}

// Timeouts groups the strict timeouts named in §4.10.
type Timeouts struct {
	HistoricalEntrySeconds int `yaml:"historical_entry_seconds"` // default 30
	ForwardATHSeconds      int `yaml:"forward_ath_seconds"`      // default 20
}

func (t Timeouts) HistoricalEntry() time.Duration {
	return time.Duration(t.HistoricalEntrySeconds) * time.Second
}

func (t Timeouts) ForwardATH() time.Duration {
	return time.Duration(t.ForwardATHSeconds) * time.Second
}

// SheetConfig configures the secondary mirror sink (§4.12).
type SheetConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SpreadsheetID string `yaml:"spreadsheet_id"`
	Credentials   string `yaml:"credentials"`
}

// ProviderConfig configures one market-data provider's rate limiter, circuit
// breaker, cache and retry behavior (§4.1-§4.3).
type ProviderConfig struct {
	Name          string  `yaml:"name"`
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	PerMinuteCap  int     `yaml:"per_minute_cap"`  // advertised provider ceiling
	BurstLimit    int     `yaml:"burst_limit"`
	TTLSeconds    int     `yaml:"ttl_seconds"`     // default 300
	MaxRetries    int     `yaml:"max_retries"`     // default 3
	BackoffBaseMs int     `yaml:"backoff_base_ms"`
	BackoffMaxMs  int     `yaml:"backoff_max_ms"`
	FailureThreshold int  `yaml:"failure_threshold"` // consecutive failures to open, default 5
	CooldownSeconds  int  `yaml:"cooldown_seconds"`  // default 60
	Enabled       bool    `yaml:"enabled"`
}

// CacheTTL returns the provider's current-price cache TTL, defaulting to
// 300s per §4.2.
func (p ProviderConfig) CacheTTL() time.Duration {
	if p.TTLSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(p.TTLSeconds) * time.Second
}

// Load reads and validates a Config from a YAML file, applying the spec's
// documented defaults for any zero-valued field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TrackingWindowDays <= 0 {
		c.TrackingWindowDays = 7
	}
	if c.ForwardATHWindowDays <= 0 {
		c.ForwardATHWindowDays = 30
	}
	if c.UpdateIntervalSeconds <= 0 {
		c.UpdateIntervalSeconds = 7200
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.5
	}
	if c.MinMessageLength <= 0 {
		c.MinMessageLength = 5
	}
	if c.EngagementICMax <= 0 {
		c.EngagementICMax = 1000
	}
	if c.HistoricalScraperLimit <= 0 {
		c.HistoricalScraperLimit = 100
	}
	if c.PriorityQueueCapacity <= 0 {
		c.PriorityQueueCapacity = 1000
	}
	if c.PerAddressParallelism <= 0 {
		c.PerAddressParallelism = 5
	}
	if c.Timeouts.HistoricalEntrySeconds <= 0 {
		c.Timeouts.HistoricalEntrySeconds = 30
	}
	if c.Timeouts.ForwardATHSeconds <= 0 {
		c.Timeouts.ForwardATHSeconds = 20
	}

	for name, p := range c.Providers {
		if p.Name == "" {
			p.Name = name
		}
		if p.BurstLimit <= 0 {
			p.BurstLimit = 10
		}
		if p.MaxRetries <= 0 {
			p.MaxRetries = 3
		}
		if p.BackoffBaseMs <= 0 {
			p.BackoffBaseMs = 250
		}
		if p.BackoffMaxMs <= 0 {
			p.BackoffMaxMs = 30000
		}
		if p.FailureThreshold <= 0 {
			p.FailureThreshold = 5
		}
		if p.CooldownSeconds <= 0 {
			p.CooldownSeconds = 60
		}
		c.Providers[name] = p
	}
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.OutputRoot == "" {
		return fmt.Errorf("output_root cannot be empty")
	}
	if c.DataRoot == "" {
		return fmt.Errorf("data_root cannot be empty")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0,1], got %f", c.ConfidenceThreshold)
	}
	for name, p := range c.Providers {
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url cannot be empty", name)
		}
	}
	return nil
}

// Provider looks up a provider's config by name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}
