// Package domainmodel holds the record types and tagged unions that flow
// through the signal-processing pipeline. Apart from SignalOutcome, whose
// fields the outcome tracker updates in place, these types are not mutated
// once constructed.
package domainmodel

import "time"

// Chain tags the blockchain an address belongs to.
type Chain string

const (
	ChainEVM     Chain = "evm"
	ChainSolana  Chain = "solana"
	ChainUnknown Chain = "unknown"
)

// SentimentLabel is the coarse sentiment bucket returned by the analyzer
// collaborator.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// PriceSource tags where a price or price-at-entry value came from.
type PriceSource string

const (
	SourceExact          PriceSource = "exact"
	SourceBucket1h       PriceSource = "bucket_1h"
	SourceBucket6h       PriceSource = "bucket_6h"
	SourceBucket24h      PriceSource = "bucket_24h"
	SourceCurrentFallback PriceSource = "current_fallback"
)

// Timeframe enumerates OHLC candle granularity.
type Timeframe string

const (
	TimeframeHour Timeframe = "hour"
	TimeframeDay  Timeframe = "day"
)

// SignalStatus is the outcome tracker's terminal/non-terminal state.
type SignalStatus string

const (
	StatusInProgress      SignalStatus = "in_progress"
	StatusCompleted       SignalStatus = "completed"
	StatusInsufficientData SignalStatus = "insufficient_data"
)

// CompletionCause records why a signal moved to completed.
type CompletionCause string

const (
	CompletionWindowElapsed CompletionCause = "window_elapsed"
	CompletionDeadToken     CompletionCause = "dead_token"
	CompletionManual        CompletionCause = "manual"
)

// MessageEvent is the immutable unit produced by the chat-transport
// collaborator.
type MessageEvent struct {
	Timestamp   time.Time
	ChannelID   string
	ChannelName string
	MessageID   string
	Text        string
	Forwards    int
	Views       int
	Replies     int
	Reactions   int
}

// ProcessedMessage is a MessageEvent enriched by the message processor
// (§4.9). It is itself immutable once produced.
type ProcessedMessage struct {
	Event           MessageEvent
	CryptoRelevant  bool
	Mentions        []string
	Sentiment       SentimentLabel
	SentimentScore  float64
	EngagementScore float64
	Confidence      float64
	HighConfidence  bool
}

// Address is a validated (or rejected) token/account address extracted from
// a message.
type Address struct {
	Literal  string
	Chain    Chain
	Valid    bool
	Ticker   string // optional, empty if unassociated
	Snapshot *PriceSnapshot
}

// PriceSnapshot is a point-in-time price observation, normalized from
// whichever provider returned it. Immutable once constructed.
type PriceSnapshot struct {
	PriceUSD       float64
	MarketCap      *float64
	Volume24h      *float64
	PriceChange24h *float64
	LiquidityUSD   *float64
	PairCreatedAt  *int64
	Supply         *float64 // extension beyond spec's literal field list, used by the token filter's supply>0 check
	Symbol         string
	Provider       string
	ObservedAt     time.Time
}

// Candle is a single OHLC bar.
type Candle struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Timestamp time.Time
	Timeframe Timeframe
}

// Valid reports whether the candle satisfies the OHLC ordering invariant.
func (c Candle) Valid() bool {
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	return c.High >= 0 && c.Low <= lo && hi <= c.High
}

// CheckpointOffsets are the fixed time offsets from entry at which a
// per-checkpoint multiplier is recorded (§4.11 reachedCheckpoints).
var CheckpointOffsets = map[string]time.Duration{
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"24h": 24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// CheckpointOrder is CheckpointOffsets in spec-declared ascending order,
// since map iteration order is undefined and callers need determinism.
var CheckpointOrder = []string{"1h", "4h", "24h", "3d", "7d", "30d"}

// SignalOutcome is the composite-key record tracked by the outcome tracker.
type SignalOutcome struct {
	ChannelID        string
	Address          string
	Chain            Chain
	SignalOrdinal    int
	PreviousOrdinals []int

	FirstMessageID  string
	EntryPrice      float64
	EntryTimestamp  time.Time
	EntryPriceSource PriceSource

	CurrentPrice      float64
	ATHPrice          float64
	ATHTimestamp      time.Time
	ATHMultiplier     float64
	CurrentMultiplier float64

	CheckpointMultipliers map[string]*float64

	DeadToken       bool
	DeadTokenReason string

	Status          SignalStatus
	CompletionCause CompletionCause
	IsWinner        bool
}

// ATHValid reports the §8 invariant ath_price >= entry_price.
func (s *SignalOutcome) ATHValid() bool {
	return s.ATHPrice >= s.EntryPrice && !s.ATHTimestamp.Before(s.EntryTimestamp)
}

// ChannelReputation is wholly recomputable from the completed store; never a
// source of truth.
type ChannelReputation struct {
	ChannelID         string
	TotalSignals      int
	Winners           int
	Losers            int
	Neutrals          int
	Dead              int
	AvgATHMultiplier  float64
	AvgFinalMultiplier float64
	MeanTimeToATH     time.Duration
	WinRate           float64
	ReputationScore   float64
	LastUpdated       time.Time
}

// ScrapingProgress is the per-channel resumable-bootstrap checkpoint.
type ScrapingProgress struct {
	ChannelID        string
	LastProcessedID  string
	TotalProcessed   int
	ScrapeComplete   bool
}

// DeadTokenEntry is a persisted blacklist record.
type DeadTokenEntry struct {
	Address    string
	Chain      Chain
	Reason     string
	Supply     float64
	Holders    int
	Transfers  int
	DetectedAt time.Time
}
