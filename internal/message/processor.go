// Package message implements the deterministic message processor of §4.9:
// mention extraction, sentiment delegation, engagement scoring, and
// confidence scoring. No external calls happen in this package; same
// inputs always produce the same ProcessedMessage.
package message

import (
	"regexp"
	"strings"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/sentiment"
	"github.com/tokencalls/signalwatch/internal/tokenregistry"
)

// addressLikePattern catches both EVM and Solana-shaped tokens inline in
// message text; addressx.Extract performs the authoritative classification
// downstream, this is only a coarse mention scan.
var addressLikePattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}|[1-9A-HJ-NP-Za-km-z]{32,44}`)

// tickerPattern matches a $ or # prefixed token, or a bare token of 2-6
// letters in any case (a candidate ticker that still needs registry
// confirmation).
var tickerPattern = regexp.MustCompile(`[$#]?\b[A-Za-z]{2,6}\b`)

// Processor configures the engagement/confidence formulas' tunables (§4.9,
// §9 "externally configurable thresholds" redesign flag).
type Processor struct {
	registry            *tokenregistry.Registry
	analyzer             sentiment.Analyzer
	icMax                float64
	confidenceThreshold  float64
	minMessageLength     int
}

func New(registry *tokenregistry.Registry, analyzer sentiment.Analyzer, icMax, confidenceThreshold float64, minMessageLength int) *Processor {
	if icMax <= 0 {
		icMax = 1000
	}
	return &Processor{
		registry:            registry,
		analyzer:             analyzer,
		icMax:                icMax,
		confidenceThreshold:  confidenceThreshold,
		minMessageLength:     minMessageLength,
	}
}

// Process implements §4.9's process(event) -> ProcessedMessage.
func (p *Processor) Process(event domainmodel.MessageEvent) domainmodel.ProcessedMessage {
	if len(event.Text) < p.minMessageLength {
		return domainmodel.ProcessedMessage{Event: event}
	}

	mentions := p.extractMentions(event.Text)
	relevant := len(mentions) > 0

	label, score := p.analyzer.Analyze(event.Text)

	ic := float64(event.Forwards) + 2*float64(event.Reactions) + 0.5*float64(event.Replies)
	engagement := 100 * ic / p.icMax
	if engagement > 100 {
		engagement = 100
	}
	if engagement < 0 {
		engagement = 0
	}

	cryptoRelevance := 0.0
	if relevant {
		cryptoRelevance = 1.0
	}
	lengthFactor := clip(float64(len(event.Text))/200.0, 0, 1)

	confidence := 0.40*(engagement/100) + 0.30*cryptoRelevance + 0.20*absFloat(score) + 0.10*lengthFactor
	confidence = clip(confidence, 0, 1)

	return domainmodel.ProcessedMessage{
		Event:           event,
		CryptoRelevant:  relevant,
		Mentions:        mentions,
		Sentiment:       label,
		SentimentScore:  score,
		EngagementScore: engagement,
		Confidence:      confidence,
		HighConfidence:  confidence >= p.confidenceThreshold,
	}
}

// extractMentions finds address-shaped substrings and registry ticker
// matches. An ambiguous ticker (one the registry also flags as a common
// English word) only counts if prefixed with $ or #.
func (p *Processor) extractMentions(text string) []string {
	seen := map[string]bool{}
	var mentions []string

	for _, m := range addressLikePattern.FindAllString(text, -1) {
		key := strings.ToLower(m)
		if !seen[key] {
			seen[key] = true
			mentions = append(mentions, m)
		}
	}

	for _, m := range tickerPattern.FindAllString(text, -1) {
		prefixed := strings.HasPrefix(m, "$") || strings.HasPrefix(m, "#")
		ticker := strings.TrimLeft(m, "$#")
		upper := strings.ToUpper(ticker)

		if _, known := p.registry.Lookup(upper); !known {
			continue
		}
		if p.registry.IsAmbiguous(upper) && !prefixed {
			continue // bare occurrence of an ambiguous ticker is not a mention
		}

		key := strings.ToLower(ticker)
		if !seen[key] {
			seen[key] = true
			mentions = append(mentions, upper)
		}
	}

	return mentions
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
