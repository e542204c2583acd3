// Package sentiment defines the sentiment-analyzer collaborator contract of
// §6 and a deterministic lexicon-based stub implementation, grounded on the
// teacher's habit of keeping external-signal collaborators behind a narrow
// interface (internal/providers/defi.DeFiProvider) so a real NLP service can
// be swapped in without touching the message processor.
package sentiment

import (
	"strings"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

// Analyzer is the §6 sentiment-analyzer collaborator: deterministic and
// stateless from the core's perspective.
type Analyzer interface {
	Analyze(text string) (domainmodel.SentimentLabel, float64)
}

// LexiconAnalyzer is a deterministic word-list scorer used as the default
// Analyzer implementation and in tests. It is not a serious sentiment model;
// it exists to satisfy the collaborator contract without a network call.
type LexiconAnalyzer struct {
	positive map[string]bool
	negative map[string]bool
}

func NewLexiconAnalyzer() *LexiconAnalyzer {
	return &LexiconAnalyzer{
		positive: setOf("moon", "bullish", "pump", "gem", "ath", "breakout", "rocket", "gains", "green"),
		negative: setOf("rug", "scam", "dump", "bearish", "crash", "rekt", "dead", "red", "drained"),
	}
}

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Analyze returns a label and a score in [-1, 1] computed from the net
// polarity of lexicon hits, normalized by the number of words scanned.
func (a *LexiconAnalyzer) Analyze(text string) (domainmodel.SentimentLabel, float64) {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return domainmodel.SentimentNeutral, 0
	}

	var net int
	for _, w := range words {
		w = strings.Trim(w, ".,!?$#\"'()")
		if a.positive[w] {
			net++
		} else if a.negative[w] {
			net--
		}
	}

	score := float64(net) / float64(len(words))
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}

	switch {
	case score > 0.05:
		return domainmodel.SentimentPositive, score
	case score < -0.05:
		return domainmodel.SentimentNegative, score
	default:
		return domainmodel.SentimentNeutral, score
	}
}
