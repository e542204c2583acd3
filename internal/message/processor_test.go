package message

import (
	"testing"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/sentiment"
	"github.com/tokencalls/signalwatch/internal/tokenregistry"
)

func newTestProcessor() *Processor {
	majors := []tokenregistry.TokenSpec{{Ticker: "ETH"}, {Ticker: "PUMP"}}
	reg := tokenregistry.New(majors, []string{"PUMP"}) // PUMP is ambiguous: also a common word
	return New(reg, sentiment.NewLexiconAnalyzer(), 1000, 0.5, 5)
}

func TestProcessDetectsCryptoRelevanceFromAddress(t *testing.T) {
	p := newTestProcessor()
	event := domainmodel.MessageEvent{Text: "check out 0x1234567890abcdef1234567890abcdef12345678 it's mooning"}
	out := p.Process(event)
	if !out.CryptoRelevant {
		t.Fatal("expected message with an address mention to be crypto-relevant")
	}
	if len(out.Mentions) != 1 {
		t.Fatalf("expected 1 mention, got %+v", out.Mentions)
	}
}

func TestAmbiguousTickerRequiresPrefix(t *testing.T) {
	p := newTestProcessor()
	bare := p.Process(domainmodel.MessageEvent{Text: "I'm going to pump my tires today"})
	if bare.CryptoRelevant {
		t.Fatalf("expected bare ambiguous ticker to not count as a mention, got mentions=%+v", bare.Mentions)
	}

	prefixed := p.Process(domainmodel.MessageEvent{Text: "$PUMP is mooning"})
	if !prefixed.CryptoRelevant || len(prefixed.Mentions) != 1 {
		t.Fatalf("expected prefixed ambiguous ticker to count as a mention, got %+v", prefixed)
	}
}

func TestEngagementScoreFormula(t *testing.T) {
	p := newTestProcessor()
	out := p.Process(domainmodel.MessageEvent{
		Text:      "$ETH to the moon",
		Forwards:  100,
		Reactions: 50,
		Replies:   20,
	})
	// IC = 100 + 2*50 + 0.5*20 = 210; engagement = 100*210/1000 = 21
	if out.EngagementScore < 20.9 || out.EngagementScore > 21.1 {
		t.Fatalf("expected engagement score ~21, got %f", out.EngagementScore)
	}
}

func TestMessagesShorterThanMinLengthAreSkipped(t *testing.T) {
	p := newTestProcessor()
	out := p.Process(domainmodel.MessageEvent{Text: "ETH"}) // 3 chars, below minMessageLength=5
	if out.CryptoRelevant {
		t.Fatal("expected message shorter than min_message_length to not be crypto-relevant")
	}
	if len(out.Mentions) != 0 {
		t.Fatalf("expected no mentions for a too-short message, got %+v", out.Mentions)
	}

	out = p.Process(domainmodel.MessageEvent{Text: "$ETH!"}) // 5 chars, meets the floor
	if !out.CryptoRelevant {
		t.Fatal("expected message at exactly min_message_length to still be processed")
	}
}

func TestConfidenceClippedToUnitInterval(t *testing.T) {
	p := newTestProcessor()
	out := p.Process(domainmodel.MessageEvent{
		Text:      "$ETH moon moon moon bullish breakout gains rocket",
		Forwards:  10000,
		Reactions: 10000,
		Replies:   10000,
	})
	if out.Confidence < 0 || out.Confidence > 1 {
		t.Fatalf("expected confidence in [0,1], got %f", out.Confidence)
	}
}
