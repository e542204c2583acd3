package writer

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

func TestAppendMessageWritesHeaderOnce(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil)

	msg := domainmodel.ProcessedMessage{
		Event: domainmodel.MessageEvent{
			MessageID:   "m1",
			ChannelName: "alpha",
			Timestamp:   time.Now(),
			Text:        "gm",
		},
		Mentions:        []string{"ETH"},
		Sentiment:       domainmodel.SentimentPositive,
		EngagementScore: 10,
		Confidence:      0.6,
	}
	if err := w.AppendMessage(msg); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := w.AppendMessage(msg); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	path := w.tablePath("messages", msg.Event.Timestamp)
	rows := readCSV(t, path)
	if len(rows) != 3 { // header + 2 rows
		t.Fatalf("expected header + 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0][0] != "message_id" {
		t.Fatalf("expected header row, got %+v", rows[0])
	}
}

func TestUpsertTokenPriceReplacesExistingRow(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil)

	addr := domainmodel.Address{Literal: "0xabc", Chain: domainmodel.ChainEVM}
	if err := w.UpsertTokenPrice(addr, &domainmodel.PriceSnapshot{PriceUSD: 1.0, Symbol: "ABC"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := w.UpsertTokenPrice(addr, &domainmodel.PriceSnapshot{PriceUSD: 2.0, Symbol: "ABC"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	path := w.tablePath("token_prices", time.Now())
	rows := readCSV(t, path)
	if len(rows) != 2 { // header + 1 row (replaced, not appended)
		t.Fatalf("expected header + 1 row after upsert, got %d: %+v", len(rows), rows)
	}
	if rows[1][3] != "2" {
		t.Fatalf("expected price column updated to 2, got %+v", rows[1])
	}
}

func TestUpsertPerformanceWritesDistinctATHPriceAndMultiplier(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil)

	o := &domainmodel.SignalOutcome{
		Address:           "0xabc",
		Chain:             domainmodel.ChainEVM,
		EntryPrice:        1.0,
		EntryTimestamp:    time.Now(),
		ATHPrice:          5.0,
		ATHTimestamp:      time.Now(),
		ATHMultiplier:     2.5,
		CurrentMultiplier: 3.0,
	}
	if err := w.UpsertPerformance(o); err != nil {
		t.Fatalf("upsert performance: %v", err)
	}

	path := w.tablePath("performance", time.Now())
	rows := readCSV(t, path)
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d: %+v", len(rows), rows)
	}
	if rows[1][5] != "5" {
		t.Fatalf("expected ath_since_mention column to hold the ATH price, got %+v", rows[1])
	}
	if rows[1][7] != "2.5" {
		t.Fatalf("expected ath_multiplier column to hold the multiplier, got %+v", rows[1])
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestTablePathRotatesByLocalDate(t *testing.T) {
	w := New(t.TempDir(), nil)
	day1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.Local)
	day2 := time.Date(2026, 1, 2, 12, 0, 0, 0, time.Local)
	p1 := w.tablePath("messages", day1)
	p2 := w.tablePath("messages", day2)
	if p1 == p2 {
		t.Fatal("expected different table paths across date boundary")
	}
	if filepath.Base(filepath.Dir(p1)) != "2026-01-01" {
		t.Fatalf("expected date-scoped directory, got %s", p1)
	}
}
