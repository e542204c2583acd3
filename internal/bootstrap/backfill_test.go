package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/tokencalls/signalwatch/internal/coordinator"
	"github.com/tokencalls/signalwatch/internal/deadtoken"
	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/message"
	"github.com/tokencalls/signalwatch/internal/outcome"
	"github.com/tokencalls/signalwatch/internal/persistence"
	"github.com/tokencalls/signalwatch/internal/priceengine"
	"github.com/tokencalls/signalwatch/internal/resilience"
	"github.com/tokencalls/signalwatch/internal/sentiment"
	"github.com/tokencalls/signalwatch/internal/tokenregistry"
	"github.com/tokencalls/signalwatch/internal/transport"
	"github.com/tokencalls/signalwatch/internal/writer"
)

type fakeTransport struct {
	events []domainmodel.MessageEvent
}

func (f *fakeTransport) FetchRecent(ctx context.Context, channelID string, limit int) ([]domainmodel.MessageEvent, error) {
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}
func (f *fakeTransport) Subscribe(ctx context.Context, channelID string, handler transport.Handler) error {
	return nil
}
func (f *fakeTransport) Close() error { return nil }

func newTestCoordinator(t *testing.T) *coordinator.Coordinator {
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
	reg := tokenregistry.New(nil, nil)
	w := writer.New(dir+"/output", nil)

	cfg := coordinator.Config{PerAddressParallelism: 2, CurrentPriceCacheTTL: 300 * time.Second}
	return coordinator.New(cfg, reg, detector, engine, nil, tracker, w)
}

func TestRunSkipsAlreadyProcessedMessages(t *testing.T) {
	dir := t.TempDir()
	progress, err := persistence.NewFileScrapingProgressStore(dir + "/scraped_channels.json")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := progress.Put(ctx, &domainmodel.ScrapingProgress{ChannelID: "chan1", LastProcessedID: "5"}); err != nil {
		t.Fatal(err)
	}

	tp := &fakeTransport{events: []domainmodel.MessageEvent{
		{MessageID: "4", ChannelID: "chan1", Text: "old message", Timestamp: time.Now()},
		{MessageID: "6", ChannelID: "chan1", Text: "new message", Timestamp: time.Now()},
	}}

	proc := message.New(tokenregistry.New(nil, nil), sentiment.NewLexiconAnalyzer(), 100, 0.5, 5)
	b := New(tp, proc, newTestCoordinator(t), progress, 10)
	b.Run(ctx, []string{"chan1"})

	updated, ok, err := progress.Get(ctx, "chan1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected progress to be recorded")
	}
	if updated.LastProcessedID != "6" {
		t.Fatalf("expected last processed id 6, got %s", updated.LastProcessedID)
	}
	if updated.TotalProcessed != 1 {
		t.Fatalf("expected 1 new message processed (id 4 skipped), got %d", updated.TotalProcessed)
	}
	if !updated.ScrapeComplete {
		t.Fatal("expected scrape marked complete when fetch returned fewer than the limit")
	}
}

func TestRunRecordsProgressForEveryChannel(t *testing.T) {
	dir := t.TempDir()
	progress, err := persistence.NewFileScrapingProgressStore(dir + "/scraped_channels.json")
	if err != nil {
		t.Fatal(err)
	}

	tp := &fakeTransport{events: nil}
	proc := message.New(tokenregistry.New(nil, nil), sentiment.NewLexiconAnalyzer(), 100, 0.5, 5)
	b := New(tp, proc, newTestCoordinator(t), progress, 10)

	b.Run(context.Background(), []string{"chanA", "chanB"})

	for _, id := range []string{"chanA", "chanB"} {
		if _, ok, err := progress.Get(context.Background(), id); err != nil || !ok {
			t.Fatalf("expected progress recorded for %s, ok=%v err=%v", id, ok, err)
		}
	}
}
