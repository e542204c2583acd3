package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/tokencalls/signalwatch/internal/deadtoken"
	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/persistence"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	dir := t.TempDir()
	active, err := persistence.NewFileActiveStore(dir + "/tracking.json")
	if err != nil {
		t.Fatalf("new active store: %v", err)
	}
	completed, err := persistence.NewFileCompletedStore(dir + "/completed_history.json")
	if err != nil {
		t.Fatalf("new completed store: %v", err)
	}
	return New(active, completed)
}

func TestOpenIsIdempotentWhileActive(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.Open(ctx, "chan1", "0xabc", domainmodel.ChainEVM, 1.0, domainmodel.SourceExact, time.Now(), "msg1")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	second, err := tr.Open(ctx, "chan1", "0xabc", domainmodel.ChainEVM, 2.0, domainmodel.SourceExact, time.Now(), "msg2")
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if second.EntryPrice != first.EntryPrice {
		t.Fatalf("expected idempotent open to leave entry price unchanged, got %f vs %f", second.EntryPrice, first.EntryPrice)
	}
}

func TestFreshStartAfterCompletionIncrementsOrdinal(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if _, err := tr.Open(ctx, "chan1", "0xabc", domainmodel.ChainEVM, 1.0, domainmodel.SourceExact, time.Now(), "msg1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := tr.UpdatePrice(ctx, "chan1", "0xabc", 3.0, time.Now()); err != nil {
		t.Fatalf("update price: %v", err)
	}
	completed, err := tr.Complete(ctx, "chan1", "0xabc", domainmodel.CompletionWindowElapsed)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !completed.IsWinner {
		t.Fatal("expected 3x ATH multiplier to be a winner")
	}

	fresh, err := tr.Open(ctx, "chan1", "0xabc", domainmodel.ChainEVM, 5.0, domainmodel.SourceExact, time.Now(), "msg2")
	if err != nil {
		t.Fatalf("fresh open: %v", err)
	}
	if fresh.SignalOrdinal != 2 {
		t.Fatalf("expected fresh-start ordinal 2, got %d", fresh.SignalOrdinal)
	}
	if len(fresh.PreviousOrdinals) != 1 || fresh.PreviousOrdinals[0] != 1 {
		t.Fatalf("expected previous ordinals [1], got %+v", fresh.PreviousOrdinals)
	}
}

func TestCompleteDeadAppliesFixedMultiplier(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if _, err := tr.Open(ctx, "chan1", "0xdead", domainmodel.ChainEVM, 2.0, domainmodel.SourceExact, time.Now(), "msg1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	completed, err := tr.CompleteDead(ctx, "chan1", "0xdead", deadtoken.ClassDeadLP)
	if err != nil {
		t.Fatalf("complete dead: %v", err)
	}
	if completed.ATHMultiplier != 0.2 {
		t.Fatalf("expected dead_lp fixed multiplier 0.2, got %f", completed.ATHMultiplier)
	}
	if !completed.DeadToken || completed.CompletionCause != domainmodel.CompletionDeadToken {
		t.Fatalf("expected dead-token completion cause, got %+v", completed)
	}
}

func TestReachedCheckpoints(t *testing.T) {
	entry := time.Now().Add(-25 * time.Hour)
	reached := ReachedCheckpoints(time.Now(), entry)
	found := map[string]bool{}
	for _, r := range reached {
		found[r] = true
	}
	if !found["1h"] || !found["4h"] || !found["24h"] {
		t.Fatalf("expected 1h/4h/24h reached, got %+v", reached)
	}
	if found["3d"] {
		t.Fatalf("expected 3d not yet reached, got %+v", reached)
	}
}
