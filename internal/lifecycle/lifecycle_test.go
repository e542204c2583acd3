package lifecycle

import (
	"context"
	"errors"
	"testing"
)

func TestStartIsIdempotent(t *testing.T) {
	m := New()
	calls := 0
	startFn := func(ctx context.Context) error { calls++; return nil }

	if err := m.Start(context.Background(), startFn); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := m.Start(context.Background(), startFn); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected startFn called once, got %d", calls)
	}
	if m.State() != StateRunning {
		t.Fatalf("expected running, got %s", m.State())
	}
}

func TestStartFailureRevertsToStopped(t *testing.T) {
	m := New()
	err := m.Start(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if err == nil {
		t.Fatal("expected start error")
	}
	if m.State() != StateStopped {
		t.Fatalf("expected stopped after failed start, got %s", m.State())
	}
}

func TestShutdownRunsAllCleanupsDespiteFailure(t *testing.T) {
	m := New()
	if err := m.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	var ranSecond bool
	m.RegisterCleanup("first", func(ctx context.Context) error { return errors.New("fail") })
	m.RegisterCleanup("second", func(ctx context.Context) error { ranSecond = true; return nil })

	err := m.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected shutdown to report the first cleanup's error")
	}
	if !ranSecond {
		t.Fatal("expected second cleanup to run despite first failing")
	}
	if m.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", m.State())
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	m := New()
	if err := m.Start(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	calls := 0
	m.RegisterCleanup("only", func(ctx context.Context) error { calls++; return nil })

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected cleanup to run once, got %d", calls)
	}
}
