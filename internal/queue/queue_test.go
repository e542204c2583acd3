package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
)

type fakeRequester struct {
	requested int32
	reason    string
}

func (f *fakeRequester) RequestShutdown(reason string) {
	atomic.StoreInt32(&f.requested, 1)
	f.reason = reason
}

func TestEnqueueAndDrainInOrder(t *testing.T) {
	q := New(4)
	var processed []string
	handler := func(ctx context.Context, msg domainmodel.ProcessedMessage) error {
		processed = append(processed, msg.Event.MessageID)
		return nil
	}
	c := NewConsumer(q, handler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	for _, id := range []string{"m1", "m2", "m3"} {
		if err := q.Enqueue(ctx, domainmodel.ProcessedMessage{Event: domainmodel.MessageEvent{MessageID: id}}); err != nil {
			t.Fatal(err)
		}
	}
	q.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain in time")
	}
	cancel()

	if len(processed) != 3 || processed[0] != "m1" || processed[2] != "m3" {
		t.Fatalf("expected in-order drain of 3 messages, got %+v", processed)
	}
}

func TestRunDrainsBufferedMessagesOnContextCancel(t *testing.T) {
	q := New(4)
	var processed []string
	handler := func(ctx context.Context, msg domainmodel.ProcessedMessage) error {
		processed = append(processed, msg.Event.MessageID)
		return nil
	}
	c := NewConsumer(q, handler, nil)

	ctx, cancel := context.WithCancel(context.Background())

	// Enqueue before Run ever starts so every message is already sitting in
	// the channel buffer the moment ctx is cancelled, exercising the same
	// "SIGINT lands while work is buffered" path cmd/signalwatch hits.
	for _, id := range []string{"m1", "m2", "m3"} {
		if err := q.Enqueue(ctx, domainmodel.ProcessedMessage{Event: domainmodel.MessageEvent{MessageID: id}}); err != nil {
			t.Fatal(err)
		}
	}
	cancel()

	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain in time")
	}

	if len(processed) != 3 || processed[0] != "m1" || processed[2] != "m3" {
		t.Fatalf("expected cancellation to drain all 3 buffered messages in order, got %+v", processed)
	}
}

func TestFatalThresholdRequestsShutdown(t *testing.T) {
	q := New(fatalThreshold + 5)
	handler := func(ctx context.Context, msg domainmodel.ProcessedMessage) error {
		return errors.New("always fails")
	}
	req := &fakeRequester{}
	c := NewConsumer(q, handler, req)
	c.BackoffUnit = time.Millisecond

	ctx := context.Background()
	for i := 0; i < fatalThreshold; i++ {
		if err := q.Enqueue(ctx, domainmodel.ProcessedMessage{}); err != nil {
			t.Fatal(err)
		}
	}
	q.Close()

	// Call handleOne directly instead of going through Run's select loop;
	// BackoffUnit is 1ms, so the backoff sleeps from the 10th failure on
	// stay short.
	for i := 0; i < fatalThreshold; i++ {
		msg, ok := <-q.ch
		if !ok {
			break
		}
		c.handleOne(context.Background(), msg)
	}

	if atomic.LoadInt32(&req.requested) != 1 {
		t.Fatal("expected shutdown to have been requested after fatal threshold")
	}
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	q := New(1)
	q.Close()
	if err := q.Enqueue(context.Background(), domainmodel.ProcessedMessage{}); err == nil {
		t.Fatal("expected enqueue after close to fail")
	}
}
