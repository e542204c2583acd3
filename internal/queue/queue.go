// Package queue implements the §4.16 bounded processed-message queue and
// its consumer: graceful-shutdown drain semantics and the three-tier
// failure taxonomy (transient log+counter, sustained backoff, fatal
// shutdown request). Grounded on the teacher's stream.RetryConfig /
// DeadLetterConfig shape (internal/stream/bus.go) generalized from a
// Kafka-style dead-letter policy to an in-process consecutive-failure
// counter, since this queue has no broker behind it.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokencalls/signalwatch/internal/domainmodel"
	"github.com/tokencalls/signalwatch/internal/signalerr"
)

// Thresholds for the §4.16 failure taxonomy.
const (
	backoffThreshold = 10
	fatalThreshold   = 20
	maxBackoff       = 60 * time.Second

	// drainTimeout bounds how long Run's post-cancellation drain pass may
	// spend working through whatever was still buffered.
	drainTimeout = 10 * time.Second
)

// Handler processes one envelope; a returned error is classified per §7 and
// folded into the consumer's consecutive-failure counter.
type Handler func(ctx context.Context, msg domainmodel.ProcessedMessage) error

// ShutdownRequester lets the consumer ask the owning lifecycle to stop once
// the fatal threshold is crossed, without importing the lifecycle package
// directly (avoids a cyclic dependency between queue and lifecycle).
type ShutdownRequester interface {
	RequestShutdown(reason string)
}

// Queue is a bounded FIFO of processed-message envelopes.
type Queue struct {
	ch     chan domainmodel.ProcessedMessage
	closed int32
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{ch: make(chan domainmodel.ProcessedMessage, capacity)}
}

// Enqueue blocks until there is room, the context is cancelled, or the
// queue has been closed.
func (q *Queue) Enqueue(ctx context.Context, msg domainmodel.ProcessedMessage) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return signalerr.Cancelled("queue closed")
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return signalerr.FromContext(ctx, "")
	}
}

// Close stops accepting new items. Already-queued items remain available to
// Consumer.Run until the channel drains, implementing the graceful-drain
// half of §4.16.
func (q *Queue) Close() {
	if atomic.CompareAndSwapInt32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Consumer drains a Queue, applying the consecutive-failure backoff/fatal
// taxonomy of §4.16.
type Consumer struct {
	queue     *Queue
	handler   Handler
	requester ShutdownRequester

	// BackoffUnit scales backoffFor; defaults to one second. Tests shrink
	// it to keep the backoff path fast without changing its shape.
	BackoffUnit time.Duration

	mu                sync.Mutex
	consecutiveErrors int
}

func NewConsumer(q *Queue, handler Handler, requester ShutdownRequester) *Consumer {
	return &Consumer{queue: q, handler: handler, requester: requester, BackoffUnit: time.Second}
}

// Run drains the queue until it is closed and empty or ctx is cancelled.
// Each handler failure is classified: a transient failure is logged and
// counted; ≥10 consecutive failures trigger exponential backoff (capped at
// 60s) before the next dequeue; ≥20 consecutive failures are fatal and
// request a lifecycle shutdown. Cancellation does not abandon whatever is
// already buffered: Run drains it before returning, per the queue's
// graceful-drain invariant.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.queue.ch:
			if !ok {
				return
			}
			c.handleOne(ctx, msg)
		case <-ctx.Done():
			c.drain(ctx)
			return
		}
	}
}

// drain processes whatever is already buffered in the queue without
// blocking for new arrivals, so a cancelled Run still finishes the work a
// producer already handed off before Close/cancel landed. It hands the
// handler a fresh, briefly-lived context rather than the one that just
// cancelled Run, since a handler keyed off ctx.Done() would otherwise
// abort every drained message instantly.
func (c *Consumer) drain(parent context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), drainTimeout)
	defer cancel()

	for {
		select {
		case msg, ok := <-c.queue.ch:
			if !ok {
				return
			}
			c.handleOne(drainCtx, msg)
		default:
			return
		}
	}
}

func (c *Consumer) handleOne(ctx context.Context, msg domainmodel.ProcessedMessage) {
	c.mu.Lock()
	streak := c.consecutiveErrors
	c.mu.Unlock()

	if streak >= backoffThreshold {
		delay := backoffFor(streak, c.BackoffUnit)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}

	err := c.handler(ctx, msg)
	if err == nil {
		c.mu.Lock()
		c.consecutiveErrors = 0
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.consecutiveErrors++
	count := c.consecutiveErrors
	c.mu.Unlock()

	log.Warn().Err(err).Int("consecutive_errors", count).Str("message_id", msg.Event.MessageID).Msg("queue handler failed")

	if count >= fatalThreshold && c.requester != nil {
		c.requester.RequestShutdown("queue handler exceeded fatal consecutive-failure threshold")
	}
}

// backoffFor doubles per failure past the threshold, capped at maxBackoff.
func backoffFor(streak int, unit time.Duration) time.Duration {
	if unit <= 0 {
		unit = time.Second
	}
	shift := streak - backoffThreshold
	if shift > 10 {
		shift = 10
	}
	delay := unit << uint(shift)
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}
