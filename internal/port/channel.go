// Package port implements Ports & Streams: typed, named,
// directional endpoints backed by bounded FIFO channels with explicit
// overflow policy, schema validation, and observable buffer statistics.
package port

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autocoder/kernel/pkg/models"
)

// ErrClosed is returned by Send/Receive once the channel has been closed
// and drained.
var ErrClosed = fmt.Errorf("channel closed")

// ErrIngressTimeout is returned by Send under BLOCK_WITH_TIMEOUT when the
// channel does not free capacity within the configured bound.
var ErrIngressTimeout = fmt.Errorf("send timed out: channel at capacity")

// Stats is the observable snapshot of a channel's buffer state.
type Stats struct {
	Capacity          int
	Depth             int
	HighWaterMark     int
	BufferUtilization float64
	MessagesIn        uint64
	MessagesOut       uint64
	MessagesDropped   uint64
	BlockedDurationMs int64
}

// Channel is a bounded FIFO connecting exactly one OUT port to one IN
// port. It is implemented as a mutex-guarded ring buffer rather than
// a bare Go channel so that DROP_OLDEST can evict the head element before
// enqueue, which a native channel cannot express.
type Channel struct {
	mu   sync.Mutex
	cond *sync.Cond

	capacity  int
	policy    models.OverflowPolicy
	timeoutMs int
	queue     []models.Message

	closed bool

	highWater       int
	messagesIn      uint64
	messagesOut     uint64
	messagesDropped uint64
	blockedNanos    int64
}

// NewChannel creates a bounded channel of the given capacity and overflow
// policy with the default BLOCK_WITH_TIMEOUT bound. Use
// NewChannelWithTimeout to set a per-port timeout.
func NewChannel(capacity int, policy models.OverflowPolicy) *Channel {
	return NewChannelWithTimeout(capacity, policy, models.DefaultTimeoutMs)
}

// NewChannelWithTimeout is NewChannel with an explicit BLOCK_WITH_TIMEOUT
// bound in milliseconds; timeoutMs <= 0 falls back to the default.
func NewChannelWithTimeout(capacity int, policy models.OverflowPolicy, timeoutMs int) *Channel {
	if capacity < 1 {
		capacity = models.DefaultBufferSize
	}
	if timeoutMs <= 0 {
		timeoutMs = models.DefaultTimeoutMs
	}
	c := &Channel{capacity: capacity, policy: policy, timeoutMs: timeoutMs, queue: make([]models.Message, 0, capacity)}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Send enqueues a message per the channel's overflow policy. The
// caller is responsible for schema validation before calling Send; Send
// itself only enforces backpressure semantics. dropped reports whether
// this message was discarded (DROP_NEWEST at capacity); a DROP_OLDEST
// eviction discards the queued head instead, which is visible in
// Stats().MessagesDropped but leaves dropped false since msg itself was
// enqueued.
func (c *Channel) Send(ctx context.Context, msg models.Message) (dropped bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}

	if len(c.queue) < c.capacity {
		c.enqueueLocked(msg)
		return false, nil
	}

	switch c.policy {
	case models.OverflowDropNewest:
		c.messagesDropped++
		return true, nil

	case models.OverflowDropOldest:
		c.queue = c.queue[1:]
		c.messagesDropped++
		c.enqueueLocked(msg)
		return false, nil

	case models.OverflowBlockWithTimeout:
		return false, c.blockWithTimeout(ctx, msg)

	default: // BLOCK
		return false, c.blockUntilSpace(ctx, msg)
	}
}

// enqueueLocked appends msg and updates counters. Caller holds c.mu.
func (c *Channel) enqueueLocked(msg models.Message) {
	c.queue = append(c.queue, msg)
	c.messagesIn++
	if len(c.queue) > c.highWater {
		c.highWater = len(c.queue)
	}
	c.cond.Broadcast()
}

func (c *Channel) blockUntilSpace(ctx context.Context, msg models.Message) error {
	done := c.watchCancel(ctx)
	defer done()

	start := time.Now()
	for len(c.queue) >= c.capacity && !c.closed {
		if ctx.Err() != nil {
			c.blockedNanos += time.Since(start).Nanoseconds()
			return ctx.Err()
		}
		c.cond.Wait()
	}
	c.blockedNanos += time.Since(start).Nanoseconds()
	if c.closed {
		return ErrClosed
	}
	c.enqueueLocked(msg)
	return nil
}

// blockWithTimeout bounds blockUntilSpace with a deadline, returning
// ErrIngressTimeout (never a partial enqueue) when it expires.
func (c *Channel) blockWithTimeout(ctx context.Context, msg models.Message) error {
	deadline := time.Now().Add(time.Duration(c.timeoutMs) * time.Millisecond)
	timeoutCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	err := c.blockUntilSpace(timeoutCtx, msg)
	if err == context.DeadlineExceeded {
		return ErrIngressTimeout
	}
	return err
}

// watchCancel starts a goroutine that broadcasts on the condition variable
// when ctx is done, so a blocked Wait() re-checks ctx.Err(). Returns a
// cleanup func that must be called once the wait loop exits.
func (c *Channel) watchCancel(ctx context.Context) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// Receive dequeues the head message, blocking until one is available or
// the channel is closed and drained.
func (c *Channel) Receive(ctx context.Context) (models.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	done := c.watchCancel(ctx)
	defer done()

	start := time.Now()
	for len(c.queue) == 0 && !c.closed {
		if ctx.Err() != nil {
			c.blockedNanos += time.Since(start).Nanoseconds()
			return models.Message{}, ctx.Err()
		}
		c.cond.Wait()
	}
	c.blockedNanos += time.Since(start).Nanoseconds()

	if len(c.queue) == 0 {
		return models.Message{}, ErrClosed
	}

	msg := c.queue[0]
	c.queue = c.queue[1:]
	c.messagesOut++
	c.cond.Broadcast()
	return msg, nil
}

// TryReceive dequeues without blocking; ok is false if the queue is
// currently empty (used by the Merger's fair-ish poll loop).
func (c *Channel) TryReceive() (msg models.Message, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return models.Message{}, false
	}
	msg = c.queue[0]
	c.queue = c.queue[1:]
	c.messagesOut++
	c.cond.Broadcast()
	return msg, true
}

// Close signals end-of-stream. Receivers drain remaining queued messages
// before observing ErrClosed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

// Depth returns the current queue length.
func (c *Channel) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Drained reports whether the channel is closed and has no further
// messages to deliver — the signal a Merger's fan-in loop uses to retire
// an input port.
func (c *Channel) Drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed && len(c.queue) == 0
}

// Stats returns an observable snapshot.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	depth := len(c.queue)
	util := 0.0
	if c.capacity > 0 {
		util = float64(depth) / float64(c.capacity)
	}
	return Stats{
		Capacity:          c.capacity,
		Depth:             depth,
		HighWaterMark:     c.highWater,
		BufferUtilization: util,
		MessagesIn:        c.messagesIn,
		MessagesOut:       c.messagesOut,
		MessagesDropped:   c.messagesDropped,
		BlockedDurationMs: c.blockedNanos / int64(time.Millisecond),
	}
}
