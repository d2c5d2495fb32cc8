// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package seq

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
)

// ErrConsumed is yielded if [Channel.All] is called more than once.
var ErrConsumed = errors.New("channel already consumed")

// A Channel is an unbounded FIFO buffer. It is safe to call
// [Channel.Send] from any number of goroutines while a single consumer
// ranges over [Channel.All]. The zero value is not usable; see
// [NewChannel].
type Channel[T any] struct {
	consumed atomic.Bool
	inflight atomic.Int64 // Elements pulled into the consumer's batch.
	ready    chan struct{}

	mu struct {
		sync.Mutex
		buf    []T
		closed bool
		err    error // Terminal failure, set by Close.
		spare  []T   // Recycled batch storage.
	}
}

// NewChannel constructs an open, empty Channel.
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{ready: make(chan struct{}, 1)}
}

// All returns a single-pass sequence over the elements of the Channel
// in the order in which they were sent. The sequence suspends the
// consumer while the Channel is open and empty.
//
// The sequence ends once the Channel has been closed and all buffered
// elements have been yielded. If the Channel was closed with an error,
// that error is yielded as the final element. If the context is done
// while waiting for an element, the context's cause is yielded as the
// final element. Calling All a second time returns a sequence that
// yields only [ErrConsumed].
func (c *Channel[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if !c.consumed.CompareAndSwap(false, true) {
			yield(zero, ErrConsumed)
			return
		}
		var batch []T
		for {
			var closed bool
			var err error
			batch, closed, err = c.take(batch)
			for i := range batch {
				v := batch[i]
				batch[i] = zero // Release references eagerly.
				c.inflight.Add(-1)
				if !yield(v, nil) {
					return
				}
			}
			if len(batch) > 0 {
				continue
			}
			if closed {
				if err != nil {
					yield(zero, err)
				}
				return
			}
			select {
			case <-c.ready:
			case <-ctx.Done():
				yield(zero, context.Cause(ctx))
				return
			}
		}
	}
}

// Close prevents any further elements from being sent. Elements that
// have already been buffered will still be delivered to the consumer,
// followed by err if it is non-nil. Only the first call to Close has
// any effect; it returns true if this call closed the Channel.
func (c *Channel[T]) Close(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mu.closed {
		return false
	}
	c.mu.closed = true
	c.mu.err = err
	c.notify()
	return true
}

// Closed returns true once [Channel.Close] or [Channel.Discard] has
// been called.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mu.closed
}

// Discard closes the Channel and drops any elements that have not yet
// been handed to the consumer, returning the number of elements that
// were dropped. It is intended to be called by the consumer once it has
// stopped iterating.
func (c *Channel[T]) Discard() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.closed = true
	n := len(c.mu.buf) + int(c.inflight.Swap(0))
	c.mu.buf = nil
	c.mu.spare = nil
	c.notify()
	return n
}

// Len returns the number of elements that have been sent, but not yet
// yielded to the consumer.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mu.buf) + int(c.inflight.Load())
}

// Send appends the element to the tail of the Channel. It never
// blocks. If the Channel has been closed, the element is dropped and
// Send returns false.
func (c *Channel[T]) Send(v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mu.closed {
		return false
	}
	c.mu.buf = append(c.mu.buf, v)
	c.notify()
	return true
}

// notify performs a non-blocking wakeup of the consumer. A pending
// token is sufficient, since the consumer re-checks the buffer after
// every wakeup.
func (c *Channel[T]) notify() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// take swaps the buffered elements out for the consumer. The drained
// batch from the previous call is recycled as the next buffer.
func (c *Channel[T]) take(drained []T) (batch []T, closed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if drained != nil && c.mu.spare == nil && !c.mu.closed {
		c.mu.spare = drained[:0]
	}
	batch = c.mu.buf
	c.mu.buf = c.mu.spare
	c.mu.spare = nil
	c.inflight.Store(int64(len(batch)))
	return batch, c.mu.closed, c.mu.err
}
