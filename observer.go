// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package hosted

import (
	"fmt"
	"time"
)

// A DropReason explains why an element did not reach the handler.
type DropReason int

// Reasons for dropping elements.
const (
	// The element was sent before the queue was resumed.
	DropNotStarted DropReason = iota + 1
	// The element was sent after the queue was finished.
	DropFinished
	// The worker exited, because of a failure or cancellation, before
	// the element could be handled.
	DropWorkerExited
)

// String implements [fmt.Stringer].
func (r DropReason) String() string {
	switch r {
	case DropNotStarted:
		return "not_started"
	case DropFinished:
		return "finished"
	case DropWorkerExited:
		return "worker_exited"
	default:
		return fmt.Sprintf("DropReason(%d)", int(r))
	}
}

// An Observer receives instrumentation events from a queue. Methods
// may be called concurrently from producer goroutines and the worker,
// and must not block. See the metrics sub-package for OpenTelemetry
// and Prometheus implementations.
type Observer interface {
	// Sent is called after an element has been buffered. The pending
	// value is the number of elements awaiting the handler.
	Sent(queue string, pending int)
	// Dropped is called when elements will never reach the handler.
	Dropped(queue string, reason DropReason, count int)
	// Started is called by the worker before it begins to consume.
	Started(queue string, p Priority)
	// Processed is called after each handler invocation.
	Processed(queue string, elapsed time.Duration, err error)
	// Finished is called once the queue is terminal and its worker, if
	// any, has exited.
	Finished(queue string, err error)
}

// NopObserver discards all events.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) Sent(string, int)                        {}
func (NopObserver) Dropped(string, DropReason, int)         {}
func (NopObserver) Started(string, Priority)                {}
func (NopObserver) Processed(string, time.Duration, error) {}
func (NopObserver) Finished(string, error)                  {}
