// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package hosted turns concurrent, non-blocking calls to Send into a
// strictly ordered stream of handler invocations executed by a single
// background worker.
//
// # Queues
//
// A [Queue] has three lifecycle phases:
//
//  1. [Waiting]: the queue has been constructed, but no worker exists.
//     Elements sent to a waiting queue are dropped.
//  2. [Running]: [Queue.Resume] has started exactly one worker that
//     drains an unbounded FIFO buffer, handing elements to the handler
//     one at a time.
//  3. [Terminal]: [Queue.Finish] has closed the buffer. The worker
//     hands every buffered element to the handler before it exits.
//
//	q := hosted.NewValues(func(ctx context.Context, msg string) {
//	    fmt.Println(msg)
//	})
//	_ = q.Resume(ctx)
//	q.Send("hello")
//	q.Send("world")
//	err := q.Finish(ctx)
//
// Send never blocks and never fails. Elements sent from one goroutine
// reach the handler in the order in which they were sent. When several
// goroutines race to call Send, the handler observes elements in the
// order in which those calls were serialized. Handler invocations never
// overlap.
//
// # Values-only and failing handlers
//
// [NewValues] accepts a handler that cannot fail; canceling such a
// queue results in a nil outcome. [New] accepts a [Handler] that returns
// an error. The first error stops the worker and is reported by
// [Queue.Finish]; no later element reaches the handler. A cause passed
// via [WithCause] is reported once the buffered elements have drained,
// unless the handler has already failed. Use [Fn] to adapt other
// function signatures into a Handler.
//
// # Blocking and callback forms
//
// [Queue.Resume] and [Queue.Finish] block the caller until the worker
// has started or exited. [Queue.ResumeFunc] and [Queue.FinishFunc]
// return immediately and invoke a callback via the configured
// [Executor] instead.
//
// # Eager start
//
// [Start] and [StartValues] construct a [Sequence], whose worker is
// already consuming elements by the time the constructor returns.
//
// # Misuse
//
// Sending before Resume or after Finish, and calling Resume more than
// once, are reported to the [Logger] and become no-ops. The
// [logging] sub-package provides slog and zerolog sinks. A second call
// to Finish is a silent no-op.
//
// # Middleware
//
// [Chain] decorates a Handler with [Middleware]. The [limit]
// sub-package ships rate and timeout limits, and the [retry]
// sub-package retries failed elements with exponential backoff.
//
// # Panic recovery
//
// A panicking handler is recovered and reported as a [RecoveredError],
// which records the stack of the worker at the point of the panic.
//
// # Observability
//
// Every worker creates a [runtime/trace.Task] named after the queue,
// and every handler invocation is bracketed by a region. An [Observer]
// receives events as elements are sent, dropped, and processed; the
// [metrics] sub-package exports those events to OpenTelemetry or
// Prometheus. [Queue.Info] returns a JSON-marshalable summary.
//
// # Testing
//
// The [linger] sub-package provides a [Scheduler] that detects workers
// that fail to exit promptly during tests.
package hosted
