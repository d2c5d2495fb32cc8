// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package hosted

import (
	"context"
	"errors"
	"fmt"
	"runtime/trace"
	"sync/atomic"
	"time"

	"vawter.tech/hosted/internal/safe"
	"vawter.tech/hosted/internal/state"
	"vawter.tech/hosted/seq"
)

// ErrCanceled is the cause of the worker's context after a call to
// [Queue.Cancel].
var ErrCanceled = errors.New("queue canceled")

// A RecoveredError will be reported by a worker whose handler panics.
type RecoveredError = safe.RecoveredError

// A Phase describes the lifecycle of a [Queue].
type Phase = state.Phase

// The lifecycle phases of a Queue.
const (
	// The queue has not been resumed. Elements will be dropped.
	Waiting = state.Waiting
	// A worker has been started and is consuming elements.
	Running = state.Running
	// The queue has been finished. Elements will be dropped.
	Terminal = state.Terminal
)

// A Queue hosts a single worker that hands elements, one at a time and
// in the order they were sent, to a handler.
//
// A Queue starts in the [Waiting] phase. Calling [Queue.Resume] starts
// the worker and moves the Queue into the [Running] phase. Calling
// [Queue.Finish] moves the Queue into the [Terminal] phase, lets the
// worker drain any buffered elements, and reports the worker's outcome.
// Elements sent outside of the Running phase are dropped and reported
// to the diagnostic [Logger].
//
// All methods on a Queue are safe for concurrent use.
type Queue[T any] struct {
	cfg        *config
	done       chan struct{} // Closed when Terminal and the worker has exited.
	dropped    atomic.Int64
	handler    Handler[T]
	infallible bool
	outcome    error // Written before done is closed.
	processed  atomic.Int64
	sm         state.Machine[*worker[T]]
	started    atomic.Pointer[time.Time] // Set by Resume.

	// The parent of the worker's context.
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// A worker is the join handle for the goroutine that drains a Channel.
type worker[T any] struct {
	ch   *seq.Channel[T]
	done chan struct{}
	err  error // Written before done is closed.
}

// New constructs a Queue in the [Waiting] phase whose handler may fail.
//
// If the handler returns an error or panics, the worker stops
// immediately and no further elements will reach the handler. The
// error is reported by [Queue.Finish]. If the worker is canceled, the
// cause of the cancellation will be reported. Use [Fn] to adapt other
// function signatures, or [Chain] to decorate the handler with
// [Middleware].
func New[T any](fn Handler[T], opts ...Option) *Queue[T] {
	return newQueue(fn, false, opts)
}

// NewValues constructs a Queue in the [Waiting] phase whose handler
// cannot fail. Canceling the worker of such a Queue results in a
// normal, nil, outcome. A panicking handler is still reported as a
// [RecoveredError].
func NewValues[T any](fn func(ctx context.Context, v T), opts ...Option) *Queue[T] {
	return newQueue(Fn[T](fn), true, opts)
}

func newQueue[T any](fn Handler[T], infallible bool, opts []Option) *Queue[T] {
	cfg := newConfig(opts)
	ctx, cancel := context.WithCancelCause(cfg.ctx)
	return &Queue[T]{
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		handler:    fn,
		infallible: infallible,
	}
}

// Cancel requests that the worker stop consuming elements. The worker
// will not invoke the handler on any further element, but a handler
// invocation that is in progress will not be interrupted beyond the
// cancellation of its context. Cancel does not finish the Queue; a
// call to [Queue.Finish] is still required to learn the outcome.
func (q *Queue[T]) Cancel() {
	q.cancel(ErrCanceled)
}

// Done returns a channel that is closed once the Queue has been
// finished and its worker, if any, has exited.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// Err returns the outcome of the worker once [Queue.Done] has been
// closed. It returns nil before then.
func (q *Queue[T]) Err() error {
	select {
	case <-q.done:
		return q.outcome
	default:
		return nil
	}
}

// Finish moves the Queue into its [Terminal] phase and blocks until
// the worker has handed every buffered element to the handler and has
// exited. The worker's outcome is returned: nil on success, or the
// first failure raised by the handler, by cancellation, or supplied
// via [WithCause].
//
// If the Queue was never resumed, Finish returns nil immediately. A
// second call to Finish is a no-op that returns nil; use [Queue.Wait]
// to observe the outcome again. If ctx is done before the worker
// exits, ctx.Err() is returned and the Queue continues to shut down in
// the background.
func (q *Queue[T]) Finish(ctx context.Context, opts ...FinishOption) error {
	if !q.finish(opts) {
		return nil
	}
	return q.Wait(ctx)
}

// FinishFunc is a non-blocking version of [Queue.Finish]. Once the
// worker has exited, the callback will be passed the worker's outcome
// via the configured [Executor]. A second call to FinishFunc is a
// no-op and its callback will never be invoked.
func (q *Queue[T]) FinishFunc(onFinished func(error), opts ...FinishOption) {
	if !q.finish(opts) || onFinished == nil {
		return
	}
	go func() {
		<-q.done
		q.notify("finished", func() { onFinished(q.outcome) })
	}()
}

// Len returns the number of elements that have been sent to the
// worker, but not yet handed to the handler. It returns 0 outside of
// the [Running] phase.
func (q *Queue[T]) Len() int {
	phase, w := q.sm.Load()
	if phase != Running || w == nil {
		return 0
	}
	return w.ch.Len()
}

// Phase returns the current lifecycle phase of the Queue.
func (q *Queue[T]) Phase() Phase {
	phase, _ := q.sm.Load()
	return phase
}

// Resume starts the worker and blocks until it has begun to consume
// elements. Once Resume returns, every element passed to [Queue.Send]
// will eventually reach the handler, unless the worker fails or is
// canceled. The Priority hint is taken from the options or from
// [WithPriority].
//
// Resume may be called only once, and not after [Queue.Finish]. Any
// misuse is reported to the diagnostic [Logger] and Resume returns nil.
// If ctx is done before the worker starts, ctx.Err() is returned, but
// the worker is still started.
func (q *Queue[T]) Resume(ctx context.Context, opts ...ResumeOption) error {
	started := make(chan struct{})
	if !q.resume(opts, func() { close(started) }) {
		return nil
	}
	select {
	case <-started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResumeFunc is a non-blocking version of [Queue.Resume]. Once the
// worker has started, the callback is invoked via the configured
// [Executor], before the worker consumes any element. The callback is
// not invoked if ResumeFunc is misused.
func (q *Queue[T]) ResumeFunc(onStarted func(), opts ...ResumeOption) {
	q.resume(opts, func() {
		if onStarted != nil {
			q.notify("started", onStarted)
		}
	})
}

// Send enqueues an element for the handler without blocking. Elements
// sent from a single goroutine reach the handler in the order they were
// sent; elements from racing goroutines reach the handler in the order
// in which their Send calls were serialized.
//
// Elements sent before [Queue.Resume], after [Queue.Finish], or after
// the worker has exited are dropped and reported to the diagnostic
// [Logger] and the [Observer].
func (q *Queue[T]) Send(v T) {
	var reason DropReason
	var pending int
	q.sm.With(func(phase Phase, w *worker[T]) {
		switch phase {
		case Waiting:
			reason = DropNotStarted
		case Running:
			if w.ch.Send(v) {
				pending = w.ch.Len()
			} else {
				reason = DropWorkerExited
			}
		default:
			reason = DropFinished
		}
	})
	if reason == 0 {
		q.cfg.observer.Sent(q.cfg.name, pending)
		return
	}
	q.drop(reason, 1)
	switch reason {
	case DropNotStarted:
		q.cfg.logger.Info("send called before resume", "queue", q.cfg.name)
	case DropFinished:
		q.cfg.logger.Info("send called after finish", "queue", q.cfg.name)
	case DropWorkerExited:
		q.cfg.logger.Info("send called after worker exited", "queue", q.cfg.name)
	}
}

// String is for debugging use only.
func (q *Queue[T]) String() string {
	return fmt.Sprintf("%s: (%s) (%d pending) (%d processed) (%d dropped)",
		q.cfg.name, q.Phase(), q.Len(), q.processed.Load(), q.dropped.Load())
}

// Wait blocks until the Queue has been finished and its worker has
// exited, returning the worker's outcome. Wait does not itself finish
// the Queue. If ctx is done first, ctx.Err() is returned.
func (q *Queue[T]) Wait(ctx context.Context) error {
	select {
	case <-q.done:
		return q.outcome
	case <-ctx.Done():
		return ctx.Err()
	}
}

// canceled determines the outcome of a canceled worker.
func (q *Queue[T]) canceled(ctx context.Context) error {
	if q.infallible {
		return nil
	}
	return context.Cause(ctx)
}

// drain is the body of the worker. It returns the worker's outcome.
func (q *Queue[T]) drain(ctx context.Context, ch *seq.Channel[T]) error {
	if ctx.Err() != nil {
		return q.canceled(ctx)
	}
	for v, err := range ch.All(ctx) {
		if err != nil {
			// The channel yields the context's cause when interrupted.
			if ctx.Err() != nil && errors.Is(err, context.Cause(ctx)) {
				return q.canceled(ctx)
			}
			return err
		}
		// Check for cancellation before every invocation. The element
		// has already left the channel, so it is counted here.
		if ctx.Err() != nil {
			q.drop(DropWorkerExited, 1)
			return q.canceled(ctx)
		}
		if err := q.process(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue[T]) drop(reason DropReason, count int) {
	q.dropped.Add(int64(count))
	q.cfg.observer.Dropped(q.cfg.name, reason, count)
}

// finish performs the transition into the Terminal phase. It returns
// false if the Queue was already Terminal.
func (q *Queue[T]) finish(opts []FinishOption) bool {
	cfg := &finishConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	prev, w := q.sm.Finish(func(w *worker[T]) {
		// Closing never blocks.
		w.ch.Close(cfg.cause)
	})

	switch prev {
	case Waiting:
		// Nothing was ever started.
		q.cfg.observer.Finished(q.cfg.name, nil)
		q.cancel(context.Canceled)
		close(q.done)
		return true
	case Running:
		go q.join(w)
		return true
	default:
		return false
	}
}

// join waits for the worker to exit and then publishes its outcome.
func (q *Queue[T]) join(w *worker[T]) {
	<-w.done
	q.outcome = w.err
	q.cfg.observer.Finished(q.cfg.name, w.err)
	if w.err != nil {
		q.cfg.logger.Debug("queue finished", "queue", q.cfg.name,
			"processed", q.processed.Load(), "error", w.err)
	} else {
		q.cfg.logger.Debug("queue finished", "queue", q.cfg.name,
			"processed", q.processed.Load())
	}
	q.cancel(context.Canceled)
	close(q.done)
}

// notify delivers a callback via the Executor. A panicking callback is
// reported to the Logger rather than crashing the process.
func (q *Queue[T]) notify(what string, fn func()) {
	q.cfg.executor(func() {
		if err := safe.Call(fn); err != nil {
			q.cfg.logger.Error("callback panicked", "queue", q.cfg.name,
				"callback", what, "error", err)
		}
	})
}

// process invokes the handler on a single element.
func (q *Queue[T]) process(ctx context.Context, v T) error {
	defer trace.StartRegion(ctx, "handle").End()
	start := time.Now()
	err := safe.Invoke(ctx, q.handler, v)
	n := q.processed.Add(1)
	q.cfg.observer.Processed(q.cfg.name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s: element %d: %w", q.cfg.name, n-1, err)
	}
	return nil
}

// resume performs the transition into the Running phase and schedules
// the worker. The started callback is executed by the worker before it
// consumes any element.
func (q *Queue[T]) resume(opts []ResumeOption, started func()) bool {
	cfg := &resumeConfig{priority: q.cfg.priority}
	for _, opt := range opts {
		opt.applyResume(cfg)
	}

	var w *worker[T]
	prev, ok := q.sm.Start(func() *worker[T] {
		w = &worker[T]{
			ch:   seq.NewChannel[T](),
			done: make(chan struct{}),
		}
		now := time.Now()
		q.started.Store(&now)
		return w
	})
	if !ok {
		switch prev {
		case Running:
			q.cfg.logger.Info("resume called more than once", "queue", q.cfg.name)
		default:
			q.cfg.logger.Info("resume called after finish", "queue", q.cfg.name)
		}
		return false
	}

	// Scheduling happens outside of the state machine's lock.
	q.cfg.scheduler.Schedule(cfg.priority, func() {
		q.run(w, cfg.priority, started)
	})
	return true
}

// run executes on the worker goroutine.
func (q *Queue[T]) run(w *worker[T], p Priority, started func()) {
	defer close(w.done)

	ctx, task := trace.NewTask(q.ctx, q.cfg.name)
	defer task.End()
	trace.Log(ctx, "priority", p.String())

	q.cfg.observer.Started(q.cfg.name, p)
	started()

	w.err = q.drain(ctx, w.ch)

	// Release anything that will never be handled.
	if n := w.ch.Discard(); n > 0 {
		q.drop(DropWorkerExited, n)
		q.cfg.logger.Info("worker exited with pending elements", "queue", q.cfg.name,
			"dropped", n)
	}
}
