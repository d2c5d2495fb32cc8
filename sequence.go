// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package hosted

import "context"

// A Sequence is a [Queue] whose worker is started by its constructor.
// It has no observable [Waiting] phase: every element passed to
// [Sequence.Send] before [Sequence.Finish] is handed to the handler,
// unless the worker fails or is canceled.
type Sequence[T any] struct {
	q *Queue[T]
}

// Start constructs a Sequence whose handler may fail and blocks until
// its worker has begun consuming elements. If ctx is done before the
// worker starts, the worker is shut down and ctx.Err() is returned.
func Start[T any](ctx context.Context, fn Handler[T], opts ...Option) (*Sequence[T], error) {
	return start(ctx, New(fn, opts...))
}

// StartValues constructs a Sequence whose handler cannot fail and
// blocks until its worker has begun consuming elements.
func StartValues[T any](
	ctx context.Context, fn func(context.Context, T), opts ...Option,
) (*Sequence[T], error) {
	return start(ctx, NewValues(fn, opts...))
}

func start[T any](ctx context.Context, q *Queue[T]) (*Sequence[T], error) {
	if err := ctx.Err(); err != nil {
		q.FinishFunc(nil)
		return nil, err
	}
	if err := q.Resume(ctx); err != nil {
		q.Cancel()
		q.FinishFunc(nil)
		return nil, err
	}
	return &Sequence[T]{q}, nil
}

// Cancel requests that the worker stop consuming elements. See
// [Queue.Cancel].
func (s *Sequence[T]) Cancel() { s.q.Cancel() }

// Done returns a channel that is closed once the worker has exited
// after a call to Finish.
func (s *Sequence[T]) Done() <-chan struct{} { return s.q.Done() }

// Err returns the worker's outcome once Done has been closed.
func (s *Sequence[T]) Err() error { return s.q.Err() }

// Finish closes the Sequence and blocks until the worker has handed
// every buffered element to the handler and exited. See [Queue.Finish].
func (s *Sequence[T]) Finish(ctx context.Context, opts ...FinishOption) error {
	return s.q.Finish(ctx, opts...)
}

// FinishFunc is a non-blocking version of [Sequence.Finish].
func (s *Sequence[T]) FinishFunc(onFinished func(error), opts ...FinishOption) {
	s.q.FinishFunc(onFinished, opts...)
}

// Info returns a summary of the Sequence.
func (s *Sequence[T]) Info() *Info { return s.q.Info() }

// Len returns the number of elements awaiting the handler.
func (s *Sequence[T]) Len() int { return s.q.Len() }

// Send enqueues an element for the handler without blocking. Elements
// sent after Finish, or after the worker has exited, are dropped.
func (s *Sequence[T]) Send(v T) { s.q.Send(v) }

// String is for debugging use only.
func (s *Sequence[T]) String() string { return s.q.String() }

// Wait blocks until the Sequence has been finished and its worker has
// exited, returning the worker's outcome.
func (s *Sequence[T]) Wait(ctx context.Context) error { return s.q.Wait(ctx) }
