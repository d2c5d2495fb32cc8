// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package retry contains [hosted.Middleware] that hands a failed
// element back to the handler before the queue's worker moves on.
//
// Retries happen in place: later elements wait behind the element being
// retried, so the queue's ordering guarantee is preserved. A
// [Classifier] drives the policy; [Backoff] and [Loop] are the stock
// policies.
package retry

import (
	"context"
	"errors"
	"runtime/trace"
	"strconv"

	"vawter.tech/hosted"
)

// A Classifier decides whether a failed element is handled again. Each
// element starts with a zero-valued S, which the Classifier may update
// on every failure. A non-nil error from the Classifier fails the
// element with that error.
//
// To retry, the Classifier returns a channel; the worker is suspended
// until the channel emits a value (e.g.: [time.After]). If the channel
// is closed without emitting a value, the retry is abandoned and the
// element fails with the error most recently passed to the Classifier.
// If the worker's context is canceled during the wait, that error is
// joined with the cause of the cancellation.
//
// Returning a nil channel and a nil error marks the element as
// successfully handled.
type Classifier[S, N any] func(ctx context.Context, state *S, err error) (<-chan N, error)

// Middleware constructs a [hosted.Middleware] around a [Classifier]
// function. The element type must be given explicitly:
//
//	mw := retry.Middleware[string](classifier)
func Middleware[T, S, N any](fn Classifier[S, N]) hosted.Middleware[T] {
	return func(next hosted.Handler[T]) hosted.Handler[T] {
		return func(ctx context.Context, v T) error {
			var state S
			for attempt := 1; ; attempt++ {
				// Make the attempt.
				err := next(withAttempt(ctx, attempt), v)
				if err == nil {
					return nil
				}
				// Classify the error.
				ch, fail := fn(ctx, &state, err)
				// Classifier is rejecting the error.
				if fail != nil {
					return fail
				}
				// Classifier ate the error condition.
				if ch == nil {
					return nil
				}
				// Wait for a decision.
				if err := waitOnChannel(ctx, ch, err); err != nil {
					return err
				}
			}
		}
	}
}

type attemptKey struct{}

// Attempt returns the 1-based attempt number of the element being
// handled. It returns 0 if ctx was not provided by a retry
// [Middleware]. When retry middleware is nested, the innermost attempt
// number is reported.
func Attempt(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}

func withAttempt(ctx context.Context, n int) context.Context {
	if n > 1 {
		trace.Log(ctx, "retry", strconv.Itoa(n))
	}
	return context.WithValue(ctx, attemptKey{}, n)
}

func waitOnChannel[N any](ctx context.Context, next <-chan N, err error) error {
	defer trace.StartRegion(ctx, "retry wait").End()
	select {
	case _, ok := <-next:
		if ok {
			return nil
		}
		return err
	case <-ctx.Done():
		return errors.Join(err, context.Cause(ctx))
	}
}
