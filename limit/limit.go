// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package limit provides [hosted.Middleware] to impose execution
// limits on handlers.
//
// Attach the Middlewares using [hosted.Chain] when constructing a
// queue's handler.
package limit

import (
	"context"
	"errors"
	"runtime/trace"
	"time"

	"golang.org/x/time/rate"
	"vawter.tech/hosted"
)

// WithMaxConcurrency limits the total number of handler invocations
// that may execute at once across every queue that shares the returned
// Middleware. A single queue never invokes its handler concurrently, so
// this is useful only when the Middleware is shared. If the worker's
// context is canceled while waiting for a slot, the handler is not
// invoked and the context's cause is returned.
func WithMaxConcurrency[T any](limit int) hosted.Middleware[T] {
	if limit <= 0 {
		panic(errors.New("limit must be greater than zero"))
	}
	ch := make(chan struct{}, limit)
	return func(next hosted.Handler[T]) hosted.Handler[T] {
		return func(ctx context.Context, v T) error {
			// Fast-path: A concurrency slot is available.
			select {
			case ch <- struct{}{}:
			default:
				if err := acquire(ctx, ch); err != nil {
					return err
				}
			}
			defer func() { <-ch }()
			return next(ctx, v)
		}
	}
}

func acquire(ctx context.Context, ch chan<- struct{}) error {
	defer trace.StartRegion(ctx, "concurrency wait").End()
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// WithMaxRate is a wrapper around a [rate.Limiter] that enforces a rate
// by delaying each handler invocation. If the worker's context is
// canceled while waiting for a token, the handler is not invoked and
// the context's cause is returned.
func WithMaxRate[T any](r float64, b int) hosted.Middleware[T] {
	l := rate.NewLimiter(rate.Limit(r), b)
	return func(next hosted.Handler[T]) hosted.Handler[T] {
		return func(ctx context.Context, v T) error {
			// Fast-path: there's capacity.
			if l.Allow() {
				return next(ctx, v)
			}
			if err := wait(ctx, l); err != nil {
				return err
			}
			return next(ctx, v)
		}
	}
}

func wait(ctx context.Context, l *rate.Limiter) error {
	defer trace.StartRegion(ctx, "rate limit wait").End()
	if err := l.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	}
	return nil
}

// WithTimeout bounds the duration of each handler invocation. The
// handler's context is canceled once the timeout elapses; handlers are
// expected to observe the cancellation cooperatively.
func WithTimeout[T any](d time.Duration) hosted.Middleware[T] {
	if d <= 0 {
		panic(errors.New("timeout must be greater than zero"))
	}
	return func(next hosted.Handler[T]) hosted.Handler[T] {
		return func(ctx context.Context, v T) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, v)
		}
	}
}
