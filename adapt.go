// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package hosted

import "context"

// A Handler is invoked by a queue's worker once per element, strictly
// sequentially. A non-nil error stops the worker; see [New].
type Handler[T any] func(ctx context.Context, v T) error

// Adaptable is the set of function signatures accepted by [Fn].
type Adaptable[T any] interface {
	func(T) | func(T) error |
		func(context.Context, T) | func(context.Context, T) error |
		Handler[T]
}

// Fn adapts various function signatures to a [Handler].
func Fn[T any, A Adaptable[T]](fn A) Handler[T] {
	a := any(fn)
	switch t := a.(type) {
	case func(T):
		return func(_ context.Context, v T) error {
			t(v)
			return nil
		}
	case func(T) error:
		return func(_ context.Context, v T) error {
			return t(v)
		}
	case func(context.Context, T):
		return func(ctx context.Context, v T) error {
			t(ctx, v)
			return nil
		}
	case func(context.Context, T) error:
		return t
	}
	return a.(Handler[T])
}

// A Middleware decorates the invocation of a [Handler]. See the limit
// and retry sub-packages for ready-made Middleware.
type Middleware[T any] func(next Handler[T]) Handler[T]

// Chain returns a Handler that passes each element through the
// Middleware before invoking the handler. The first Middleware is the
// outermost.
func Chain[T any](h Handler[T], mw ...Middleware[T]) Handler[T] {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
