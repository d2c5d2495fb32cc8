// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"

	"vawter.tech/hosted"
)

// Loop retries a failed element immediately.
type Loop struct {
	MaxAttempts int              // Defaults to 2 if unset.
	Retryable   func(error) bool // Defaults to retrying all errors.
}

// Classifier returns a [Classifier] that retries immediately. Its state
// is the number of failed attempts.
func (l *Loop) Classifier() Classifier[int, struct{}] {
	limit := l.MaxAttempts
	if limit == 0 {
		limit = 2
	}
	retryable := l.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	return func(_ context.Context, failed *int, err error) (<-chan struct{}, error) {
		if !retryable(err) {
			return nil, err
		}
		*failed++
		if *failed >= limit {
			return nil, &MaxAttemptsError{Attempts: *failed, Err: err}
		}
		// A closed channel would abandon the retry.
		ch := make(chan struct{}, 1)
		ch <- struct{}{}
		return ch, nil
	}
}

// WithLoop returns a [hosted.Middleware] that retries failed elements
// without any delay.
func WithLoop[T any](l *Loop) hosted.Middleware[T] {
	return Middleware[T](l.Classifier())
}
