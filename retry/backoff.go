// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"vawter.tech/hosted"
)

// Backoff retries a failed element after an exponentially increasing
// delay. The worker is suspended while it waits, so a long MaxDelay
// holds back every element queued behind the one being retried.
type Backoff struct {
	Jitter      time.Duration    // Delays are adjusted ±50% of this value. Default is 0.
	MaxAttempts int              // Defaults to 4 if unset.
	MaxDelay    time.Duration    // Defaults to 1s if unset.
	MinDelay    time.Duration    // Defaults to 10ms if unset.
	Multiplier  float32          // Defaults to 10.0 if unset.
	Retryable   func(error) bool // Defaults to retrying all errors.
}

// BackoffState is the per-element state used by [Backoff.Classifier].
type BackoffState struct {
	Count int           // Failed attempts so far.
	Delay time.Duration // The most recent delay, without jitter.
}

// Classifier returns a [Classifier] that applies exponential backoff
// with jitter.
func (b *Backoff) Classifier() Classifier[BackoffState, time.Time] {
	cfg := b.withDefaults()
	return func(_ context.Context, st *BackoffState, err error) (<-chan time.Time, error) {
		if !cfg.Retryable(err) {
			return nil, err
		}
		st.Count++
		if st.Count >= cfg.MaxAttempts {
			return nil, &MaxAttemptsError{Attempts: st.Count, Err: err}
		}
		st.Delay = cfg.next(st.Delay)
		return time.After(st.Delay + cfg.jitter()), nil
	}
}

// WithBackoff returns a [hosted.Middleware] that applies exponential
// backoff with jitter to failed elements.
func WithBackoff[T any](b *Backoff) hosted.Middleware[T] {
	return Middleware[T](b.Classifier())
}

// next computes the delay that follows prev, clamped to the configured
// bounds.
func (b *Backoff) next(prev time.Duration) time.Duration {
	grown := time.Duration(float32(prev) * b.Multiplier)
	return min(max(b.MinDelay, grown), b.MaxDelay)
}

func (b *Backoff) jitter() time.Duration {
	if b.Jitter == 0 {
		return 0
	}
	return time.Duration((rand.Float32() - 0.5) * float32(b.Jitter))
}

// withDefaults returns a copy with every unset field initialized.
func (b *Backoff) withDefaults() *Backoff {
	ret := *b
	if ret.MaxAttempts == 0 {
		ret.MaxAttempts = 4
	}
	if ret.MaxDelay == 0 {
		ret.MaxDelay = time.Second
	}
	if ret.MinDelay == 0 {
		ret.MinDelay = 10 * time.Millisecond
	}
	if ret.Multiplier == 0 {
		ret.Multiplier = 10
	}
	if ret.Retryable == nil {
		ret.Retryable = func(error) bool { return true }
	}
	return &ret
}
