// Copyright 2025 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package hosted

// A Finisher is implemented by [Queue] and [Sequence].
type Finisher interface {
	Done() <-chan struct{}
	FinishFunc(onFinished func(error), opts ...FinishOption)
}

// FinishOnReceive will finish the queue when a value is received from
// the channel or if the channel is closed. FinishOnReceive can be used,
// for example, with [os/signal.Notify]. If the queue has already been
// finished, this function is a no-op.
func FinishOnReceive[T any](q Finisher, ch <-chan T, opts ...FinishOption) {
	go func() {
		select {
		case <-ch:
			q.FinishFunc(nil, opts...)
		case <-q.Done():
		}
	}()
}
