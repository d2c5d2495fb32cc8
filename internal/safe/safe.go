// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package safe contains utilities for executing user-provided handlers
// and callbacks without letting a panic escape the worker goroutine.
package safe

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

const captureDepth = 32

// A RecoveredError associates a recovered panic value with the stack
// of the goroutine that panicked.
type RecoveredError struct {
	Err   error
	Stack []uintptr
}

// Error implements error.
func (e *RecoveredError) Error() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "recovered: %v\n", e.Err)
	frames := runtime.CallersFrames(e.Stack)
	for {
		frame, more := frames.Next()
		_, _ = fmt.Fprintf(&sb, "%s ( %s:%d )\n", frame.Function, frame.File, frame.Line)
		if !more {
			return sb.String()
		}
	}
}

// String is for debugging use only.
func (e *RecoveredError) String() string {
	return e.Error()
}

// Unwrap returns the enclosed error.
func (e *RecoveredError) Unwrap() error { return e.Err }

// recovered converts a recover() value into a RecoveredError. It
// returns nil if r is nil.
func recovered(r any) error {
	var err error
	switch t := r.(type) {
	case nil:
		return nil
	case error:
		err = t
	default:
		err = fmt.Errorf("panic: %v", t)
	}
	// Skip runtime.Callers and this function.
	stack := make([]uintptr, captureDepth)
	stack = stack[:runtime.Callers(3, stack)]
	return &RecoveredError{Err: err, Stack: stack}
}

// Call executes a callback. If the callback panics, an error will be
// returned.
func Call(fn func()) (err error) {
	defer func() {
		if rec := recovered(recover()); rec != nil {
			err = rec
		}
	}()
	fn()
	return nil
}

// Invoke passes the value to the handler. If the handler panics, the
// recovered value is returned as a [RecoveredError].
func Invoke[T any](ctx context.Context, fn func(context.Context, T) error, v T) (err error) {
	defer func() {
		if rec := recovered(recover()); rec != nil {
			err = rec
		}
	}()
	return fn(ctx, v)
}
