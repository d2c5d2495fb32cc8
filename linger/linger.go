// Copyright 2025 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package linger reports on queue workers that outlive the code that
// scheduled them.
package linger

import (
	"cmp"
	"fmt"
	"iter"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"vawter.tech/hosted"
)

// Skip runtime.Callers and Recorder.Schedule.
const callersOffset = 2

// A Worker describes a running worker that was scheduled through a
// [Recorder].
type Worker struct {
	ID       uint64          // Assigned in scheduling order.
	Priority hosted.Priority // The hint passed to the Scheduler.
	Stack    []uintptr       // Program counters of the scheduling call.
}

// Frames iterates over the recorded stack, innermost call first.
func (w *Worker) Frames() iter.Seq[runtime.Frame] {
	return func(yield func(runtime.Frame) bool) {
		frames := runtime.CallersFrames(w.Stack)
		for {
			frame, more := frames.Next()
			if !yield(frame) || !more {
				return
			}
		}
	}
}

// String is for debugging use only.
func (w *Worker) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "worker %d (%s) scheduled at:\n", w.ID, w.Priority)
	for frame := range w.Frames() {
		_, _ = fmt.Fprintf(&sb, "  %s\n", formatFrame(frame))
	}
	return sb.String()
}

func formatFrame(f runtime.Frame) string {
	return fmt.Sprintf("%s ( %s:%d )", f.Function, f.File, f.Line)
}

// NewRecorder constructs a [Recorder] that samples the call stack at the
// requested depth whenever a worker is scheduled. Workers are executed
// by the next Scheduler, or by [hosted.GoScheduler] if next is nil.
func NewRecorder(depth int, next hosted.Scheduler) *Recorder {
	if next == nil {
		next = hosted.GoScheduler
	}
	return &Recorder{depth: depth, next: next}
}

// A Recorder is a [hosted.Scheduler] that remembers where each worker
// was scheduled until the worker returns. Install it with
// [hosted.WithScheduler] in tests to ensure that every queue has been
// finished and its worker has exited.
type Recorder struct {
	counter atomic.Uint64
	depth   int
	next    hosted.Scheduler
	running sync.Map // uint64 -> *Worker
}

var _ hosted.Scheduler = (*Recorder)(nil)

// Workers returns a snapshot of the workers that are currently
// running, in the order in which they were scheduled.
func (r *Recorder) Workers() []*Worker {
	var ret []*Worker
	r.running.Range(func(_, value any) bool {
		ret = append(ret, value.(*Worker))
		return true
	})
	slices.SortFunc(ret, func(a, b *Worker) int { return cmp.Compare(a.ID, b.ID) })
	return ret
}

// Schedule implements [hosted.Scheduler].
func (r *Recorder) Schedule(p hosted.Priority, fn func()) {
	pc := make([]uintptr, r.depth)
	pc = pc[:runtime.Callers(callersOffset, pc)]

	w := &Worker{ID: r.counter.Add(1), Priority: p, Stack: pc}
	r.running.Store(w.ID, w)

	r.next.Schedule(p, func() {
		defer r.running.Delete(w.ID)
		fn()
	})
}
