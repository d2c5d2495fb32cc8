// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package hosted

import "fmt"

// A Priority is a scheduling hint that is passed through to the
// [Scheduler] when a worker is started. It does not affect the order
// in which elements are processed.
type Priority int

// Scheduling priorities. The zero value is PriorityUserVisible.
const (
	PriorityUserVisible Priority = iota
	PriorityBestEffort
	PriorityUserBlocking
)

// String implements [fmt.Stringer].
func (p Priority) String() string {
	switch p {
	case PriorityUserVisible:
		return "user_visible"
	case PriorityBestEffort:
		return "best_effort"
	case PriorityUserBlocking:
		return "user_blocking"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// applyResume allows a Priority to be passed directly to
// [Queue.Resume] or [Queue.ResumeFunc].
func (p Priority) applyResume(cfg *resumeConfig) { cfg.priority = p }

// A Scheduler executes a queue's worker. Implementations must run the
// function exactly once and must not block the caller waiting for the
// function to complete.
type Scheduler interface {
	Schedule(p Priority, fn func())
}

// SchedulerFunc adapts a function to the [Scheduler] interface.
type SchedulerFunc func(p Priority, fn func())

// Schedule implements [Scheduler].
func (f SchedulerFunc) Schedule(p Priority, fn func()) { f(p, fn) }

// GoScheduler runs each worker in a new goroutine. The Go runtime has
// no notion of priority, so the hint is only recorded in execution
// traces.
var GoScheduler Scheduler = SchedulerFunc(func(_ Priority, fn func()) { go fn() })

// An Executor runs the notification callbacks passed to
// [Queue.ResumeFunc] and [Queue.FinishFunc].
type Executor func(fn func())

// Async is the default Executor, which runs each callback in a new
// goroutine. Callbacks may therefore call back into the queue,
// including the blocking methods.
func Async(fn func()) { go fn() }

// Inline is an Executor that runs callbacks on the goroutine that
// produced the notification. A started-callback executed by Inline
// runs on the worker goroutine and must not call the blocking
// [Queue.Finish].
func Inline(fn func()) { fn() }
