// Copyright 2025 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package linger

import "time"

// CheckClean records a test error for every worker scheduled by the
// Recorder that is still running. The stack where each worker was
// scheduled is written into the test log.
func CheckClean(t TestingT, r *Recorder) {
	workers := r.Workers()
	if len(workers) == 0 {
		return
	}

	// Improve error messages if we're being called from a real test.
	if x, ok := t.(interface{ Helper() }); ok {
		x.Helper()
	}

	t.Errorf("%d lingering worker(s) detected", len(workers))
	for _, w := range workers {
		t.Errorf("  worker %d (%s) scheduled at:", w.ID, w.Priority)
		for frame := range w.Frames() {
			t.Errorf("    %s", formatFrame(frame))
		}
	}
}

// WaitClean polls the Recorder until every worker has returned or the
// timeout elapses, then calls [CheckClean]. A queue reports completion
// slightly before its worker's goroutine has fully unwound, so tests
// that finish their queues should prefer WaitClean.
func WaitClean(t TestingT, r *Recorder, timeout time.Duration) {
	if x, ok := t.(interface{ Helper() }); ok {
		x.Helper()
	}
	deadline := time.Now().Add(timeout)
	for len(r.Workers()) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	CheckClean(t, r)
}

// TestingT is the subset of [testing.TB] needed by [CheckClean].
type TestingT interface {
	Errorf(string, ...any)
}
