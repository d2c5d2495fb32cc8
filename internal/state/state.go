// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package state defines the lifecycle state machine shared by the
// hosted queue types.
package state

import (
	"fmt"
	"sync"
)

// A Phase is one of the lifecycle states of a hosted queue.
type Phase int

// The lifecycle phases. The only legal transitions are
// Waiting->Running, Waiting->Terminal, and Running->Terminal.
const (
	Waiting Phase = iota
	Running
	Terminal
)

// String implements [fmt.Stringer].
func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case Running:
		return "running"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// A Machine is a tagged union of a Phase and the payload that is only
// meaningful while the Machine is Running. The payload is released by
// the transition to Terminal; [Machine.Finish] hands it to the caller
// one last time.
//
// Callbacks that are executed while the mutex is held must never
// block. Any waiting must happen after the Machine method returns.
type Machine[R any] struct {
	mu struct {
		sync.Mutex
		phase   Phase
		payload R
	}
}

// Load returns a snapshot of the current phase and payload.
func (m *Machine[R]) Load() (Phase, R) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mu.phase, m.mu.payload
}

// Start performs the Waiting->Running transition. The create callback
// is executed with the mutex held and must only allocate and schedule,
// never wait. If the Machine is not Waiting, create is not called and
// the current phase is returned alongside false.
func (m *Machine[R]) Start(create func() R) (Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mu.phase != Waiting {
		return m.mu.phase, false
	}
	m.mu.payload = create()
	m.transitionLocked(Running)
	return Waiting, true
}

// Finish moves the Machine into its Terminal phase. It returns the
// phase that was replaced and, if that phase was Running, the payload,
// which the Machine no longer retains.
// The shutdown callback, if non-nil, is executed with the mutex held
// only when this call performs the Running->Terminal transition. It
// must not block.
func (m *Machine[R]) Finish(shutdown func(R)) (Phase, R) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, payload := m.mu.phase, m.mu.payload
	switch prev {
	case Terminal:
		var zero R
		return Terminal, zero
	case Running:
		if shutdown != nil {
			shutdown(payload)
		}
	}
	m.transitionLocked(Terminal)
	var zero R
	m.mu.payload = zero
	return prev, payload
}

// With executes the callback with the mutex held. The callback must
// not block or call back into the Machine.
func (m *Machine[R]) With(fn func(Phase, R)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.mu.phase, m.mu.payload)
}

// transitionLocked enforces the one-way ordering of phases.
func (m *Machine[R]) transitionLocked(next Phase) {
	if next <= m.mu.phase {
		// Implementation error, not user problem.
		panic(fmt.Sprintf("illegal transition %s -> %s", m.mu.phase, next))
	}
	m.mu.phase = next
}
