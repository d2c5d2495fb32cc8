// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package hosted

import (
	"encoding/json"
	"fmt"
	"time"
)

// An Info is a point-in-time summary of a queue, suitable for
// observability endpoints.
type Info struct {
	Done      bool      // The queue is terminal and its worker has exited.
	Dropped   int64     // Elements that never reached the handler.
	Err       error     // The worker's outcome, once Done.
	Name      string    // The value passed to [WithName].
	Pending   int       // Elements awaiting the handler, while Running.
	Phase     Phase     // The lifecycle phase.
	Processed int64     // Handler invocations, successful or not.
	Started   time.Time // Zero until the worker has been resumed.
}

// Info returns a summary of the queue.
func (q *Queue[T]) Info() *Info {
	phase, w := q.sm.Load()
	ret := &Info{
		Dropped:   q.dropped.Load(),
		Name:      q.cfg.name,
		Phase:     phase,
		Processed: q.processed.Load(),
	}
	if w != nil {
		ret.Pending = w.ch.Len()
	}
	if started := q.started.Load(); started != nil {
		ret.Started = *started
	}
	select {
	case <-q.done:
		ret.Done = true
		ret.Err = q.outcome
	default:
	}
	return ret
}

// State returns a one-word description of the queue: waiting, running,
// finishing, finished, or failed.
func (i *Info) State() string {
	switch {
	case i.Done && i.Err != nil:
		return "failed"
	case i.Done:
		return "finished"
	case i.Phase == Terminal:
		return "finishing"
	default:
		return i.Phase.String()
	}
}

// MarshalJSON summarizes the Info.
func (i *Info) MarshalJSON() ([]byte, error) {
	p := struct {
		Dropped   int64     `json:"dropped,omitzero"`
		Error     string    `json:"error,omitzero"`
		Name      string    `json:"name,omitzero"`
		Pending   int       `json:"pending,omitzero"`
		Processed int64     `json:"processed,omitzero"`
		Started   time.Time `json:"started,omitzero"`
		State     string    `json:"state"`
	}{
		Dropped:   i.Dropped,
		Name:      i.Name,
		Pending:   i.Pending,
		Processed: i.Processed,
		Started:   i.Started,
		State:     i.State(),
	}
	if i.Err != nil {
		p.Error = i.Err.Error()
	}
	return json.Marshal(p)
}

// String is for debugging use only.
func (i *Info) String() string {
	state := "(" + i.State() + ")"
	if i.Err != nil {
		state = fmt.Sprintf("(failed %v)", i.Err)
	}
	return fmt.Sprintf("%s %s (%d pending) (%d processed) (%d dropped)",
		i.Name, state, i.Pending, i.Processed, i.Dropped)
}
