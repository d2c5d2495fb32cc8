// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package hosted_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vawter.tech/hosted"
)

func TestOrdering(t *testing.T) {
	const count = 1_000_000
	want := numbered(count)

	t.Run("blocking", func(t *testing.T) {
		r := require.New(t)
		_, opts := queueOptionsForTest(t)

		var rec recorder[string]
		q := hosted.NewValues(rec.handle, opts...)
		r.NoError(q.Resume(t.Context()))
		for _, s := range want {
			q.Send(s)
		}
		r.NoError(q.Finish(t.Context()))
		r.Equal(want, rec.Seen())
	})

	t.Run("callback", func(t *testing.T) {
		r := require.New(t)
		_, opts := queueOptionsForTest(t)

		var rec recorder[string]
		q := hosted.NewValues(rec.handle, opts...)

		started := make(chan struct{})
		q.ResumeFunc(func() { close(started) })
		<-started
		for _, s := range want {
			q.Send(s)
		}

		finished := make(chan error, 1)
		q.FinishFunc(func(err error) { finished <- err })
		r.NoError(<-finished)
		r.Equal(want, rec.Seen())
	})
}

func TestRacingProducers(t *testing.T) {
	r := require.New(t)
	_, opts := queueOptionsForTest(t)

	const producers = 8
	const each = 10_000

	type element struct{ producer, seq int }
	var rec recorder[element]
	q := hosted.NewValues(rec.handle, opts...)
	r.NoError(q.Resume(t.Context()))

	var wg sync.WaitGroup
	for p := range producers {
		wg.Go(func() {
			for i := range each {
				q.Send(element{p, i})
			}
		})
	}
	wg.Wait()
	r.NoError(q.Finish(t.Context()))

	seen := rec.Seen()
	r.Len(seen, producers*each)
	next := make([]int, producers)
	for _, e := range seen {
		r.Equal(next[e.producer], e.seq, "producer %d out of order", e.producer)
		next[e.producer]++
	}
}

func TestNoConcurrentHandlers(t *testing.T) {
	r := require.New(t)
	_, opts := queueOptionsForTest(t)

	var active, maxSeen atomic.Int32
	q := hosted.NewValues(func(context.Context, int) {
		cur := active.Add(1)
		defer active.Add(-1)
		for {
			old := maxSeen.Load()
			if cur <= old || maxSeen.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(time.Microsecond)
	}, opts...)
	r.NoError(q.Resume(t.Context()))

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for i := range 250 {
				q.Send(i)
			}
		})
	}
	wg.Wait()
	r.NoError(q.Finish(t.Context()))
	r.Equal(int32(1), maxSeen.Load())
}

func TestDrainBeforeComplete(t *testing.T) {
	for _, n := range []int{0, 1, 2, 10, 1000, 100_000} {
		t.Run("blocking", func(t *testing.T) {
			r := require.New(t)
			_, opts := queueOptionsForTest(t)

			var count atomic.Int64
			q := hosted.NewValues(func(context.Context, int) { count.Add(1) }, opts...)
			r.NoError(q.Resume(t.Context()))
			for i := range n {
				q.Send(i)
			}
			r.NoError(q.Finish(t.Context()))
			r.Equal(int64(n), count.Load())
			r.Zero(q.Len())
		})

		t.Run("callback", func(t *testing.T) {
			r := require.New(t)
			_, opts := queueOptionsForTest(t)

			var count atomic.Int64
			q := hosted.NewValues(func(context.Context, int) { count.Add(1) }, opts...)
			r.NoError(q.Resume(t.Context()))
			for i := range n {
				q.Send(i)
			}
			finished := make(chan int64, 1)
			q.FinishFunc(func(error) { finished <- count.Load() })
			r.Equal(int64(n), <-finished)
		})
	}
}

func TestFinishIdempotent(t *testing.T) {
	r := require.New(t)
	_, opts := queueOptionsForTest(t)

	boom := errors.New("boom")
	q := hosted.New(func(context.Context, int) error { return boom }, opts...)
	r.NoError(q.Resume(t.Context()))
	q.Send(1)

	var calls atomic.Int32
	finished := make(chan error, 1)
	q.FinishFunc(func(err error) {
		calls.Add(1)
		finished <- err
	})
	r.ErrorIs(<-finished, boom)

	// The second call neither blocks nor reports a different outcome.
	q.FinishFunc(func(error) { calls.Add(1) })
	r.NoError(q.Finish(t.Context()))

	// The outcome remains available.
	r.ErrorIs(q.Wait(t.Context()), boom)
	r.ErrorIs(q.Err(), boom)

	time.Sleep(10 * time.Millisecond)
	r.Equal(int32(1), calls.Load())
}

func TestFinishFromWaiting(t *testing.T) {
	r := require.New(t)
	log, opts := queueOptionsForTest(t)

	var called atomic.Bool
	q := hosted.New(func(context.Context, int) error {
		called.Store(true)
		return nil
	}, opts...)
	r.Equal(hosted.Waiting, q.Phase())

	finished := make(chan error, 1)
	q.FinishFunc(func(err error) { finished <- err }, hosted.WithCause(errors.New("ignored")))
	r.NoError(<-finished)
	r.Equal(hosted.Terminal, q.Phase())

	select {
	case <-q.Done():
	default:
		r.Fail("Done should be closed")
	}

	// Nothing can happen after the queue is terminal.
	r.NoError(q.Resume(t.Context()))
	q.Send(1)
	r.NoError(q.Finish(t.Context()))
	r.False(called.Load())
	r.Equal(1, log.Count("resume called after finish"))
	r.Equal(1, log.Count("send called after finish"))
}

func TestSendBeforeResume(t *testing.T) {
	r := require.New(t)
	log, opts := queueOptionsForTest(t)

	var rec recorder[int]
	q := hosted.NewValues(rec.handle, opts...)
	q.Send(1)
	q.Send(2)
	r.Zero(q.Len())

	r.NoError(q.Resume(t.Context()))
	q.Send(3)
	r.NoError(q.Finish(t.Context()))

	r.Equal([]int{3}, rec.Seen())
	r.Equal(2, log.Count("send called before resume"))
	r.Equal(int64(2), q.Info().Dropped)
}

func TestSendAfterFinish(t *testing.T) {
	r := require.New(t)
	log, opts := queueOptionsForTest(t)

	var rec recorder[int]
	q := hosted.NewValues(rec.handle, opts...)
	r.NoError(q.Resume(t.Context()))
	q.Send(1)
	r.NoError(q.Finish(t.Context()))
	q.Send(2)

	r.Equal([]int{1}, rec.Seen())
	r.Equal(1, log.Count("send called after finish"))
}

func TestResumeMoreThanOnce(t *testing.T) {
	r := require.New(t)
	log, opts := queueOptionsForTest(t)

	var starts atomic.Int32
	sched := hosted.SchedulerFunc(func(_ hosted.Priority, fn func()) {
		starts.Add(1)
		go fn()
	})
	q := hosted.NewValues(func(context.Context, int) {},
		append(opts, hosted.WithScheduler(sched))...)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() { _ = q.Resume(t.Context()) })
	}
	wg.Wait()

	var callbackRan atomic.Bool
	q.ResumeFunc(func() { callbackRan.Store(true) })
	r.NoError(q.Finish(t.Context()))

	r.Equal(int32(1), starts.Load())
	r.Equal(8, log.Count("resume called more than once"))
	r.False(callbackRan.Load())
}

func TestFailurePropagation(t *testing.T) {
	const n, k = 10, 5
	boom := errors.New("boom")

	t.Run("blocking", func(t *testing.T) {
		r := require.New(t)
		_, opts := queueOptionsForTest(t, hosted.WithName("failing"))

		var seen []int
		q := hosted.New(func(_ context.Context, v int) error {
			seen = append(seen, v)
			if v == k {
				return boom
			}
			return nil
		}, opts...)
		r.NoError(q.Resume(t.Context()))
		for i := range n {
			q.Send(i)
		}
		err := q.Finish(t.Context())
		r.ErrorIs(err, boom)
		r.EqualError(err, "failing: element 5: boom")
		r.Equal([]int{0, 1, 2, 3, 4, 5}, seen)
	})

	t.Run("callback", func(t *testing.T) {
		r := require.New(t)
		_, opts := queueOptionsForTest(t)

		var seen atomic.Int32
		q := hosted.New(hosted.Fn[int](func(v int) error {
			seen.Add(1)
			if v == k {
				return boom
			}
			return nil
		}), opts...)
		r.NoError(q.Resume(t.Context()))
		for i := range n {
			q.Send(i)
		}
		finished := make(chan error, 1)
		q.FinishFunc(func(err error) { finished <- err })
		r.ErrorIs(<-finished, boom)
		r.Equal(int32(k+1), seen.Load())
	})
}

func TestWorkerExitDropsPending(t *testing.T) {
	r := require.New(t)
	log, opts := queueOptionsForTest(t)

	boom := errors.New("boom")
	failed := make(chan struct{})
	q := hosted.New(func(context.Context, int) error {
		defer close(failed)
		return boom
	}, opts...)
	r.NoError(q.Resume(t.Context()))
	q.Send(1)
	<-failed

	// The worker exits without the queue being finished.
	r.Eventually(func() bool {
		q.Send(2)
		return log.Count("send called after worker exited") > 0
	}, time.Second, time.Millisecond)
	r.Equal(hosted.Running, q.Phase())
	r.ErrorIs(q.Finish(t.Context()), boom)
}

func TestFinishCause(t *testing.T) {
	cause := errors.New("cause")

	t.Run("after drain", func(t *testing.T) {
		r := require.New(t)
		_, opts := queueOptionsForTest(t)

		var rec recorder[int]
		q := hosted.NewValues(rec.handle, opts...)
		r.NoError(q.Resume(t.Context()))
		for i := range 100 {
			q.Send(i)
		}
		r.ErrorIs(q.Finish(t.Context(), hosted.WithCause(cause)), cause)
		r.Len(rec.Seen(), 100)
	})

	t.Run("first failure wins", func(t *testing.T) {
		r := require.New(t)
		_, opts := queueOptionsForTest(t)

		boom := errors.New("boom")
		q := hosted.New(func(_ context.Context, v int) error {
			if v == 2 {
				return boom
			}
			return nil
		}, opts...)
		r.NoError(q.Resume(t.Context()))
		for i := range 5 {
			q.Send(i)
		}
		err := q.Finish(t.Context(), hosted.WithCause(cause))
		r.ErrorIs(err, boom)
		r.NotErrorIs(err, cause)
	})
}

func TestCancel(t *testing.T) {
	for _, failing := range []bool{false, true} {
		name := "values"
		if failing {
			name = "failing"
		}
		t.Run(name, func(t *testing.T) {
			r := require.New(t)
			_, opts := queueOptionsForTest(t)

			entered := make(chan struct{})
			release := make(chan struct{})
			var count atomic.Int32
			handle := func(ctx context.Context, v int) {
				count.Add(1)
				if v == 0 {
					close(entered)
					<-release
				}
			}

			var q *hosted.Queue[int]
			if failing {
				q = hosted.New(hosted.Fn[int](handle), opts...)
			} else {
				q = hosted.NewValues(handle, opts...)
			}
			r.NoError(q.Resume(t.Context()))
			for i := range 10 {
				q.Send(i)
			}
			<-entered
			q.Cancel()
			close(release)

			err := q.Finish(t.Context())
			if failing {
				r.ErrorIs(err, hosted.ErrCanceled)
			} else {
				r.NoError(err)
			}
			r.Equal(int32(1), count.Load())
			r.Equal(int64(9), q.Info().Dropped)
		})
	}
}

func TestCancelBeforeResume(t *testing.T) {
	r := require.New(t)
	_, opts := queueOptionsForTest(t)

	var called atomic.Bool
	q := hosted.New(func(context.Context, int) error {
		called.Store(true)
		return nil
	}, opts...)
	q.Cancel()

	// The worker checks for cancellation before consuming anything.
	r.NoError(q.Resume(t.Context()))
	q.Send(1)
	r.ErrorIs(q.Finish(t.Context()), hosted.ErrCanceled)
	r.False(called.Load())
}

func TestParentContextCanceled(t *testing.T) {
	r := require.New(t)
	_, opts := queueOptionsForTest(t)

	parent, cancel := context.WithCancelCause(t.Context())
	stop := errors.New("stop")

	q := hosted.New(func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return nil
	}, append(opts, hosted.WithContext(parent))...)
	r.NoError(q.Resume(t.Context()))

	// The worker is idle; cancellation must interrupt its wait.
	cancel(stop)
	r.ErrorIs(q.Finish(t.Context()), stop)
}

func TestHandlerPanic(t *testing.T) {
	t.Run("failing", func(t *testing.T) {
		r := require.New(t)
		_, opts := queueOptionsForTest(t)

		q := hosted.New(func(context.Context, int) error { panic("kaboom") }, opts...)
		r.NoError(q.Resume(t.Context()))
		q.Send(1)
		q.Send(2)

		err := q.Finish(t.Context())
		var recovered *hosted.RecoveredError
		r.ErrorAs(err, &recovered)
		r.Contains(recovered.Error(), "kaboom")
		r.Equal(int64(1), q.Info().Processed)
	})

	t.Run("values", func(t *testing.T) {
		r := require.New(t)
		_, opts := queueOptionsForTest(t)

		boom := errors.New("boom")
		q := hosted.NewValues(func(context.Context, int) { panic(boom) }, opts...)
		r.NoError(q.Resume(t.Context()))
		q.Send(1)

		err := q.Finish(t.Context())
		var recovered *hosted.RecoveredError
		r.ErrorAs(err, &recovered)
		r.ErrorIs(err, boom)
	})
}

func TestResumeFuncStartsBeforeConsuming(t *testing.T) {
	r := require.New(t)
	_, opts := queueOptionsForTest(t, hosted.WithExecutor(hosted.Inline))

	var mu sync.Mutex
	var events []string
	q := hosted.NewValues(func(_ context.Context, v string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, v)
	}, opts...)

	// Inline runs the callback on the worker goroutine.
	q.ResumeFunc(func() {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, "started")
	})
	q.Send("a")
	q.Send("b")
	r.NoError(q.Finish(t.Context()))
	r.Equal([]string{"started", "a", "b"}, events)
}

func TestResumeContextDone(t *testing.T) {
	r := require.New(t)
	_, opts := queueOptionsForTest(t)

	// A Scheduler that defers the worker until released.
	pending := make(chan func(), 1)
	sched := hosted.SchedulerFunc(func(_ hosted.Priority, fn func()) { pending <- fn })

	var rec recorder[int]
	q := hosted.NewValues(rec.handle, append(opts, hosted.WithScheduler(sched))...)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	r.ErrorIs(q.Resume(ctx), context.DeadlineExceeded)

	// The queue is running even though the worker has not yet started.
	r.Equal(hosted.Running, q.Phase())
	q.Send(1)
	go (<-pending)()
	r.NoError(q.Finish(t.Context()))
	r.Equal([]int{1}, rec.Seen())
}

func TestResumePriority(t *testing.T) {
	a := assert.New(t)
	_, opts := queueOptionsForTest(t, hosted.WithPriority(hosted.PriorityBestEffort))

	seen := make(chan hosted.Priority, 2)
	sched := hosted.SchedulerFunc(func(p hosted.Priority, fn func()) {
		seen <- p
		go fn()
	})
	opts = append(opts, hosted.WithScheduler(sched))

	q := hosted.NewValues(func(context.Context, int) {}, opts...)
	a.NoError(q.Resume(t.Context()))
	a.NoError(q.Finish(t.Context()))
	a.Equal(hosted.PriorityBestEffort, <-seen)

	q = hosted.NewValues(func(context.Context, int) {}, opts...)
	a.NoError(q.Resume(t.Context(), hosted.PriorityUserBlocking))
	a.NoError(q.Finish(t.Context()))
	a.Equal(hosted.PriorityUserBlocking, <-seen)
}

func TestFinishContextDone(t *testing.T) {
	r := require.New(t)
	_, opts := queueOptionsForTest(t)

	release := make(chan struct{})
	q := hosted.NewValues(func(context.Context, int) { <-release }, opts...)
	r.NoError(q.Resume(t.Context()))
	q.Send(1)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	r.ErrorIs(q.Finish(ctx), context.DeadlineExceeded)
	r.Equal(hosted.Terminal, q.Phase())
	r.Nil(q.Err())

	close(release)
	r.NoError(q.Wait(t.Context()))
}

func TestCallbackPanicIsLogged(t *testing.T) {
	r := require.New(t)
	log, opts := queueOptionsForTest(t, hosted.WithExecutor(hosted.Inline))

	q := hosted.NewValues(func(context.Context, int) {}, opts...)
	r.NoError(q.Resume(t.Context()))
	q.FinishFunc(func(error) { panic("callback") })
	<-q.Done()

	r.Eventually(func() bool { return log.Count("callback panicked") == 1 },
		time.Second, time.Millisecond)
}

// observed records Observer events.
type observed struct {
	hosted.NopObserver
	dropped   map[hosted.DropReason]int
	finished  []error
	mu        sync.Mutex
	processed int
	sent      int
	started   []hosted.Priority
}

func (o *observed) Sent(string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent++
}

func (o *observed) Dropped(_ string, reason hosted.DropReason, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[reason] += count
}

func (o *observed) Started(_ string, p hosted.Priority) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, p)
}

func (o *observed) Processed(string, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processed++
}

func (o *observed) Finished(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, err)
}

func TestObserver(t *testing.T) {
	r := require.New(t)
	obs := &observed{dropped: make(map[hosted.DropReason]int)}
	_, opts := queueOptionsForTest(t, hosted.WithObserver(obs))

	q := hosted.NewValues(func(context.Context, int) {}, opts...)
	q.Send(0)
	r.NoError(q.Resume(t.Context(), hosted.PriorityUserBlocking))
	for i := range 5 {
		q.Send(i)
	}
	r.NoError(q.Finish(t.Context()))
	q.Send(6)
	q.Send(7)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	r.Equal(5, obs.sent)
	r.Equal(5, obs.processed)
	r.Equal([]hosted.Priority{hosted.PriorityUserBlocking}, obs.started)
	r.Equal(map[hosted.DropReason]int{
		hosted.DropNotStarted: 1,
		hosted.DropFinished:   2,
	}, obs.dropped)
	r.Equal([]error{nil}, obs.finished)
}

func TestDropReasonString(t *testing.T) {
	a := assert.New(t)
	a.Equal("not_started", hosted.DropNotStarted.String())
	a.Equal("finished", hosted.DropFinished.String())
	a.Equal("worker_exited", hosted.DropWorkerExited.String())
	a.Equal("DropReason(0)", hosted.DropReason(0).String())
}

func TestPriorityString(t *testing.T) {
	a := assert.New(t)
	a.Equal("user_visible", hosted.PriorityUserVisible.String())
	a.Equal("best_effort", hosted.PriorityBestEffort.String())
	a.Equal("user_blocking", hosted.PriorityUserBlocking.String())
	a.Equal("Priority(7)", hosted.Priority(7).String())
}

func TestString(t *testing.T) {
	r := require.New(t)
	q := hosted.NewValues(func(context.Context, int) {}, hosted.WithName("named"),
		hosted.WithLogger(&testLogger{t: t}))
	r.Equal("named: (waiting) (0 pending) (0 processed) (0 dropped)", q.String())
	q.FinishFunc(nil)
	<-q.Done()
	r.Equal("named: (terminal) (0 pending) (0 processed) (0 dropped)", q.String())
}
