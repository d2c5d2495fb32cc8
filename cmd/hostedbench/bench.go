// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vawter.tech/hosted"
	"vawter.tech/hosted/internal/config"
	"vawter.tech/hosted/limit"
	"vawter.tech/hosted/retry"
)

// errInjected is returned by the first attempt to handle the element
// selected by bench.failAt.
var errInjected = errors.New("injected failure")

type element struct {
	producer int
	seq      int
}

// target is the subset of [hosted.Queue] and [hosted.Sequence] that the
// workload drives.
type target interface {
	hosted.Finisher
	Finish(ctx context.Context, opts ...hosted.FinishOption) error
	Info() *hosted.Info
	Send(v element)
	Wait(ctx context.Context) error
}

// checker verifies that each producer's elements arrive in the order
// that they were sent. It is only accessed from the queue's worker.
type checker struct {
	delay  time.Duration
	failAt int
	next   []int
}

func (c *checker) handle(ctx context.Context, e element) error {
	if want := c.next[e.producer]; e.seq != want {
		return fmt.Errorf("producer %d: out of order: got %d, want %d",
			e.producer, e.seq, want)
	}
	if e.producer == 0 && e.seq == c.failAt && retry.Attempt(ctx) <= 1 {
		return errInjected
	}
	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-time.After(c.delay):
		}
	}
	c.next[e.producer]++
	return nil
}

// middleware builds the handler stack described by the configuration.
// Retries are outermost so that each attempt is rate-limited and has
// its own deadline.
func middleware(cfg config.BenchConfig) []hosted.Middleware[element] {
	var ret []hosted.Middleware[element]
	if cfg.RetryAttempts > 0 {
		ret = append(ret, retry.WithBackoff[element](&retry.Backoff{
			MaxAttempts: cfg.RetryAttempts,
			MinDelay:    time.Millisecond,
			MaxDelay:    100 * time.Millisecond,
			Retryable: func(err error) bool {
				return errors.Is(err, errInjected)
			},
		}))
	}
	if cfg.Rate > 0 {
		ret = append(ret, limit.WithMaxRate[element](cfg.Rate, cfg.Burst))
	}
	if cfg.Timeout > 0 {
		ret = append(ret, limit.WithTimeout[element](cfg.Timeout))
	}
	return ret
}

// open creates and starts a queue named by its index.
func open(
	ctx context.Context, cfg config.BenchConfig, idx int, opts []hosted.Option,
) (target, error) {
	c := &checker{
		delay:  cfg.HandlerDelay,
		failAt: cfg.FailAt,
		next:   make([]int, cfg.Producers),
	}
	h := hosted.Chain(hosted.Fn[element](c.handle), middleware(cfg)...)

	opts = append([]hosted.Option{
		hosted.WithContext(ctx),
		hosted.WithName(fmt.Sprintf("bench-%d", idx)),
		hosted.WithPriority(cfg.Priority),
	}, opts...)

	if cfg.Eager {
		s, err := hosted.Start(ctx, h, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	q := hosted.New(h, opts...)
	// Deferred start: elements sent before the worker is scheduled
	// would be dropped, so wait for it.
	if err := q.Resume(ctx); err != nil {
		q.Cancel()
		q.FinishFunc(nil)
		return nil, err
	}
	return q, nil
}

// run drives every configured queue to completion and returns a
// snapshot of each. The stop channel finishes all queues early.
func run(
	ctx context.Context, cfg config.BenchConfig, stop <-chan struct{}, opts ...hosted.Option,
) ([]*hosted.Info, error) {
	targets := make([]target, 0, cfg.Queues)
	for i := range cfg.Queues {
		t, err := open(ctx, cfg, i, opts)
		if err != nil {
			for _, t := range targets {
				t.FinishFunc(nil)
			}
			return nil, err
		}
		hosted.FinishOnReceive(t, stop, hosted.WithCause(errors.New("interrupted")))
		targets = append(targets, t)
	}

	var wg sync.WaitGroup
	for _, t := range targets {
		for p := range cfg.Producers {
			wg.Go(func() {
				for i := p; i < cfg.Elements; i += cfg.Producers {
					t.Send(element{producer: p, seq: i / cfg.Producers})
				}
			})
		}
	}
	wg.Wait()

	infos := make([]*hosted.Info, len(targets))
	var errs []error
	for i, t := range targets {
		// The stop channel may have finished the queue already.
		err := t.Finish(ctx)
		if err == nil {
			err = t.Wait(ctx)
		}
		if err != nil {
			errs = append(errs, err)
		}
		infos[i] = t.Info()
	}
	return infos, errors.Join(errs...)
}
