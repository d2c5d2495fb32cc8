// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package hosted

import (
	"context"
	"log/slog"

	"vawter.tech/hosted/logging"
)

// A Logger receives diagnostic messages, such as reports of API
// misuse. Both [logging.Slog] and [logging.Zerolog] implement Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// An Option configures a [Queue] or [Sequence].
type Option func(*config)

type config struct {
	ctx       context.Context
	executor  Executor
	logger    Logger
	name      string
	observer  Observer
	priority  Priority
	scheduler Scheduler
}

func newConfig(opts []Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.sanitize()
	return cfg
}

func (c *config) sanitize() {
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	if c.executor == nil {
		c.executor = Async
	}
	if c.logger == nil {
		c.logger = logging.NewSlog(slog.Default())
	}
	if c.name == "" {
		c.name = "queue"
	}
	if c.observer == nil {
		c.observer = NopObserver{}
	}
	if c.scheduler == nil {
		c.scheduler = GoScheduler
	}
}

// WithContext sets the parent of the worker's context. Canceling the
// parent has the same effect as calling [Queue.Cancel].
func WithContext(ctx context.Context) Option {
	return func(c *config) { c.ctx = ctx }
}

// WithExecutor sets the Executor used to deliver notification
// callbacks. The default is [Async].
func WithExecutor(e Executor) Option {
	return func(c *config) { c.executor = e }
}

// WithLogger sets the diagnostic sink. The default writes to
// [slog.Default].
func WithLogger(l Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithName sets the name used in diagnostics, traces, metrics, and
// handler errors.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithObserver installs instrumentation hooks.
func WithObserver(o Observer) Option {
	return func(c *config) { c.observer = o }
}

// WithPriority sets the default Priority passed to the Scheduler.
func WithPriority(p Priority) Option {
	return func(c *config) { c.priority = p }
}

// WithScheduler sets the Scheduler that runs the worker. The default
// is [GoScheduler].
func WithScheduler(s Scheduler) Option {
	return func(c *config) { c.scheduler = s }
}

// A ResumeOption configures a call to [Queue.Resume] or
// [Queue.ResumeFunc]. A [Priority] is a ResumeOption.
type ResumeOption interface {
	applyResume(*resumeConfig)
}

type resumeConfig struct {
	priority Priority
}

// A FinishOption configures a call to [Queue.Finish] or
// [Queue.FinishFunc].
type FinishOption func(*finishConfig)

type finishConfig struct {
	cause error
}

// WithCause closes the queue in a failed state. The worker will still
// hand every buffered element to the handler and will then report the
// cause as its outcome, unless the handler has already failed.
func WithCause(err error) FinishOption {
	return func(c *finishConfig) { c.cause = err }
}
