// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package metrics contains [hosted.Observer] implementations that
// export queue activity to OpenTelemetry or Prometheus.
//
//	obs, err := metrics.NewOTel(nil) // Uses the global MeterProvider.
//	q := hosted.New(handler, hosted.WithObserver(obs))
package metrics

import (
	"time"

	"vawter.tech/hosted"
)

// Outcome labels.
const (
	outcomeError   = "error"
	outcomeSuccess = "success"
)

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeSuccess
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Tee returns an Observer that forwards every event to each of the
// Observers, in order.
func Tee(obs ...hosted.Observer) hosted.Observer {
	return tee(obs)
}

type tee []hosted.Observer

var _ hosted.Observer = tee(nil)

func (t tee) Sent(queue string, pending int) {
	for _, o := range t {
		o.Sent(queue, pending)
	}
}

func (t tee) Dropped(queue string, reason hosted.DropReason, count int) {
	for _, o := range t {
		o.Dropped(queue, reason, count)
	}
}

func (t tee) Started(queue string, p hosted.Priority) {
	for _, o := range t {
		o.Started(queue, p)
	}
}

func (t tee) Processed(queue string, elapsed time.Duration, err error) {
	for _, o := range t {
		o.Processed(queue, elapsed, err)
	}
}

func (t tee) Finished(queue string, err error) {
	for _, o := range t {
		o.Finished(queue, err)
	}
}
