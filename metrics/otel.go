// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"vawter.tech/hosted"
)

const instrumentationName = "vawter.tech/hosted/metrics"

// OTel records queue activity with OpenTelemetry instruments.
type OTel struct {
	dropped   metric.Int64Counter
	duration  metric.Float64Histogram
	finished  metric.Int64Counter
	pending   metric.Int64Gauge
	processed metric.Int64Counter
	sent      metric.Int64Counter
	started   metric.Int64Counter
}

var _ hosted.Observer = (*OTel)(nil)

// NewOTel creates the instruments using the Meter. If the Meter is nil,
// the global MeterProvider will be used, which is a no-op unless it has
// been configured.
func NewOTel(m metric.Meter) (*OTel, error) {
	if m == nil {
		m = otel.Meter(instrumentationName)
	}
	ret := &OTel{}

	var err error
	ret.sent, err = m.Int64Counter(
		"hosted.elements.sent",
		metric.WithDescription("Total elements buffered for a worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}

	ret.dropped, err = m.Int64Counter(
		"hosted.elements.dropped",
		metric.WithDescription("Total elements that never reached the handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	ret.processed, err = m.Int64Counter(
		"hosted.elements.processed",
		metric.WithDescription("Total handler invocations"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	ret.duration, err = m.Float64Histogram(
		"hosted.handler.duration",
		metric.WithDescription("Handler invocation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	ret.pending, err = m.Int64Gauge(
		"hosted.queue.pending",
		metric.WithDescription("Elements awaiting the handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pending gauge: %w", err)
	}

	ret.started, err = m.Int64Counter(
		"hosted.workers.started",
		metric.WithDescription("Total workers started"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating started counter: %w", err)
	}

	ret.finished, err = m.Int64Counter(
		"hosted.queues.finished",
		metric.WithDescription("Total queues that reached their terminal outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating finished counter: %w", err)
	}

	return ret, nil
}

func queueAttr(queue string) attribute.KeyValue {
	return attribute.String("queue", normalizeLabel(queue, "unknown"))
}

// Sent implements [hosted.Observer].
func (o *OTel) Sent(queue string, pending int) {
	attrs := metric.WithAttributes(queueAttr(queue))
	o.sent.Add(context.Background(), 1, attrs)
	o.pending.Record(context.Background(), int64(pending), attrs)
}

// Dropped implements [hosted.Observer].
func (o *OTel) Dropped(queue string, reason hosted.DropReason, count int) {
	o.dropped.Add(context.Background(), int64(count), metric.WithAttributes(
		queueAttr(queue), attribute.String("reason", reason.String())))
}

// Started implements [hosted.Observer].
func (o *OTel) Started(queue string, p hosted.Priority) {
	o.started.Add(context.Background(), 1, metric.WithAttributes(
		queueAttr(queue), attribute.String("priority", p.String())))
}

// Processed implements [hosted.Observer].
func (o *OTel) Processed(queue string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(queueAttr(queue), attribute.String("outcome", outcome(err)))
	o.processed.Add(context.Background(), 1, attrs)
	o.duration.Record(context.Background(), elapsed.Seconds(), attrs)
}

// Finished implements [hosted.Observer].
func (o *OTel) Finished(queue string, err error) {
	o.finished.Add(context.Background(), 1, metric.WithAttributes(
		queueAttr(queue), attribute.String("outcome", outcome(err))))
}
