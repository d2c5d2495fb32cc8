// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"vawter.tech/hosted"
)

// PrometheusOptions controls collector configuration.
type PrometheusOptions struct {
	DurationBuckets []float64
}

// Prometheus adapts queue activity to Prometheus collectors.
type Prometheus struct {
	droppedTotal          *prom.CounterVec
	finishedTotal         *prom.CounterVec
	handlerDurationSecond *prom.HistogramVec
	pending               *prom.GaugeVec
	processedTotal        *prom.CounterVec
	sentTotal             *prom.CounterVec
	startedTotal          *prom.CounterVec
}

var _ hosted.Observer = (*Prometheus)(nil)

// NewPrometheus creates and registers the collectors. If the collectors
// have already been registered with reg, the existing collectors are
// shared.
func NewPrometheus(namespace string, reg prom.Registerer, opts PrometheusOptions) (*Prometheus, error) {
	if namespace == "" {
		namespace = "hosted"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	sentVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "elements_sent_total",
		Help:      "Total number of elements buffered for a worker.",
	}, []string{"queue"})
	droppedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "elements_dropped_total",
		Help:      "Total number of elements that never reached the handler.",
	}, []string{"queue", "reason"})
	processedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "elements_processed_total",
		Help:      "Total number of handler invocations.",
	}, []string{"queue", "outcome"})
	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "handler_duration_seconds",
		Help:      "Handler invocation duration in seconds.",
		Buckets:   buckets,
	}, []string{"queue"})
	pendingVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_pending",
		Help:      "Elements awaiting the handler, sampled on send.",
	}, []string{"queue"})
	startedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "workers_started_total",
		Help:      "Total number of workers started.",
	}, []string{"queue", "priority"})
	finishedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "queues_finished_total",
		Help:      "Total number of queues that reached their terminal outcome.",
	}, []string{"queue", "outcome"})

	var err error
	if sentVec, err = registerCollector(reg, sentVec); err != nil {
		return nil, err
	}
	if droppedVec, err = registerCollector(reg, droppedVec); err != nil {
		return nil, err
	}
	if processedVec, err = registerCollector(reg, processedVec); err != nil {
		return nil, err
	}
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if pendingVec, err = registerCollector(reg, pendingVec); err != nil {
		return nil, err
	}
	if startedVec, err = registerCollector(reg, startedVec); err != nil {
		return nil, err
	}
	if finishedVec, err = registerCollector(reg, finishedVec); err != nil {
		return nil, err
	}

	return &Prometheus{
		droppedTotal:          droppedVec,
		finishedTotal:         finishedVec,
		handlerDurationSecond: durationVec,
		pending:               pendingVec,
		processedTotal:        processedVec,
		sentTotal:             sentVec,
		startedTotal:          startedVec,
	}, nil
}

// Sent implements [hosted.Observer].
func (m *Prometheus) Sent(queue string, pending int) {
	if m == nil {
		return
	}
	queue = normalizeLabel(queue, "unknown")
	m.sentTotal.WithLabelValues(queue).Inc()
	m.pending.WithLabelValues(queue).Set(float64(pending))
}

// Dropped implements [hosted.Observer].
func (m *Prometheus) Dropped(queue string, reason hosted.DropReason, count int) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(normalizeLabel(queue, "unknown"), reason.String()).Add(float64(count))
}

// Started implements [hosted.Observer].
func (m *Prometheus) Started(queue string, p hosted.Priority) {
	if m == nil {
		return
	}
	m.startedTotal.WithLabelValues(normalizeLabel(queue, "unknown"), p.String()).Inc()
}

// Processed implements [hosted.Observer].
func (m *Prometheus) Processed(queue string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	queue = normalizeLabel(queue, "unknown")
	m.processedTotal.WithLabelValues(queue, outcome(err)).Inc()
	m.handlerDurationSecond.WithLabelValues(queue).Observe(elapsed.Seconds())
}

// Finished implements [hosted.Observer].
func (m *Prometheus) Finished(queue string, err error) {
	if m == nil {
		return
	}
	m.finishedTotal.WithLabelValues(normalizeLabel(queue, "unknown"), outcome(err)).Inc()
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
