// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Command hostedbench pushes a configurable workload through one or
// more hosted queues, verifies that every element was handled in
// order, and exports the queues' metrics.
//
// Settings are read from hostedbench.cfg.json in the directory named
// by -config and may be overridden by HOSTED_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"vawter.tech/hosted"
	"vawter.tech/hosted/internal/config"
	"vawter.tech/hosted/logging"
	"vawter.tech/hosted/metrics"
)

func main() {
	configDir := flag.String("config", "", "directory containing "+config.FileName)
	flag.Parse()

	if err := config.Load(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := newLogger(os.Stderr, config.GetLogConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := mainE(context.Background(), logger); err != nil {
		logger.Error().Err(err).Msg("benchmark failed")
		os.Exit(1)
	}
}

func newLogger(out io.Writer, cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Format {
	case "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func mainE(ctx context.Context, logger zerolog.Logger) error {
	bench, err := config.GetBenchConfig()
	if err != nil {
		return err
	}
	mcfg := config.GetMetricsConfig()

	reg := prom.NewRegistry()
	exporter, err := metrics.NewPrometheus(mcfg.Namespace, reg, metrics.PrometheusOptions{})
	if err != nil {
		return err
	}
	observers := []hosted.Observer{exporter}

	var reader *sdkmetric.ManualReader
	if mcfg.OTel {
		reader = sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer func() { _ = provider.Shutdown(context.Background()) }()
		o, err := metrics.NewOTel(provider.Meter("hostedbench"))
		if err != nil {
			return err
		}
		observers = append(observers, o)
	}

	if mcfg.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: mcfg.Listen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()
		logger.Info().Str("listen", mcfg.Listen).Msg("serving metrics")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	stop := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			logger.Info().Msg("interrupted, finishing queues")
			close(stop)
		case <-ctx.Done():
		}
	}()

	begin := time.Now()
	infos, err := run(ctx, bench, stop,
		hosted.WithLogger(logging.NewZerolog(logger)),
		hosted.WithObserver(metrics.Tee(observers...)),
	)
	elapsed := time.Since(begin)

	for _, info := range infos {
		logger.Info().
			Str("queue", info.Name).
			Str("state", info.State()).
			Int64("processed", info.Processed).
			Int64("dropped", info.Dropped).
			Dur("elapsed", elapsed).
			Msg("queue summary")
	}
	if reader != nil {
		logOTel(ctx, logger, reader)
	}
	return err
}

// logOTel reports the totals of every counter collected by the reader.
func logOTel(ctx context.Context, logger zerolog.Logger, reader *sdkmetric.ManualReader) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		logger.Error().Err(err).Msg("could not collect metrics")
		return
	}
	ev := logger.Info()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			ev = ev.Int64(m.Name, total)
		}
	}
	ev.Msg("otel totals")
}
