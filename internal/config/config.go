// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package config loads the settings of the hostedbench command.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"vawter.tech/hosted"
)

// FileName is the name of the optional configuration file.
const FileName = "hostedbench.cfg.json"

// EnvPrefix is prepended to environment variable overrides, e.g.
// HOSTED_BENCH_ELEMENTS.
const EnvPrefix = "HOSTED"

// BenchConfig describes the workload.
type BenchConfig struct {
	Burst         int
	Eager         bool
	Elements      int
	FailAt        int
	HandlerDelay  time.Duration
	Priority      hosted.Priority
	Producers     int
	Queues        int
	Rate          float64
	RetryAttempts int
	Timeout       time.Duration
}

// MetricsConfig controls how queue activity is exported.
type MetricsConfig struct {
	Listen    string
	Namespace string
	OTel      bool
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	Format string
	Level  string
}

// Load sets default values, applies environment overrides, and reads
// the configuration file from configDir. An empty configDir skips the
// file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	viper.SetDefault("bench.burst", 1)
	viper.SetDefault("bench.eager", false)
	viper.SetDefault("bench.elements", 1_000_000)
	viper.SetDefault("bench.failAt", -1)
	viper.SetDefault("bench.handlerDelay", "0s")
	viper.SetDefault("bench.priority", hosted.PriorityUserVisible.String())
	viper.SetDefault("bench.producers", 1)
	viper.SetDefault("bench.queues", 1)
	viper.SetDefault("bench.rate", 0)
	viper.SetDefault("bench.retryAttempts", 0)
	viper.SetDefault("bench.timeout", "0s")

	viper.SetDefault("metrics.listen", "")
	viper.SetDefault("metrics.namespace", "hosted")
	viper.SetDefault("metrics.otel", false)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configDir == "" {
		return nil
	}

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetBenchConfig returns the workload settings.
func GetBenchConfig() (BenchConfig, error) {
	p, err := ParsePriority(viper.GetString("bench.priority"))
	if err != nil {
		return BenchConfig{}, err
	}
	cfg := BenchConfig{
		Burst:         viper.GetInt("bench.burst"),
		Eager:         viper.GetBool("bench.eager"),
		Elements:      viper.GetInt("bench.elements"),
		FailAt:        viper.GetInt("bench.failAt"),
		HandlerDelay:  viper.GetDuration("bench.handlerDelay"),
		Priority:      p,
		Producers:     viper.GetInt("bench.producers"),
		Queues:        viper.GetInt("bench.queues"),
		Rate:          viper.GetFloat64("bench.rate"),
		RetryAttempts: viper.GetInt("bench.retryAttempts"),
		Timeout:       viper.GetDuration("bench.timeout"),
	}
	return cfg, cfg.validate()
}

func (c *BenchConfig) validate() error {
	var errs []error
	if c.Elements < 0 {
		errs = append(errs, errors.New("bench.elements must not be negative"))
	}
	if c.Producers < 1 {
		errs = append(errs, errors.New("bench.producers must be at least 1"))
	}
	if c.Queues < 1 {
		errs = append(errs, errors.New("bench.queues must be at least 1"))
	}
	if c.Rate < 0 {
		errs = append(errs, errors.New("bench.rate must not be negative"))
	}
	if c.Rate > 0 && c.Burst < 1 {
		errs = append(errs, errors.New("bench.burst must be at least 1 when rate-limited"))
	}
	return errors.Join(errs...)
}

// GetMetricsConfig returns the metrics settings.
func GetMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Listen:    viper.GetString("metrics.listen"),
		Namespace: viper.GetString("metrics.namespace"),
		OTel:      viper.GetBool("metrics.otel"),
	}
}

// GetLogConfig returns the logging settings.
func GetLogConfig() LogConfig {
	return LogConfig{
		Format: viper.GetString("log.format"),
		Level:  viper.GetString("log.level"),
	}
}

// ParsePriority converts the name of a [hosted.Priority] back into its
// value.
func ParsePriority(s string) (hosted.Priority, error) {
	for _, p := range []hosted.Priority{
		hosted.PriorityBestEffort,
		hosted.PriorityUserVisible,
		hosted.PriorityUserBlocking,
	} {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}
