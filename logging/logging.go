// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package logging adapts structured loggers to the key/value diagnostic
// sink accepted by [vawter.tech/hosted.WithLogger].
package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// Slog adapts a [slog.Logger].
type Slog struct {
	logger *slog.Logger
}

// NewSlog wraps the logger. A nil logger will be replaced with
// [slog.Default] at the time of each call.
func NewSlog(logger *slog.Logger) *Slog {
	return &Slog{logger: logger}
}

func (l *Slog) get() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}

// Debug logs a debug message with optional key-value pairs.
func (l *Slog) Debug(msg string, keysAndValues ...any) {
	l.get().Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

// Info logs an info message with optional key-value pairs.
func (l *Slog) Info(msg string, keysAndValues ...any) {
	l.get().Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

// Error logs an error message with optional key-value pairs.
func (l *Slog) Error(msg string, keysAndValues ...any) {
	l.get().Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}

// Zerolog adapts a [zerolog.Logger].
type Zerolog struct {
	logger zerolog.Logger
}

// NewZerolog wraps the logger.
func NewZerolog(logger zerolog.Logger) *Zerolog {
	return &Zerolog{logger: logger}
}

// Debug logs a debug message with optional key-value pairs.
func (l *Zerolog) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(toFields(keysAndValues)).Msg(msg)
}

// Info logs an info message with optional key-value pairs.
func (l *Zerolog) Info(msg string, keysAndValues ...any) {
	l.logger.Info().Fields(toFields(keysAndValues)).Msg(msg)
}

// Error logs an error message with optional key-value pairs.
func (l *Zerolog) Error(msg string, keysAndValues ...any) {
	l.logger.Error().Fields(toFields(keysAndValues)).Msg(msg)
}

// toFields converts key-value pairs to a map for zerolog. Error values
// are stringified, since zerolog would otherwise marshal them as empty
// objects.
func toFields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

// Discard drops all messages.
var Discard discard

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Error(string, ...any) {}
