// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package logging wraps zerolog behind a small package-level API so every
// package logs through the same configured instance.
//
// Initialize once at startup:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("component", "checkin").Msg("ready")
//
// Always terminate chains with .Msg() or .Send(); an unterminated chain
// emits nothing.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the global logger.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Default: info.
	Level string

	// Format is "json" or "console". Default: json.
	Format string

	// Caller adds file:line to each event.
	Caller bool

	// Output overrides the default os.Stderr sink. Used by tests.
	Output io.Writer
}

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init configures the global logger. Call once at startup; log calls from
// any goroutine afterwards see the configured instance.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	l := ctx.Logger()

	mu.Lock()
	logger = l
	mu.Unlock()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug starts a debug-level event.
func Debug() *zerolog.Event { l := get(); return l.Debug() }

// Info starts an info-level event.
func Info() *zerolog.Event { l := get(); return l.Info() }

// Warn starts a warn-level event.
func Warn() *zerolog.Event { l := get(); return l.Warn() }

// Error starts an error-level event.
func Error() *zerolog.Event { l := get(); return l.Error() }

// Fatal starts a fatal-level event; the terminating Msg call exits.
func Fatal() *zerolog.Event { l := get(); return l.Fatal() }

// Err starts an error-level event pre-populated with err.
func Err(err error) *zerolog.Event { l := get(); return l.Err(err) }

// With returns a child context for attaching static fields.
func With() zerolog.Context { l := get(); return l.With() }

// NewTestLogger routes the global logger to w at debug level. Tests that
// assert on log output use this; parallel tests should not.
func NewTestLogger(w io.Writer) {
	Init(Config{Level: "debug", Output: w})
}

type ctxKey int

const requestIDKey ctxKey = 0

// WithRequestID attaches a request id for later retrieval.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id set by the HTTP middleware,
// or "" when the context carries none.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
