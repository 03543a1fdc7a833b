// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package ratelimit throttles failed pickup-verification attempts.
//
// Verification failures are counted in a fixed window per
// (attendance, origin) pair. Reaching the attempt budget inside one
// window blocks further attempts for that pair until the window ends; a
// successful verification clears the pair immediately. Pairs are fully
// independent: a kiosk hammering one child's code never affects other
// children or other kiosks.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mayak870/gatehouse/internal/clock"
	"github.com/mayak870/gatehouse/internal/logging"
)

// Config holds limiter tuning.
type Config struct {
	// Enabled controls whether limiting is active. Disabled means every
	// check passes and failures are not recorded.
	Enabled bool `json:"enabled"`

	// MaxAttempts is the number of failed attempts allowed inside one
	// window. The MaxAttempts-th failure trips the limit.
	MaxAttempts int `json:"max_attempts"`

	// Window is the fixed window length, measured from the first failure.
	Window time.Duration `json:"window"`

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

// DefaultConfig returns the stock limiter tuning.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxAttempts:     5,
		Window:          15 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// Key identifies one counted pair.
type Key struct {
	AttendanceID int64  `json:"attendance_id"`
	OriginID     string `json:"origin_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d@%s", k.AttendanceID, k.OriginID)
}

// Entry is the persisted failure count for one pair.
type Entry struct {
	Key         Key       `json:"key"`
	Failures    int       `json:"failures"`
	WindowStart time.Time `json:"window_start"`
	LastAttempt time.Time `json:"last_attempt"`
}

// windowEnd is the instant the fixed window closes.
func (e *Entry) windowEnd(window time.Duration) time.Time {
	return e.WindowStart.Add(window)
}

// limitedAt reports whether the entry blocks attempts at now.
func (e *Entry) limitedAt(now time.Time, window time.Duration, maxAttempts int) bool {
	return e.Failures >= maxAttempts && now.Before(e.windowEnd(window))
}

// Limiter enforces the per-pair attempt budget.
type Limiter struct {
	store Store
	clk   clock.Clock

	mu      sync.RWMutex
	cfg     Config
	onLimit func(Entry)
}

// New creates a Limiter. Zero-value config fields fall back to defaults.
func New(store Store, clk clock.Clock, cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	return &Limiter{store: store, clk: clk, cfg: cfg}
}

// SetOnLimit registers a callback fired once each time a pair trips the
// limit, for audit integration. The callback runs on its own goroutine.
func (l *Limiter) SetOnLimit(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLimit = fn
}

// Config returns the active configuration.
func (l *Limiter) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// IsLimited reports whether the pair is currently blocked and, if so,
// how long until the window reopens.
func (l *Limiter) IsLimited(ctx context.Context, key Key) (bool, time.Duration, error) {
	l.mu.RLock()
	cfg := l.cfg
	l.mu.RUnlock()

	if !cfg.Enabled {
		return false, 0, nil
	}

	entry, err := l.store.GetEntry(ctx, key)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("check attempt limit: %w", err)
	}

	now := l.clk.Now()
	if !entry.limitedAt(now, cfg.Window, cfg.MaxAttempts) {
		return false, 0, nil
	}
	return true, entry.windowEnd(cfg.Window).Sub(now), nil
}

// RecordFailure counts one failed verification for the pair and reports
// whether the pair is now blocked. The failure that reaches MaxAttempts
// trips the limit; failures after the window expired start a fresh
// window at count one.
func (l *Limiter) RecordFailure(ctx context.Context, key Key) (limited bool, retryAfter time.Duration, err error) {
	l.mu.RLock()
	cfg := l.cfg
	onLimit := l.onLimit
	l.mu.RUnlock()

	if !cfg.Enabled {
		return false, 0, nil
	}

	now := l.clk.Now()

	entry, err := l.store.GetEntry(ctx, key)
	if err != nil && !errors.Is(err, ErrEntryNotFound) {
		return false, 0, fmt.Errorf("load attempt entry: %w", err)
	}
	if entry == nil || !now.Before(entry.windowEnd(cfg.Window)) {
		entry = &Entry{Key: key, WindowStart: now}
	}

	// Already blocked: report remaining time, no further mutation. The
	// window is fixed, extra attempts do not extend it.
	if entry.limitedAt(now, cfg.Window, cfg.MaxAttempts) {
		return true, entry.windowEnd(cfg.Window).Sub(now), nil
	}

	entry.Failures++
	entry.LastAttempt = now
	if err := l.store.SaveEntry(ctx, entry); err != nil {
		return false, 0, fmt.Errorf("save attempt entry: %w", err)
	}

	if entry.Failures < cfg.MaxAttempts {
		return false, 0, nil
	}

	remaining := entry.windowEnd(cfg.Window).Sub(now)
	logging.Warn().
		Int64("attendance_id", key.AttendanceID).
		Str("origin_id", key.OriginID).
		Int("failures", entry.Failures).
		Dur("retry_after", remaining).
		Msg("Pickup verification attempts blocked")

	if onLimit != nil {
		go onLimit(*entry)
	}
	return true, remaining, nil
}

// Reset clears the pair after a successful verification.
func (l *Limiter) Reset(ctx context.Context, key Key) error {
	l.mu.RLock()
	enabled := l.cfg.Enabled
	l.mu.RUnlock()

	if !enabled {
		return nil
	}
	if err := l.store.DeleteEntry(ctx, key); err != nil && !errors.Is(err, ErrEntryNotFound) {
		return fmt.Errorf("reset attempt entry: %w", err)
	}
	return nil
}

// Message renders the client-facing rejection text.
func Message(retryAfter time.Duration) string {
	return fmt.Sprintf("Too many failed attempts. Try again in %s.", retryAfter.Round(time.Second))
}

// RunCleanup purges entries whose window has fully passed, until ctx is
// done. Intended to run under the supervision tree.
func (l *Limiter) RunCleanup(ctx context.Context) {
	l.mu.RLock()
	interval := l.cfg.CleanupInterval
	window := l.cfg.Window
	l.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := l.clk.Now().Add(-window)
			count, err := l.store.CleanupExpired(ctx, cutoff)
			if err != nil {
				logging.Error().Err(err).Msg("Attempt limiter cleanup error")
				continue
			}
			if count > 0 {
				logging.Debug().Int("count", count).Msg("Purged expired attempt entries")
			}
		}
	}
}
