// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles login attempts per client IP. Each IP gets a
// token bucket refilled at the configured per-minute rate; buckets not
// touched for an hour are dropped by the cleanup loop.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*loginLimiterEntry
	rate     rate.Limit
	burst    int
}

type loginLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewLoginLimiter creates a limiter allowing perMinute attempts per IP
// with the same value as burst.
func NewLoginLimiter(perMinute int) *LoginLimiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	return &LoginLimiter{
		limiters: make(map[string]*loginLimiterEntry),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

// Allow reports whether a login attempt from the given IP may proceed.
func (ll *LoginLimiter) Allow(ip string) bool {
	ll.mu.Lock()
	entry, ok := ll.limiters[ip]
	if !ok {
		entry = &loginLimiterEntry{
			limiter: rate.NewLimiter(ll.rate, ll.burst),
		}
		ll.limiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	ll.mu.Unlock()

	return limiter.Allow()
}

// RunCleanup periodically drops idle buckets until ctx is cancelled.
// Suitable for running under a supervisor.
func (ll *LoginLimiter) RunCleanup(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ll.cleanup(time.Now().Add(-time.Hour))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (ll *LoginLimiter) cleanup(threshold time.Time) {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	for ip, entry := range ll.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(ll.limiters, ip)
		}
	}
}

// Len returns the number of tracked IPs.
func (ll *LoginLimiter) Len() int {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	return len(ll.limiters)
}
