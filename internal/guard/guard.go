// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package guard provides per-location mutual exclusion for check-in.
//
// "Count current occupants, compare to capacity, insert the attendance
// row" must be atomic per location or two racing check-ins can both see a
// sub-capacity count and both commit. The guard serializes that critical
// section per location id; distinct locations never block each other. It
// knows nothing about capacity numbers or attendance schemas - it is a
// pure serialization primitive.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mayak870/gatehouse/internal/metrics"
)

// ErrLockTimeout reports that the context ended before the location lock
// could be acquired. It is a transient fault, eligible for client retry
// with backoff, and deliberately distinct from every business outcome.
var ErrLockTimeout = errors.New("guard: context done before location lock acquired")

// LocationLocker serializes critical sections per location id.
// The zero value is not usable; call New.
type LocationLocker struct {
	sems sync.Map // int64 -> chan struct{} (capacity 1)
}

// New creates a LocationLocker.
func New() *LocationLocker {
	return &LocationLocker{}
}

// sem returns the semaphore channel for a location, creating it on first
// use. Entries are never removed: the set of locations is small and
// stable, and removal would race with concurrent acquirers.
func (g *LocationLocker) sem(locationID int64) chan struct{} {
	if v, ok := g.sems.Load(locationID); ok {
		return v.(chan struct{})
	}
	v, _ := g.sems.LoadOrStore(locationID, make(chan struct{}, 1))
	return v.(chan struct{})
}

// ExecuteWithLocationLock runs fn while holding the lock for locationID.
//
// Business errors returned by fn propagate unchanged and the lock is
// always released. If ctx is done before acquisition, ErrLockTimeout is
// returned (wrapping the context error) and fn never runs. A single
// buffered-channel slot per location is used as the mutex so acquisition
// can select on ctx without leaking a waiter.
func (g *LocationLocker) ExecuteWithLocationLock(ctx context.Context, locationID int64, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}

	sem := g.sem(locationID)

	timer := metrics.NewLockWaitTimer()
	select {
	case sem <- struct{}{}:
		timer.ObserveDuration()
	case <-ctx.Done():
		timer.ObserveDuration()
		return fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
	}
	defer func() { <-sem }()

	return fn(ctx)
}
