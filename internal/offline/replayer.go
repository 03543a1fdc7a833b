// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package offline

import (
	"context"
	"time"

	"github.com/mayak870/gatehouse/internal/checkin"
	"github.com/mayak870/gatehouse/internal/logging"
)

// Orchestrator is the check-in surface the replayer drives.
// Satisfied by *checkin.Service.
type Orchestrator interface {
	CheckIn(ctx context.Context, req checkin.CheckInRequest) (*checkin.CheckInResult, error)
}

// AuditSink receives replay batch records. Satisfied by *audit.Logger.
type AuditSink interface {
	LogOfflineReplay(ctx context.Context, kioskID string, replayed, failed int)
}

// Replayer periodically drains the queue into the orchestrator.
type Replayer struct {
	queue    *Queue
	svc      Orchestrator
	auditor  AuditSink
	interval time.Duration
	ttl      time.Duration
}

// NewReplayer creates the replayer. auditor may be nil.
func NewReplayer(queue *Queue, svc Orchestrator, auditor AuditSink, interval, ttl time.Duration) *Replayer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Replayer{queue: queue, svc: svc, auditor: auditor, interval: interval, ttl: ttl}
}

// Serve blocks, replaying on each tick until ctx is canceled.
// Implements suture.Service.
func (r *Replayer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.ReplayOnce(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (r *Replayer) String() string { return "offline-replayer" }

// ReplayOnce drains the current backlog. Business denials (already
// checked in, at capacity) and stale entries are dropped, not retried:
// the child's state has moved on since the kiosk captured them. Only
// infrastructure faults keep an entry queued for the next tick.
func (r *Replayer) ReplayOnce(ctx context.Context) {
	pending, err := r.queue.Pending(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Offline replay: listing pending failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	replayed, failed := 0, 0
	perKiosk := make(map[string][2]int)

	for _, sub := range pending {
		if ctx.Err() != nil {
			return
		}

		if r.ttl > 0 && time.Since(sub.CapturedAt) > r.ttl {
			logging.Warn().
				Str("idempotency_key", sub.IdempotencyKey).
				Str("kiosk_id", sub.KioskID).
				Time("captured_at", sub.CapturedAt).
				Msg("Offline replay: dropping stale submission")
			if err := r.queue.Remove(ctx, sub.IdempotencyKey); err != nil {
				logging.Error().Err(err).Msg("Offline replay: remove failed")
			}
			continue
		}

		result, err := r.svc.CheckIn(ctx, checkin.CheckInRequest{
			PersonID:   sub.PersonID,
			LocationID: sub.LocationID,
			ScheduleID: sub.ScheduleID,
		})
		if err != nil {
			// Infrastructure fault: leave queued and retry next tick.
			failed++
			counts := perKiosk[sub.KioskID]
			counts[1]++
			perKiosk[sub.KioskID] = counts
			logging.Error().Err(err).
				Str("idempotency_key", sub.IdempotencyKey).
				Msg("Offline replay: check-in fault, will retry")
			continue
		}

		if result.OK() {
			replayed++
			counts := perKiosk[sub.KioskID]
			counts[0]++
			perKiosk[sub.KioskID] = counts
		} else {
			logging.Warn().
				Str("idempotency_key", sub.IdempotencyKey).
				Str("outcome", string(result.Outcome)).
				Msg("Offline replay: submission denied, dropping")
		}
		if err := r.queue.Remove(ctx, sub.IdempotencyKey); err != nil {
			logging.Error().Err(err).Msg("Offline replay: remove failed")
		}
	}

	logging.Info().
		Int("replayed", replayed).
		Int("failed", failed).
		Int("pending", len(pending)-replayed).
		Msg("Offline replay pass complete")

	if r.auditor != nil {
		for kiosk, counts := range perKiosk {
			r.auditor.LogOfflineReplay(ctx, kiosk, counts[0], counts[1])
		}
	}
}
