// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package audit records custody-relevant events for compliance review.
//
// Every action that affects who holds a child — check-ins, checkouts,
// recorded pickups, supervisor overrides, denied and rate-limited
// verification attempts, code reprints, and authorization-list edits —
// produces an immutable audit record, alongside staff authentication
// events.
//
// # Event Types
//
// Attendance events:
//   - checkin.success, checkin.denied: check-in results
//   - checkin.capacity_override: supervisor admitted past a full room
//   - checkout: a plain (non-pickup) checkout
//   - code.reprint: a security code slip reissued
//
// Pickup events:
//   - pickup.authorized: release matched standing policy
//   - pickup.override: release completed under supervisor override
//   - pickup.denied: verification refused (bad code, blocked person)
//   - pickup.rate_limited: attempt refused by the failed-attempt limiter
//
// Staff events:
//   - auth.success, auth.failure: login results
//   - authz.denied: a role check refused an action
//   - authlist.changed: an authorized-pickup list edit
//
// # Architecture
//
// The logger uses a producer-consumer pattern:
//
//	Logger.Log() -> Event Buffer (chan) -> Async Writer -> Store
//	                     |                      |
//	                 Non-blocking           Background goroutine
//
// Events are buffered in a channel so the check-in path never blocks on
// audit persistence. A full buffer drops the event with a warning.
//
// # Usage
//
//	store := audit.NewDuckDBStore(db.Conn())
//	if err := store.CreateTable(ctx); err != nil { ... }
//	logger := audit.NewLogger(store, audit.DefaultConfig())
//	defer logger.Close()
//
//	logger.LogPickupRecorded(ctx,
//	    audit.StaffActor(staffID, staffName, "supervisor"),
//	    audit.SourceFromRequest(r),
//	    audit.Subject{ID: childKey, Name: childName},
//	    pickupLogID, true)
//
// Retention cleanup runs under the supervision tree via RunCleanup,
// which blocks until its context is canceled.
package audit
