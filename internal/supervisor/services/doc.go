// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package services adapts components whose run loops do not already
// satisfy suture.Service. Each wrapper takes a narrow interface rather
// than the concrete type so the adaptation is testable with fakes.
//
// Components that implement Serve(ctx) error themselves (the event
// forwarder, the offline replayer, the NATS bridge) go straight into
// the tree without a wrapper.
package services
