// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package supervisor builds the suture supervision tree that runs every
// long-lived component of the process.
//
// The root supervisor owns three child supervisors so a restart storm in
// one layer cannot starve the others:
//
//	gatehouse
//	├── maintenance-layer   audit retention, offline replay, limiter sweeps
//	├── messaging-layer     websocket hub, event forwarder, NATS bridge
//	└── api-layer           HTTP server
//
// Components that do not already satisfy suture.Service are adapted by
// the wrappers in the services subpackage.
package supervisor
