// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

/*
Package websocket pushes live occupancy and attendance updates to
kiosk dashboards.

It uses the gorilla/websocket library with a hub-client architecture:
the Hub manages connections and broadcasts, each Client runs a read
pump (pings) and a write pump (broadcasts, pongs), and the Forwarder
subscribes to the in-process event bus and feeds check-in, checkout,
and pickup events into the hub.

Architecture:

	Event Bus ──▶ Forwarder ──▶ ┌──────────┐
	                            │   Hub    │ ← Broadcasts to all clients
	                            └────┬─────┘
	                                 │
	                  ┌──────────┬───┴─────┬─────────┐
	                  │ Client1  │ Client2 │ Client3 │
	                  └──────────┴─────────┴─────────┘

Message types: occupancy, checked_in, checked_out, pickup, ping, pong.
Pickup feed messages never include security codes.

The hub runs under the supervision tree via RunWithContext; on context
cancellation it closes every client and returns, so a supervisor
restart never leaves orphaned connections. A client that cannot keep
up with the broadcast rate is dropped rather than allowed to block
the hub.
*/
package websocket
