// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package api is the HTTP surface: the chi router, the JSON response
// envelope, and the handlers that translate between wire DTOs and the
// domain services.
//
// Internal numeric ids never cross this boundary. Every entity
// reference in a request or response is an opaque key encoded by the
// idkey codec; handlers decode on the way in and encode on the way out.
// Business denials (a full room, an unauthorized pickup) are successful
// responses carrying a structured outcome; HTTP error statuses are
// reserved for faults and caller contract violations.
package api
