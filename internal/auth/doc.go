// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package auth implements staff and kiosk authentication.
//
// Staff members log in with a username and PIN; the PIN is verified
// against a bcrypt hash stored in the directory and a signed JWT is
// issued for the session. Kiosks receive longer-lived tokens scoped to
// the kiosk role, which grants access to check-in and pickup endpoints
// but not to administrative ones.
//
// Login attempts are rate limited per client IP to slow credential
// guessing. Route protection is provided by the Middleware type, which
// validates bearer tokens and enforces role requirements.
package auth
