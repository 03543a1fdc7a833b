// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package models

import "time"

// Staff roles carried in JWT claims and checked by route middleware.
const (
	RoleStaff      = "staff"
	RoleSupervisor = "supervisor"
	RoleKiosk      = "kiosk"
)

// StaffCredential is a staff login bound to a directory person.
// The PIN is stored as a bcrypt hash, never in the clear.
type StaffCredential struct {
	ID        int64     `json:"id"`
	PersonID  int64     `json:"person_id"`
	Username  string    `json:"username"`
	PINHash   string    `json:"-"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
