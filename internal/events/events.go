// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package events is the in-process event bus. Check-in, check-out and
// pickup commits publish here; the websocket forwarder and the optional
// NATS bridge subscribe. Delivery is at-most-once per subscriber and the
// bus is never on the critical path of a capacity decision.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics carried by the bus.
const (
	TopicCheckedIn      = "attendance.checked_in"
	TopicCheckedOut     = "attendance.checked_out"
	TopicPickupRecorded = "pickup.recorded"
	TopicCodeIssued     = "code.issued"
)

// CheckedInEvent announces a committed check-in.
type CheckedInEvent struct {
	ID           uuid.UUID `json:"id"`
	AttendanceID int64     `json:"attendance_id"`
	PersonID     int64     `json:"person_id"`
	PersonName   string    `json:"person_name"`
	LocationID   int64     `json:"location_id"`
	LocationName string    `json:"location_name"`
	Occupancy    int       `json:"occupancy"`
	Capacity     *int      `json:"capacity,omitempty"`
	NearCapacity bool      `json:"near_capacity"`
	At           time.Time `json:"at"`
}

// CheckedOutEvent announces a closed attendance.
type CheckedOutEvent struct {
	ID           uuid.UUID `json:"id"`
	AttendanceID int64     `json:"attendance_id"`
	PersonID     int64     `json:"person_id"`
	LocationID   int64     `json:"location_id"`
	At           time.Time `json:"at"`
}

// PickupRecordedEvent announces a durable release commit.
type PickupRecordedEvent struct {
	ID                 uuid.UUID `json:"id"`
	PickupLogID        int64     `json:"pickup_log_id"`
	AttendanceID       int64     `json:"attendance_id"`
	ChildID            int64     `json:"child_id"`
	WasAuthorized      bool      `json:"was_authorized"`
	SupervisorOverride bool      `json:"supervisor_override"`
	At                 time.Time `json:"at"`
}

// CodeIssuedEvent announces a security code bound to an attendance.
// The code value itself never rides the bus.
type CodeIssuedEvent struct {
	ID           uuid.UUID `json:"id"`
	AttendanceID int64     `json:"attendance_id"`
	IssueDate    time.Time `json:"issue_date"`
	At           time.Time `json:"at"`
}
