// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package models

import "time"

// AuthorizationLevel is the standing policy governing whether a specific
// person may retrieve a specific child without staff intervention.
type AuthorizationLevel string

const (
	// LevelAlways authorizes automatically once identity and code check out.
	LevelAlways AuthorizationLevel = "always"

	// LevelEmergencyOnly always requires a supervisor override; the
	// verification message must flag the relationship as emergency-only.
	LevelEmergencyOnly AuthorizationLevel = "emergency_only"

	// LevelNever is a hard block. No override can authorize the pairing.
	LevelNever AuthorizationLevel = "never"
)

// Valid reports whether the level is one of the three known states.
func (l AuthorizationLevel) Valid() bool {
	switch l {
	case LevelAlways, LevelEmergencyOnly, LevelNever:
		return true
	}
	return false
}

// AuthorizedPickup is a standing authorization linking a child to a
// pickup person. PersonID is set for directory-backed contacts; PersonName
// carries free-text contacts without a record. At most one active row per
// (child, person) pair; deactivation flips IsActive, rows are never deleted.
type AuthorizedPickup struct {
	ID            int64              `json:"id"`
	ChildID       int64              `json:"child_id"`
	PersonID      *int64             `json:"person_id,omitempty"`
	PersonName    *string            `json:"person_name,omitempty"`
	Relationship  string             `json:"relationship"`
	Level         AuthorizationLevel `json:"level"`
	IsActive      bool               `json:"is_active"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	DeactivatedAt *time.Time         `json:"deactivated_at,omitempty"`
}

// PickupLog is the immutable record of one release decision. Append-only:
// never updated, never deleted.
type PickupLog struct {
	ID                 int64     `json:"id"`
	AttendanceID       int64     `json:"attendance_id"`
	ChildID            int64     `json:"child_id"`
	PickupPersonID     *int64    `json:"pickup_person_id,omitempty"`
	PickupPersonName   *string   `json:"pickup_person_name,omitempty"`
	WasAuthorized      bool      `json:"was_authorized"`
	AuthorizedPickupID *int64    `json:"authorized_pickup_id,omitempty"`
	SupervisorOverride bool      `json:"supervisor_override"`
	SupervisorPersonID *int64    `json:"supervisor_person_id,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	RecordedAt         time.Time `json:"recorded_at"`
}

// PickupPerson identifies who is collecting a child: exactly one of a
// known person record or a free-text name captured at the door. The two
// cases are constructor-enforced so callers must handle both.
type PickupPerson struct {
	personID int64
	name     string
	known    bool
}

// KnownPerson references a directory person by internal id.
func KnownPerson(personID int64) PickupPerson {
	return PickupPerson{personID: personID, known: true}
}

// NamedPerson captures a pickup person by free-text name only.
func NamedPerson(name string) PickupPerson {
	return PickupPerson{name: name}
}

// PersonID returns the directory id and true for a known person.
func (p PickupPerson) PersonID() (int64, bool) {
	if !p.known {
		return 0, false
	}
	return p.personID, true
}

// Name returns the free-text name and true for a named person.
func (p PickupPerson) Name() (string, bool) {
	if p.known {
		return "", false
	}
	return p.name, true
}

// IsZero reports whether neither variant was populated.
func (p PickupPerson) IsZero() bool {
	return !p.known && p.name == ""
}
