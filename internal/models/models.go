// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package models holds the domain entities shared across the service:
// the directory records (persons, locations, schedules), the attendance
// trail, security codes, and the pickup-authorization records.
package models

import (
	"fmt"
	"time"
)

// Person is a directory record. Children and adults share the table;
// IsAdult distinguishes them for standing-authorization seeding.
type Person struct {
	ID            int64      `json:"id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
	IsActive      bool       `json:"is_active"`
	IsDeceased    bool       `json:"is_deceased"`
	IsAdult       bool       `json:"is_adult"`
	FamilyGroupID *int64     `json:"family_group_id,omitempty"`
}

// FullName renders the display name used on rosters and labels.
func (p Person) FullName() string {
	return fmt.Sprintf("%s %s", p.FirstName, p.LastName)
}

// Location is a supervised room. Capacity is nil when unlimited.
type Location struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
	Capacity *int   `json:"capacity,omitempty"`
}

// Schedule is a recurring service time a location can be open for.
type Schedule struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Occurrence is one scheduled instance of a location being open:
// location x schedule x calendar date. Created lazily on first check-in
// for a date; immutable once attendance references it.
type Occurrence struct {
	ID         int64     `json:"id"`
	LocationID int64     `json:"location_id"`
	ScheduleID int64     `json:"schedule_id"`
	Date       time.Time `json:"date"`
}

// Attendance is one person's presence interval at an occurrence.
// Rows are closed (EndedAt set) by check-out, never deleted; the table is
// the audit trail of physical presence.
type Attendance struct {
	ID             int64      `json:"id"`
	PersonID       int64      `json:"person_id"`
	OccurrenceID   int64      `json:"occurrence_id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	DidAttend      bool       `json:"did_attend"`
	SecurityCodeID *int64     `json:"security_code_id,omitempty"`
}

// IsOpen reports whether the person is still present.
func (a Attendance) IsOpen() bool {
	return a.EndedAt == nil
}

// SecurityCode is a short day-scoped pickup claim ticket. Unique among
// codes issued the same calendar date; values may recur across dates.
type SecurityCode struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	IssueDate time.Time `json:"issue_date"`
	CreatedAt time.Time `json:"created_at"`
}

// Occupant is a roster row: one currently open attendance at a location.
type Occupant struct {
	AttendanceID int64     `json:"attendance_id"`
	PersonID     int64     `json:"person_id"`
	PersonName   string    `json:"person_name"`
	CheckedInAt  time.Time `json:"checked_in_at"`
	SecurityCode string    `json:"security_code,omitempty"`
}

// HistoryEntry is one past attendance in a person's history view.
type HistoryEntry struct {
	AttendanceID int64      `json:"attendance_id"`
	LocationName string     `json:"location_name"`
	ScheduleName string     `json:"schedule_name"`
	Date         time.Time  `json:"date"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	DidAttend    bool       `json:"did_attend"`
}
