// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package checkin

// Outcome is the structured result code of one check-in attempt. Every
// outcome except OutcomeSuccess is an expected business denial, not an
// error: batch processing continues past all of them.
type Outcome string

const (
	OutcomeSuccess                   Outcome = "success"
	OutcomeInvalidPerson             Outcome = "invalid_person"
	OutcomeInvalidLocationOrSchedule Outcome = "invalid_location_or_schedule"
	OutcomePersonDeceased            Outcome = "person_deceased"
	OutcomeLocationInactive          Outcome = "location_inactive"
	OutcomeAlreadyCheckedIn          Outcome = "already_checked_in"
	OutcomeAtCapacity                Outcome = "at_capacity"

	// OutcomeError only appears in batch results: it folds a per-item
	// fault into the aggregate so siblings still process.
	OutcomeError Outcome = "error"
)

// CheckInRequest admits one person to one location occurrence.
type CheckInRequest struct {
	PersonID   int64 `json:"person_id"`
	LocationID int64 `json:"location_id"`
	ScheduleID int64 `json:"schedule_id"`

	// GenerateSecurityCode attaches a pickup code to the attendance.
	// The orchestrator may also be configured to always issue one.
	GenerateSecurityCode bool `json:"generate_security_code"`

	// OverrideCapacity admits past a full room. Requires
	// SupervisorPersonID; audited. Never bypasses duplicate or
	// directory checks.
	OverrideCapacity   bool   `json:"override_capacity"`
	SupervisorPersonID *int64 `json:"supervisor_person_id,omitempty"`
}

// CheckInResult is the structured outcome of one check-in attempt.
type CheckInResult struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`

	// Set on success.
	AttendanceID int64  `json:"attendance_id,omitempty"`
	SecurityCode string `json:"security_code,omitempty"`

	// Display summaries for the kiosk label screen.
	PersonName   string `json:"person_name,omitempty"`
	LocationName string `json:"location_name,omitempty"`

	// Occupancy after this check-in; Capacity nil means unlimited.
	Occupancy    int  `json:"occupancy,omitempty"`
	Capacity     *int `json:"capacity,omitempty"`
	NearCapacity bool `json:"near_capacity,omitempty"`
}

// OK reports whether the attempt admitted the person.
func (r *CheckInResult) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// BatchResult aggregates independent per-item results.
type BatchResult struct {
	Results      []CheckInResult `json:"results"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
	AllSucceeded bool            `json:"all_succeeded"`
}
