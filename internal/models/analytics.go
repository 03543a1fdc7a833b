// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package models

import "time"

// AttendanceSummary aggregates check-in activity over a date range.
type AttendanceSummary struct {
	TotalCheckins      int     `json:"total_checkins"`
	UniqueAttendees    int     `json:"unique_attendees"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes"`
	OverridePickups    int     `json:"override_pickups"`
}

// AttendanceTrendPoint is one day's check-in count in a trend series.
type AttendanceTrendPoint struct {
	Date     time.Time `json:"date"`
	Checkins int       `json:"checkins"`
}

// LocationAttendance is a per-location breakdown row.
type LocationAttendance struct {
	LocationID   int64  `json:"location_id"`
	LocationName string `json:"location_name"`
	Checkins     int    `json:"checkins"`
}
