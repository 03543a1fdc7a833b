// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mayak870/gatehouse/internal/models"
)

// AttendanceSummary aggregates check-in activity inside [from, to].
func (d *DB) AttendanceSummary(ctx context.Context, from, to time.Time) (*models.AttendanceSummary, error) {
	const q = `
		SELECT
			COUNT(*),
			COUNT(DISTINCT a.person_id),
			COALESCE(AVG(date_diff('minute', a.started_at, a.ended_at)) FILTER (WHERE a.ended_at IS NOT NULL), 0)
		FROM attendances a
		JOIN occurrences o ON a.occurrence_id = o.id
		WHERE o.occurrence_date BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)
	`
	var s models.AttendanceSummary
	var avg sql.NullFloat64
	if err := d.db.QueryRowContext(ctx, q, from, to).Scan(&s.TotalCheckins, &s.UniqueAttendees, &avg); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	if avg.Valid {
		s.AvgDurationMinutes = avg.Float64
	}

	const overrides = `
		SELECT COUNT(*) FROM pickup_logs
		WHERE supervisor_override AND recorded_at BETWEEN ? AND ?
	`
	if err := d.db.QueryRowContext(ctx, overrides, from, to.Add(24*time.Hour)).Scan(&s.OverridePickups); err != nil {
		return nil, fmt.Errorf("attendance summary overrides: %w", err)
	}
	return &s, nil
}

// AttendanceTrend returns per-day check-in counts inside [from, to].
func (d *DB) AttendanceTrend(ctx context.Context, from, to time.Time) ([]models.AttendanceTrendPoint, error) {
	const q = `
		SELECT o.occurrence_date, COUNT(*)
		FROM attendances a
		JOIN occurrences o ON a.occurrence_id = o.id
		WHERE o.occurrence_date BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)
		GROUP BY o.occurrence_date
		ORDER BY o.occurrence_date
	`
	rows, err := d.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("attendance trend: %w", err)
	}
	defer rows.Close()

	var out []models.AttendanceTrendPoint
	for rows.Next() {
		var p models.AttendanceTrendPoint
		if err := rows.Scan(&p.Date, &p.Checkins); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AttendanceByLocation returns per-location check-in counts inside [from, to].
func (d *DB) AttendanceByLocation(ctx context.Context, from, to time.Time) ([]models.LocationAttendance, error) {
	const q = `
		SELECT l.id, l.name, COUNT(*)
		FROM attendances a
		JOIN occurrences o ON a.occurrence_id = o.id
		JOIN locations l ON o.location_id = l.id
		WHERE o.occurrence_date BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)
		GROUP BY l.id, l.name
		ORDER BY COUNT(*) DESC
	`
	rows, err := d.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("attendance by location: %w", err)
	}
	defer rows.Close()

	var out []models.LocationAttendance
	for rows.Next() {
		var la models.LocationAttendance
		if err := rows.Scan(&la.LocationID, &la.LocationName, &la.Checkins); err != nil {
			return nil, fmt.Errorf("scan location attendance: %w", err)
		}
		out = append(out, la)
	}
	return out, rows.Err()
}
