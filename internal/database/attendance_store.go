// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mayak870/gatehouse/internal/models"
)

// InsertAttendance creates an open attendance row and returns its id.
// Only the check-in orchestrator calls this, from inside the location lock.
func (d *DB) InsertAttendance(ctx context.Context, personID, occurrenceID int64, startedAt time.Time) (int64, error) {
	const q = `
		INSERT INTO attendances (person_id, occurrence_id, started_at, did_attend)
		VALUES (?, ?, ?, TRUE)
		RETURNING id
	`
	var id int64
	if err := d.db.QueryRowContext(ctx, q, personID, occurrenceID, startedAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert attendance: %w", err)
	}
	return id, nil
}

// AttachSecurityCode links an issued code to an attendance.
func (d *DB) AttachSecurityCode(ctx context.Context, attendanceID, codeID int64) error {
	const q = `UPDATE attendances SET security_code_id = ? WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, q, codeID, attendanceID); err != nil {
		return fmt.Errorf("attach security code: %w", err)
	}
	return nil
}

// CloseAttendance sets the end time on an open attendance. Returns false
// when the row does not exist or is already closed; closing is the only
// mutation attendance rows ever receive.
func (d *DB) CloseAttendance(ctx context.Context, attendanceID int64, endedAt time.Time) (bool, error) {
	const q = `UPDATE attendances SET ended_at = ? WHERE id = ? AND ended_at IS NULL`
	res, err := d.db.ExecContext(ctx, q, endedAt, attendanceID)
	if err != nil {
		return false, fmt.Errorf("close attendance %d: %w", attendanceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close attendance %d: %w", attendanceID, err)
	}
	return n > 0, nil
}

// GetAttendance loads one attendance row.
func (d *DB) GetAttendance(ctx context.Context, id int64) (*models.Attendance, error) {
	const q = `
		SELECT id, person_id, occurrence_id, started_at, ended_at, did_attend, security_code_id
		FROM attendances WHERE id = ?
	`
	var (
		a       models.Attendance
		endedAt sql.NullTime
		codeID  sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID, &a.PersonID, &a.OccurrenceID, &a.StartedAt, &endedAt, &a.DidAttend, &codeID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance %d: %w", id, err)
	}
	if endedAt.Valid {
		a.EndedAt = &endedAt.Time
	}
	if codeID.Valid {
		a.SecurityCodeID = &codeID.Int64
	}
	return &a, nil
}

// HasOpenAttendance reports whether the person already holds an open
// attendance for the occurrence.
func (d *DB) HasOpenAttendance(ctx context.Context, personID, occurrenceID int64) (bool, error) {
	const q = `
		SELECT COUNT(*) FROM attendances
		WHERE person_id = ? AND occurrence_id = ? AND ended_at IS NULL
	`
	var n int
	if err := d.db.QueryRowContext(ctx, q, personID, occurrenceID).Scan(&n); err != nil {
		return false, fmt.Errorf("open attendance lookup: %w", err)
	}
	return n > 0, nil
}

// CountOpenAttendances recomputes a location's live occupancy for a date
// from open attendance rows. The derived count is the source of truth;
// nothing caches it.
func (d *DB) CountOpenAttendances(ctx context.Context, locationID int64, date time.Time) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM attendances a
		JOIN occurrences o ON a.occurrence_id = o.id
		WHERE o.location_id = ? AND o.occurrence_date = CAST(? AS DATE) AND a.ended_at IS NULL
	`
	var n int
	if err := d.db.QueryRowContext(ctx, q, locationID, date).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open attendances: %w", err)
	}
	return n, nil
}

// ListOccupants returns the open attendances at a location for a date,
// with person names and codes denormalized for roster display.
func (d *DB) ListOccupants(ctx context.Context, locationID int64, date time.Time) ([]models.Occupant, error) {
	const q = `
		SELECT a.id, p.id, p.first_name || ' ' || p.last_name, a.started_at, COALESCE(sc.code, '')
		FROM attendances a
		JOIN occurrences o ON a.occurrence_id = o.id
		JOIN persons p ON a.person_id = p.id
		LEFT JOIN security_codes sc ON a.security_code_id = sc.id
		WHERE o.location_id = ? AND o.occurrence_date = CAST(? AS DATE) AND a.ended_at IS NULL
		ORDER BY a.started_at
	`
	rows, err := d.db.QueryContext(ctx, q, locationID, date)
	if err != nil {
		return nil, fmt.Errorf("list occupants: %w", err)
	}
	defer rows.Close()

	var out []models.Occupant
	for rows.Next() {
		var occ models.Occupant
		if err := rows.Scan(&occ.AttendanceID, &occ.PersonID, &occ.PersonName, &occ.CheckedInAt, &occ.SecurityCode); err != nil {
			return nil, fmt.Errorf("scan occupant: %w", err)
		}
		out = append(out, occ)
	}
	return out, rows.Err()
}

// ListPersonHistory returns a person's attendances since the given instant,
// most recent first.
func (d *DB) ListPersonHistory(ctx context.Context, personID int64, since time.Time) ([]models.HistoryEntry, error) {
	const q = `
		SELECT a.id, l.name, s.name, o.occurrence_date, a.started_at, a.ended_at, a.did_attend
		FROM attendances a
		JOIN occurrences o ON a.occurrence_id = o.id
		JOIN locations l ON o.location_id = l.id
		JOIN schedules s ON o.schedule_id = s.id
		WHERE a.person_id = ? AND a.started_at >= ?
		ORDER BY a.started_at DESC
	`
	rows, err := d.db.QueryContext(ctx, q, personID, since)
	if err != nil {
		return nil, fmt.Errorf("list person history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var (
			e       models.HistoryEntry
			endedAt sql.NullTime
		)
		if err := rows.Scan(&e.AttendanceID, &e.LocationName, &e.ScheduleName, &e.Date, &e.StartedAt, &endedAt, &e.DidAttend); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		if endedAt.Valid {
			e.EndedAt = &endedAt.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetAttendanceCode returns the code value attached to an attendance, or
// "" when none was issued.
func (d *DB) GetAttendanceCode(ctx context.Context, attendanceID int64) (string, error) {
	const q = `
		SELECT COALESCE(sc.code, '')
		FROM attendances a
		LEFT JOIN security_codes sc ON a.security_code_id = sc.id
		WHERE a.id = ?
	`
	var code string
	err := d.db.QueryRowContext(ctx, q, attendanceID).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get attendance code: %w", err)
	}
	return code, nil
}
