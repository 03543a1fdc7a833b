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

// GetOrCreateOccurrence resolves the occurrence for (location, schedule,
// date), creating it lazily on first use. Callers invoke this inside the
// location lock; the unique triple index is the second line of defense
// against a concurrent create.
func (d *DB) GetOrCreateOccurrence(ctx context.Context, locationID, scheduleID int64, date time.Time) (*models.Occurrence, error) {
	occ, err := d.getOccurrence(ctx, locationID, scheduleID, date)
	if err == nil {
		return occ, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	const ins = `
		INSERT INTO occurrences (location_id, schedule_id, occurrence_date)
		VALUES (?, ?, CAST(? AS DATE))
		ON CONFLICT (location_id, schedule_id, occurrence_date) DO NOTHING
		RETURNING id
	`
	var id int64
	err = d.db.QueryRowContext(ctx, ins, locationID, scheduleID, date).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race to a concurrent create; the row exists now.
		return d.getOccurrence(ctx, locationID, scheduleID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("create occurrence: %w", err)
	}

	return &models.Occurrence{
		ID:         id,
		LocationID: locationID,
		ScheduleID: scheduleID,
		Date:       date,
	}, nil
}

func (d *DB) getOccurrence(ctx context.Context, locationID, scheduleID int64, date time.Time) (*models.Occurrence, error) {
	const q = `
		SELECT id, location_id, schedule_id, occurrence_date
		FROM occurrences
		WHERE location_id = ? AND schedule_id = ? AND occurrence_date = CAST(? AS DATE)
	`
	var occ models.Occurrence
	err := d.db.QueryRowContext(ctx, q, locationID, scheduleID, date).Scan(
		&occ.ID, &occ.LocationID, &occ.ScheduleID, &occ.Date,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get occurrence: %w", err)
	}
	return &occ, nil
}
