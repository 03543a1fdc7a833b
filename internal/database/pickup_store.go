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

// GetActiveAuthorization resolves the standing authorization for a
// (child, known person) pair. ErrNotFound means "not on the list".
func (d *DB) GetActiveAuthorization(ctx context.Context, childID, personID int64) (*models.AuthorizedPickup, error) {
	const q = `
		SELECT id, child_id, person_id, person_name, relationship, level, is_active, created_at, updated_at
		FROM authorized_pickups
		WHERE child_id = ? AND person_id = ? AND is_active
	`
	return d.scanAuthorization(d.db.QueryRowContext(ctx, q, childID, personID))
}

// GetActiveAuthorizationByName resolves a free-text contact by exact,
// case-insensitive name match. The most recently updated row wins when
// staff recorded the same name twice.
func (d *DB) GetActiveAuthorizationByName(ctx context.Context, childID int64, name string) (*models.AuthorizedPickup, error) {
	const q = `
		SELECT id, child_id, person_id, person_name, relationship, level, is_active, created_at, updated_at
		FROM authorized_pickups
		WHERE child_id = ? AND lower(person_name) = lower(?) AND is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return d.scanAuthorization(d.db.QueryRowContext(ctx, q, childID, name))
}

func (d *DB) scanAuthorization(row *sql.Row) (*models.AuthorizedPickup, error) {
	var (
		ap         models.AuthorizedPickup
		personID   sql.NullInt64
		personName sql.NullString
		level      string
	)
	err := row.Scan(&ap.ID, &ap.ChildID, &personID, &personName, &ap.Relationship, &level, &ap.IsActive, &ap.CreatedAt, &ap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get authorization: %w", err)
	}
	if personID.Valid {
		ap.PersonID = &personID.Int64
	}
	if personName.Valid {
		ap.PersonName = &personName.String
	}
	ap.Level = models.AuthorizationLevel(level)
	return &ap, nil
}

// ListActiveAuthorizations returns a child's standing authorizations.
func (d *DB) ListActiveAuthorizations(ctx context.Context, childID int64) ([]models.AuthorizedPickup, error) {
	const q = `
		SELECT id, child_id, person_id, person_name, relationship, level, is_active, created_at, updated_at
		FROM authorized_pickups
		WHERE child_id = ? AND is_active
		ORDER BY id
	`
	rows, err := d.db.QueryContext(ctx, q, childID)
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	defer rows.Close()

	var out []models.AuthorizedPickup
	for rows.Next() {
		var (
			ap         models.AuthorizedPickup
			personID   sql.NullInt64
			personName sql.NullString
			level      string
		)
		if err := rows.Scan(&ap.ID, &ap.ChildID, &personID, &personName, &ap.Relationship, &level, &ap.IsActive, &ap.CreatedAt, &ap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan authorization: %w", err)
		}
		if personID.Valid {
			ap.PersonID = &personID.Int64
		}
		if personName.Valid {
			ap.PersonName = &personName.String
		}
		ap.Level = models.AuthorizationLevel(level)
		out = append(out, ap)
	}
	return out, rows.Err()
}

// UpsertStandingAuthorization seeds an Always-level authorization for a
// (child, person) pair. The unique pair index makes repeated runs
// idempotent: created=false when any row, active or deactivated, already
// exists. A deactivated row is a deliberate staff action and is never
// resurrected by seeding.
func (d *DB) UpsertStandingAuthorization(ctx context.Context, childID, personID int64, relationship string, now time.Time) (created bool, err error) {
	const q = `
		INSERT INTO authorized_pickups (child_id, person_id, relationship, level, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, TRUE, ?, ?)
		ON CONFLICT (child_id, person_id) DO NOTHING
		RETURNING id
	`
	var id int64
	err = d.db.QueryRowContext(ctx, q, childID, personID, relationship, string(models.LevelAlways), now, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert standing authorization: %w", err)
	}
	return true, nil
}

// SaveAuthorization creates or replaces the standing authorization for a
// pair. Known persons upsert on the pair index; named contacts always
// insert a fresh row.
func (d *DB) SaveAuthorization(ctx context.Context, ap models.AuthorizedPickup, now time.Time) (*models.AuthorizedPickup, error) {
	if ap.PersonID == nil {
		const ins = `
			INSERT INTO authorized_pickups (child_id, person_name, relationship, level, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, TRUE, ?, ?)
			RETURNING id
		`
		if err := d.db.QueryRowContext(ctx, ins, ap.ChildID, ap.PersonName, ap.Relationship, string(ap.Level), now, now).Scan(&ap.ID); err != nil {
			return nil, fmt.Errorf("save named authorization: %w", err)
		}
		ap.IsActive = true
		return &ap, nil
	}

	const upsert = `
		INSERT INTO authorized_pickups (child_id, person_id, relationship, level, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, TRUE, ?, ?)
		ON CONFLICT (child_id, person_id) DO UPDATE SET
			relationship = excluded.relationship,
			level = excluded.level,
			is_active = TRUE,
			deactivated_at = NULL,
			updated_at = excluded.updated_at
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, upsert, ap.ChildID, *ap.PersonID, ap.Relationship, string(ap.Level), now, now).Scan(&ap.ID); err != nil {
		return nil, fmt.Errorf("save authorization: %w", err)
	}
	ap.IsActive = true
	return &ap, nil
}

// DeactivateAuthorization soft-disables a standing authorization. The row
// stays for audit; false means it was already inactive or absent.
func (d *DB) DeactivateAuthorization(ctx context.Context, id int64, now time.Time) (bool, error) {
	const q = `
		UPDATE authorized_pickups
		SET is_active = FALSE, deactivated_at = ?, updated_at = ?
		WHERE id = ? AND is_active
	`
	res, err := d.db.ExecContext(ctx, q, now, now, id)
	if err != nil {
		return false, fmt.Errorf("deactivate authorization %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate authorization %d: %w", id, err)
	}
	return n > 0, nil
}

// InsertPickupLog appends one immutable release record.
func (d *DB) InsertPickupLog(ctx context.Context, pl models.PickupLog) (*models.PickupLog, error) {
	const q = `
		INSERT INTO pickup_logs (
			attendance_id, child_id, pickup_person_id, pickup_person_name,
			was_authorized, authorized_pickup_id, supervisor_override, supervisor_person_id,
			notes, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	var (
		personID   interface{}
		personName interface{}
		authID     interface{}
		supervisor interface{}
	)
	if pl.PickupPersonID != nil {
		personID = *pl.PickupPersonID
	}
	if pl.PickupPersonName != nil {
		personName = *pl.PickupPersonName
	}
	if pl.AuthorizedPickupID != nil {
		authID = *pl.AuthorizedPickupID
	}
	if pl.SupervisorPersonID != nil {
		supervisor = *pl.SupervisorPersonID
	}
	err := d.db.QueryRowContext(ctx, q,
		pl.AttendanceID, pl.ChildID, personID, personName,
		pl.WasAuthorized, authID, pl.SupervisorOverride, supervisor,
		pl.Notes, pl.RecordedAt,
	).Scan(&pl.ID)
	if err != nil {
		return nil, fmt.Errorf("insert pickup log: %w", err)
	}
	return &pl, nil
}

// ListPickupLogsForChild returns a child's release history, newest first.
func (d *DB) ListPickupLogsForChild(ctx context.Context, childID int64, limit int) ([]models.PickupLog, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, attendance_id, child_id, pickup_person_id, pickup_person_name,
		       was_authorized, authorized_pickup_id, supervisor_override, supervisor_person_id,
		       notes, recorded_at
		FROM pickup_logs
		WHERE child_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`
	rows, err := d.db.QueryContext(ctx, q, childID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pickup logs: %w", err)
	}
	defer rows.Close()

	var out []models.PickupLog
	for rows.Next() {
		var (
			pl         models.PickupLog
			personID   sql.NullInt64
			personName sql.NullString
			authID     sql.NullInt64
			supervisor sql.NullInt64
			notes      sql.NullString
		)
		if err := rows.Scan(&pl.ID, &pl.AttendanceID, &pl.ChildID, &personID, &personName,
			&pl.WasAuthorized, &authID, &pl.SupervisorOverride, &supervisor, &notes, &pl.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan pickup log: %w", err)
		}
		if personID.Valid {
			pl.PickupPersonID = &personID.Int64
		}
		if personName.Valid {
			pl.PickupPersonName = &personName.String
		}
		if authID.Valid {
			pl.AuthorizedPickupID = &authID.Int64
		}
		if supervisor.Valid {
			pl.SupervisorPersonID = &supervisor.Int64
		}
		if notes.Valid {
			pl.Notes = notes.String
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}
