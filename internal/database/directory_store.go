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

// ErrNotFound marks a lookup that matched no row. Callers translate it
// into their own "invalid reference" outcomes; it is never surfaced raw.
var ErrNotFound = errors.New("database: not found")

// GetPerson loads one directory person.
func (d *DB) GetPerson(ctx context.Context, id int64) (*models.Person, error) {
	const q = `
		SELECT id, first_name, last_name, birth_date, is_active, is_deceased, is_adult, family_group_id
		FROM persons WHERE id = ?
	`
	var (
		p         models.Person
		birthDate sql.NullTime
		familyID  sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.FirstName, &p.LastName, &birthDate,
		&p.IsActive, &p.IsDeceased, &p.IsAdult, &familyID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get person %d: %w", id, err)
	}
	if birthDate.Valid {
		p.BirthDate = &birthDate.Time
	}
	if familyID.Valid {
		p.FamilyGroupID = &familyID.Int64
	}
	return &p, nil
}

// GetLocation loads one location with its capacity setting.
func (d *DB) GetLocation(ctx context.Context, id int64) (*models.Location, error) {
	const q = `SELECT id, name, is_active, capacity FROM locations WHERE id = ?`
	var (
		l   models.Location
		cap sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, q, id).Scan(&l.ID, &l.Name, &l.IsActive, &cap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location %d: %w", id, err)
	}
	if cap.Valid {
		c := int(cap.Int64)
		l.Capacity = &c
	}
	return &l, nil
}

// GetSchedule loads one schedule.
func (d *DB) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	const q = `SELECT id, name, is_active FROM schedules WHERE id = ?`
	var s models.Schedule
	err := d.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Name, &s.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %d: %w", id, err)
	}
	return &s, nil
}

// ListFamilyAdults returns the active adult members of a family group,
// excluding the given person. Used to seed standing pickup authorizations.
func (d *DB) ListFamilyAdults(ctx context.Context, familyGroupID, excludePersonID int64) ([]models.Person, error) {
	const q = `
		SELECT id, first_name, last_name, is_active, is_deceased, is_adult, family_group_id
		FROM persons
		WHERE family_group_id = ? AND id != ? AND is_adult AND is_active AND NOT is_deceased
		ORDER BY id
	`
	rows, err := d.db.QueryContext(ctx, q, familyGroupID, excludePersonID)
	if err != nil {
		return nil, fmt.Errorf("list family adults: %w", err)
	}
	defer rows.Close()

	var out []models.Person
	for rows.Next() {
		var (
			p        models.Person
			familyID sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.IsActive, &p.IsDeceased, &p.IsAdult, &familyID); err != nil {
			return nil, fmt.Errorf("scan family adult: %w", err)
		}
		if familyID.Valid {
			p.FamilyGroupID = &familyID.Int64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePerson inserts a directory person and returns it with its id.
func (d *DB) CreatePerson(ctx context.Context, p models.Person) (*models.Person, error) {
	const q = `
		INSERT INTO persons (first_name, last_name, birth_date, is_active, is_deceased, is_adult, family_group_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	var birthDate interface{}
	if p.BirthDate != nil {
		birthDate = *p.BirthDate
	}
	var familyID interface{}
	if p.FamilyGroupID != nil {
		familyID = *p.FamilyGroupID
	}
	err := d.db.QueryRowContext(ctx, q,
		p.FirstName, p.LastName, birthDate, p.IsActive, p.IsDeceased, p.IsAdult, familyID,
	).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	return &p, nil
}

// CreateLocation inserts a location.
func (d *DB) CreateLocation(ctx context.Context, l models.Location) (*models.Location, error) {
	const q = `INSERT INTO locations (name, is_active, capacity) VALUES (?, ?, ?) RETURNING id`
	var capacity interface{}
	if l.Capacity != nil {
		capacity = *l.Capacity
	}
	if err := d.db.QueryRowContext(ctx, q, l.Name, l.IsActive, capacity).Scan(&l.ID); err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}
	return &l, nil
}

// CreateSchedule inserts a schedule.
func (d *DB) CreateSchedule(ctx context.Context, s models.Schedule) (*models.Schedule, error) {
	const q = `INSERT INTO schedules (name, is_active) VALUES (?, ?) RETURNING id`
	if err := d.db.QueryRowContext(ctx, q, s.Name, s.IsActive).Scan(&s.ID); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return &s, nil
}

// GetStaffCredential loads an active staff login by username.
func (d *DB) GetStaffCredential(ctx context.Context, username string) (*models.StaffCredential, error) {
	const q = `
		SELECT id, person_id, username, pin_hash, role
		FROM staff_credentials
		WHERE username = ? AND is_active
	`
	var c models.StaffCredential
	err := d.db.QueryRowContext(ctx, q, username).Scan(&c.ID, &c.PersonID, &c.Username, &c.PINHash, &c.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get staff credential: %w", err)
	}
	return &c, nil
}

// CreateStaffCredential inserts a staff login.
func (d *DB) CreateStaffCredential(ctx context.Context, c models.StaffCredential) (*models.StaffCredential, error) {
	const q = `
		INSERT INTO staff_credentials (person_id, username, pin_hash, role, is_active)
		VALUES (?, ?, ?, ?, TRUE)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, q, c.PersonID, c.Username, c.PINHash, c.Role).Scan(&c.ID); err != nil {
		return nil, fmt.Errorf("create staff credential: %w", err)
	}
	c.CreatedAt = time.Now()
	return &c, nil
}
