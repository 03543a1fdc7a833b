// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package database

import (
	"context"
	"fmt"
	"strings"
)

// schema is executed statement by statement at startup. DuckDB evaluates
// IF NOT EXISTS cheaply, so re-running on every boot is fine.
//
// Lifecycle invariants encoded here:
//   - attendances are closed (ended_at set), never deleted
//   - authorized_pickups deactivate via is_active, never deleted;
//     one row per (child_id, person_id) pair backs the upsert
//   - pickup_logs are append-only
//   - security codes are unique per (code, issue_date)
const schema = `
CREATE SEQUENCE IF NOT EXISTS seq_person_id;
CREATE SEQUENCE IF NOT EXISTS seq_location_id;
CREATE SEQUENCE IF NOT EXISTS seq_schedule_id;
CREATE SEQUENCE IF NOT EXISTS seq_occurrence_id;
CREATE SEQUENCE IF NOT EXISTS seq_attendance_id;
CREATE SEQUENCE IF NOT EXISTS seq_security_code_id;
CREATE SEQUENCE IF NOT EXISTS seq_authorized_pickup_id;
CREATE SEQUENCE IF NOT EXISTS seq_pickup_log_id;
CREATE SEQUENCE IF NOT EXISTS seq_staff_credential_id;

CREATE TABLE IF NOT EXISTS persons (
	id BIGINT PRIMARY KEY DEFAULT nextval('seq_person_id'),
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	birth_date DATE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_deceased BOOLEAN NOT NULL DEFAULT FALSE,
	is_adult BOOLEAN NOT NULL DEFAULT FALSE,
	family_group_id BIGINT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS locations (
	id BIGINT PRIMARY KEY DEFAULT nextval('seq_location_id'),
	name TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	capacity INTEGER,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schedules (
	id BIGINT PRIMARY KEY DEFAULT nextval('seq_schedule_id'),
	name TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS occurrences (
	id BIGINT PRIMARY KEY DEFAULT nextval('seq_occurrence_id'),
	location_id BIGINT NOT NULL,
	schedule_id BIGINT NOT NULL,
	occurrence_date DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (location_id, schedule_id, occurrence_date)
);

CREATE TABLE IF NOT EXISTS attendances (
	id BIGINT PRIMARY KEY DEFAULT nextval('seq_attendance_id'),
	person_id BIGINT NOT NULL,
	occurrence_id BIGINT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	did_attend BOOLEAN NOT NULL DEFAULT TRUE,
	security_code_id BIGINT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS security_codes (
	id BIGINT PRIMARY KEY DEFAULT nextval('seq_security_code_id'),
	code TEXT NOT NULL,
	issue_date DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (code, issue_date)
);

CREATE TABLE IF NOT EXISTS authorized_pickups (
	id BIGINT PRIMARY KEY DEFAULT nextval('seq_authorized_pickup_id'),
	child_id BIGINT NOT NULL,
	person_id BIGINT,
	person_name TEXT,
	relationship TEXT NOT NULL,
	level TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	deactivated_at TIMESTAMPTZ,
	UNIQUE (child_id, person_id)
);

CREATE TABLE IF NOT EXISTS pickup_logs (
	id BIGINT PRIMARY KEY DEFAULT nextval('seq_pickup_log_id'),
	attendance_id BIGINT NOT NULL,
	child_id BIGINT NOT NULL,
	pickup_person_id BIGINT,
	pickup_person_name TEXT,
	was_authorized BOOLEAN NOT NULL,
	authorized_pickup_id BIGINT,
	supervisor_override BOOLEAN NOT NULL,
	supervisor_person_id BIGINT,
	notes TEXT,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS staff_credentials (
	id BIGINT PRIMARY KEY DEFAULT nextval('seq_staff_credential_id'),
	person_id BIGINT NOT NULL,
	username TEXT NOT NULL UNIQUE,
	pin_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_occurrences_location_date ON occurrences(location_id, occurrence_date);
CREATE INDEX IF NOT EXISTS idx_attendances_person ON attendances(person_id);
CREATE INDEX IF NOT EXISTS idx_attendances_occurrence ON attendances(occurrence_id);
CREATE INDEX IF NOT EXISTS idx_security_codes_date ON security_codes(issue_date);
CREATE INDEX IF NOT EXISTS idx_authorized_pickups_child ON authorized_pickups(child_id);
CREATE INDEX IF NOT EXISTS idx_pickup_logs_child ON pickup_logs(child_id);
CREATE INDEX IF NOT EXISTS idx_pickup_logs_attendance ON pickup_logs(attendance_id);
`

func (d *DB) ensureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
