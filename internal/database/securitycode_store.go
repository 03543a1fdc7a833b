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
)

// InsertSecurityCode attempts to issue a code for a date. The unique
// (code, issue_date) index arbitrates races: inserted=false reports a
// collision so the issuer can regenerate, never silently reuse.
func (d *DB) InsertSecurityCode(ctx context.Context, code string, issueDate time.Time) (id int64, inserted bool, err error) {
	const q = `
		INSERT INTO security_codes (code, issue_date)
		VALUES (?, CAST(? AS DATE))
		ON CONFLICT (code, issue_date) DO NOTHING
		RETURNING id
	`
	err = d.db.QueryRowContext(ctx, q, code, issueDate).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert security code: %w", err)
	}
	return id, true, nil
}
