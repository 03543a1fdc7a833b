// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package securitycode

import (
	"context"
	"errors"
	"fmt"

	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/models"
)

var (
	// ErrAttendanceClosed reports a reprint request against an
	// attendance that already ended. Closed attendances have no label
	// to reprint.
	ErrAttendanceClosed = errors.New("securitycode: attendance is closed")

	// ErrNoCodeAttached reports an attendance that was created without
	// a security code.
	ErrNoCodeAttached = errors.New("securitycode: attendance has no code")
)

// ReprintStore is the read surface the reprinter needs.
type ReprintStore interface {
	GetAttendance(ctx context.Context, id int64) (*models.Attendance, error)
	GetAttendanceCode(ctx context.Context, attendanceID int64) (string, error)
	GetPerson(ctx context.Context, id int64) (*models.Person, error)
}

// ReprintAudit receives reprint events. *audit.Logger satisfies it; a
// nil sink disables auditing.
type ReprintAudit interface {
	LogCodeReprint(ctx context.Context, actor audit.Actor, source audit.Source, child audit.Subject, attendanceID int64)
}

// Reprinter re-reads the code attached to an open attendance so a lost
// badge label can be printed again. It never issues a second code for
// the same attendance; the original stays valid.
type Reprinter struct {
	store   ReprintStore
	auditor ReprintAudit
}

// NewReprinter creates a Reprinter. auditor may be nil.
func NewReprinter(store ReprintStore, auditor ReprintAudit) *Reprinter {
	return &Reprinter{store: store, auditor: auditor}
}

// Reprint returns the code for an open attendance, attributed to the
// supervisor requesting it. The attendance must still be open and must
// carry a code.
func (r *Reprinter) Reprint(ctx context.Context, attendanceID, supervisorPersonID int64, source audit.Source) (string, error) {
	att, err := r.store.GetAttendance(ctx, attendanceID)
	if err != nil {
		return "", fmt.Errorf("load attendance: %w", err)
	}
	if !att.IsOpen() {
		return "", ErrAttendanceClosed
	}

	code, err := r.store.GetAttendanceCode(ctx, attendanceID)
	if err != nil {
		return "", fmt.Errorf("load code: %w", err)
	}
	if code == "" {
		return "", ErrNoCodeAttached
	}

	child, err := r.store.GetPerson(ctx, att.PersonID)
	if err != nil {
		return "", fmt.Errorf("load child: %w", err)
	}
	supervisor, err := r.store.GetPerson(ctx, supervisorPersonID)
	if err != nil {
		return "", fmt.Errorf("load supervisor: %w", err)
	}

	logging.Warn().
		Int64("attendance_id", attendanceID).
		Int64("supervisor_id", supervisorPersonID).
		Msg("Security code reprinted")

	if r.auditor != nil {
		r.auditor.LogCodeReprint(ctx,
			audit.StaffActor(supervisor.ID, supervisor.FullName(), models.RoleSupervisor),
			source,
			audit.ChildSubject(child.ID, child.FullName()),
			attendanceID)
	}

	return code, nil
}
