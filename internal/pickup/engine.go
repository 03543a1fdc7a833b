// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package pickup decides whether a presented person may take a
// checked-in child out, and records every release decision.
//
// Verify is speculative: it renders a decision without writing anything,
// so the kiosk can show state before committing. RecordPickup is the
// durable step: exactly one immutable pickup log row per actual release,
// closing the attendance as a side effect. The validation rules on
// RecordPickup are caller-contract faults, not business outcomes: a
// kiosk that sends a contradictory override request has a bug.
package pickup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mayak870/gatehouse/internal/clock"
	"github.com/mayak870/gatehouse/internal/database"
	"github.com/mayak870/gatehouse/internal/events"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/metrics"
	"github.com/mayak870/gatehouse/internal/models"
)

// Validation faults returned by RecordPickup. Each is a distinct caller
// contract violation, never folded into a business result.
var (
	// ErrBlockedPerson marks an attempt to release to a Never-level
	// contact. No override can authorize it.
	ErrBlockedPerson = errors.New("pickup: person is blocked from picking up this child")

	// ErrOverrideRequired marks an unauthorized release recorded without
	// a supervisor override.
	ErrOverrideRequired = errors.New("pickup: supervisor override is required for an unauthorized release")

	// ErrSupervisorRequired marks an override without an attributed
	// supervisor identity.
	ErrSupervisorRequired = errors.New("pickup: supervisor id is required to attribute an override")

	// ErrContradictoryOverride marks an override on an already
	// policy-authorized release, which would muddy the audit trail.
	ErrContradictoryOverride = errors.New("pickup: override is contradictory when the release was policy-authorized")

	// ErrEmptyPickupPerson marks a request naming nobody.
	ErrEmptyPickupPerson = errors.New("pickup: pickup person is required")

	// ErrAttendanceNotFound marks an unknown attendance reference.
	ErrAttendanceNotFound = errors.New("pickup: attendance not found")
)

// Store is the persistence surface the engine needs. Implemented by
// *database.DB.
type Store interface {
	GetAttendance(ctx context.Context, id int64) (*models.Attendance, error)
	GetAttendanceCode(ctx context.Context, attendanceID int64) (string, error)
	CloseAttendance(ctx context.Context, attendanceID int64, endedAt time.Time) (bool, error)
	GetActiveAuthorization(ctx context.Context, childID, personID int64) (*models.AuthorizedPickup, error)
	GetActiveAuthorizationByName(ctx context.Context, childID int64, name string) (*models.AuthorizedPickup, error)
	InsertPickupLog(ctx context.Context, pl models.PickupLog) (*models.PickupLog, error)
	GetPerson(ctx context.Context, id int64) (*models.Person, error)
	ListFamilyAdults(ctx context.Context, familyGroupID, excludePersonID int64) ([]models.Person, error)
	UpsertStandingAuthorization(ctx context.Context, childID, personID int64, relationship string, now time.Time) (bool, error)
}

// EventSink receives pickup commits. Satisfied by *events.Bus; nil
// disables publishing.
type EventSink interface {
	PickupRecorded(evt events.PickupRecordedEvent)
}

// Verification is the result of one speculative authorization check.
type Verification struct {
	IsAuthorized bool `json:"is_authorized"`

	// Level is the resolved standing policy, empty when no relationship
	// is on file or the code check failed before lookup.
	Level models.AuthorizationLevel `json:"level,omitempty"`

	// RequiresSupervisorOverride is set for releases a supervisor could
	// still approve: emergency-only contacts and people not on the list.
	// Never set for a hard block.
	RequiresSupervisorOverride bool `json:"requires_supervisor_override"`

	Message string `json:"message"`

	// AuthorizedPickupID is set when a standing authorization matched.
	AuthorizedPickupID *int64 `json:"authorized_pickup_id,omitempty"`

	AttendanceID int64 `json:"attendance_id"`
	ChildID      int64 `json:"child_id"`
}

// RecordPickupRequest is the durable release commit.
type RecordPickupRequest struct {
	AttendanceID       int64
	Person             models.PickupPerson
	WasAuthorized      bool
	AuthorizedPickupID *int64
	SupervisorOverride bool
	SupervisorPersonID *int64
	Notes              string
}

// Engine evaluates pickup policy and writes the release log.
type Engine struct {
	store Store
	clk   clock.Clock
	sink  EventSink
}

// New creates the engine. sink may be nil.
func New(store Store, clk clock.Clock, sink EventSink) *Engine {
	return &Engine{store: store, clk: clk, sink: sink}
}

// Verify decides whether person may take the attendance's child out.
// The security code gate runs first and fails closed: a bad code denies
// without consulting the relationship at all.
func (e *Engine) Verify(ctx context.Context, attendanceID int64, person models.PickupPerson, presentedCode string) (*Verification, error) {
	if person.IsZero() {
		return nil, ErrEmptyPickupPerson
	}

	att, err := e.store.GetAttendance(ctx, attendanceID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrAttendanceNotFound
	}
	if err != nil {
		return nil, err
	}

	v := &Verification{AttendanceID: att.ID, ChildID: att.PersonID}

	stored, err := e.store.GetAttendanceCode(ctx, att.ID)
	if err != nil {
		return nil, err
	}
	if !codeMatches(stored, presentedCode) {
		v.Message = "Invalid security code."
		metrics.PickupVerifications.WithLabelValues("invalid_code").Inc()
		return v, nil
	}

	auth, err := e.resolveAuthorization(ctx, att.PersonID, person)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if auth == nil {
		v.RequiresSupervisorOverride = true
		v.Message = "Not on the authorized pickup list. A supervisor override is required."
		metrics.PickupVerifications.WithLabelValues("not_on_list").Inc()
		return v, nil
	}

	v.Level = auth.Level
	switch auth.Level {
	case models.LevelAlways:
		v.IsAuthorized = true
		v.AuthorizedPickupID = &auth.ID
		v.Message = fmt.Sprintf("Authorized (%s).", auth.Relationship)
		metrics.PickupVerifications.WithLabelValues("authorized").Inc()
	case models.LevelEmergencyOnly:
		v.RequiresSupervisorOverride = true
		v.AuthorizedPickupID = &auth.ID
		v.Message = fmt.Sprintf("Emergency-only contact (%s). A supervisor override is required.", auth.Relationship)
		metrics.PickupVerifications.WithLabelValues("emergency_only").Inc()
	case models.LevelNever:
		v.Message = "This person is blocked from picking up this child."
		metrics.PickupVerifications.WithLabelValues("blocked").Inc()
	default:
		return nil, fmt.Errorf("pickup: unknown authorization level %q on record %d", auth.Level, auth.ID)
	}
	return v, nil
}

// RecordPickup writes the immutable release record and closes the
// attendance if still open. Validation faults fire before anything is
// written; after the log row exists nothing unwinds it.
func (e *Engine) RecordPickup(ctx context.Context, req RecordPickupRequest) (*models.PickupLog, error) {
	if req.Person.IsZero() {
		return nil, ErrEmptyPickupPerson
	}

	att, err := e.store.GetAttendance(ctx, req.AttendanceID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrAttendanceNotFound
	}
	if err != nil {
		return nil, err
	}

	// The hard block wins over every flag combination, override included.
	auth, err := e.resolveAuthorization(ctx, att.PersonID, req.Person)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if auth != nil && auth.Level == models.LevelNever {
		return nil, ErrBlockedPerson
	}

	if !req.WasAuthorized && !req.SupervisorOverride {
		return nil, ErrOverrideRequired
	}
	if req.SupervisorOverride && req.SupervisorPersonID == nil {
		return nil, ErrSupervisorRequired
	}
	if req.WasAuthorized && req.SupervisorOverride {
		return nil, ErrContradictoryOverride
	}

	now := e.clk.Now()
	pl := models.PickupLog{
		AttendanceID:       att.ID,
		ChildID:            att.PersonID,
		WasAuthorized:      req.WasAuthorized,
		AuthorizedPickupID: req.AuthorizedPickupID,
		SupervisorOverride: req.SupervisorOverride,
		SupervisorPersonID: req.SupervisorPersonID,
		Notes:              req.Notes,
		RecordedAt:         now,
	}
	if id, ok := req.Person.PersonID(); ok {
		pl.PickupPersonID = &id
	}
	if name, ok := req.Person.Name(); ok {
		pl.PickupPersonName = &name
	}

	saved, err := e.store.InsertPickupLog(ctx, pl)
	if err != nil {
		return nil, err
	}

	if att.IsOpen() {
		if _, err := e.store.CloseAttendance(ctx, att.ID, now); err != nil {
			// The release is already logged; a failed close is a fault
			// the caller must see, but the log row stands.
			return saved, fmt.Errorf("pickup %d logged, attendance close failed: %w", saved.ID, err)
		}
	}

	kind := "authorized"
	if req.SupervisorOverride {
		kind = "override"
		logging.Warn().
			Int64("pickup_log_id", saved.ID).
			Int64("attendance_id", att.ID).
			Int64("child_id", att.PersonID).
			Int64("supervisor_id", *req.SupervisorPersonID).
			Msg("Supervisor override pickup recorded")
	}
	metrics.PickupsRecorded.WithLabelValues(kind).Inc()

	if e.sink != nil {
		e.sink.PickupRecorded(events.PickupRecordedEvent{
			PickupLogID:        saved.ID,
			AttendanceID:       att.ID,
			ChildID:            att.PersonID,
			WasAuthorized:      req.WasAuthorized,
			SupervisorOverride: req.SupervisorOverride,
			At:                 now,
		})
	}
	return saved, nil
}

// AutoPopulateStandingAuthorizations seeds Always-level Parent
// authorizations for every active adult in the child's family group.
// The upsert is keyed on the (child, person) pair, so repeated runs and
// concurrent runs create nothing twice. Returns how many were created.
func (e *Engine) AutoPopulateStandingAuthorizations(ctx context.Context, childID int64) (int, error) {
	child, err := e.store.GetPerson(ctx, childID)
	if err != nil {
		return 0, fmt.Errorf("pickup: child %d: %w", childID, err)
	}
	if child.FamilyGroupID == nil {
		return 0, nil
	}

	adults, err := e.store.ListFamilyAdults(ctx, *child.FamilyGroupID, child.ID)
	if err != nil {
		return 0, err
	}

	created := 0
	now := e.clk.Now()
	for _, adult := range adults {
		ok, err := e.store.UpsertStandingAuthorization(ctx, child.ID, adult.ID, "Parent", now)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// resolveAuthorization finds the standing authorization for the pickup
// person, by record id or by captured name. nil means not on the list.
func (e *Engine) resolveAuthorization(ctx context.Context, childID int64, person models.PickupPerson) (*models.AuthorizedPickup, error) {
	if id, ok := person.PersonID(); ok {
		return e.store.GetActiveAuthorization(ctx, childID, id)
	}
	name, _ := person.Name()
	return e.store.GetActiveAuthorizationByName(ctx, childID, name)
}

// codeMatches compares codes case-insensitively after trimming; a blank
// stored or presented code never matches anything.
func codeMatches(stored, presented string) bool {
	stored = strings.TrimSpace(stored)
	presented = strings.TrimSpace(presented)
	if stored == "" || presented == "" {
		return false
	}
	return strings.EqualFold(stored, presented)
}
