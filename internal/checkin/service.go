// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package checkin is the orchestrator for admitting and releasing
// attendees. It is the only component that creates or closes attendance
// rows.
//
// Business denials (full room, duplicate check-in, unknown person) are
// structured CheckInResult values; Go errors are reserved for faults:
// malformed input, storage failures, lock timeouts.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mayak870/gatehouse/internal/clock"
	"github.com/mayak870/gatehouse/internal/database"
	"github.com/mayak870/gatehouse/internal/events"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/metrics"
	"github.com/mayak870/gatehouse/internal/models"
)

// ErrInvalidRequest marks a malformed request: a caller-side contract
// violation rejected before any lock is taken.
var ErrInvalidRequest = errors.New("checkin: invalid request")

// ErrSupervisorRequired marks a capacity override without an attributed
// supervisor.
var ErrSupervisorRequired = errors.New("checkin: supervisor id required for capacity override")

// sentinels carried out of the guarded section, mapped to outcomes.
var (
	errAlreadyCheckedIn = errors.New("already checked in")
	errAtCapacity       = errors.New("at capacity")
)

// Store is the persistence surface the orchestrator needs. Implemented
// by *database.DB.
type Store interface {
	GetPerson(ctx context.Context, id int64) (*models.Person, error)
	GetLocation(ctx context.Context, id int64) (*models.Location, error)
	GetSchedule(ctx context.Context, id int64) (*models.Schedule, error)
	GetOrCreateOccurrence(ctx context.Context, locationID, scheduleID int64, date time.Time) (*models.Occurrence, error)
	HasOpenAttendance(ctx context.Context, personID, occurrenceID int64) (bool, error)
	CountOpenAttendances(ctx context.Context, locationID int64, date time.Time) (int, error)
	InsertAttendance(ctx context.Context, personID, occurrenceID int64, startedAt time.Time) (int64, error)
	AttachSecurityCode(ctx context.Context, attendanceID, codeID int64) error
	CloseAttendance(ctx context.Context, attendanceID int64, endedAt time.Time) (bool, error)
	GetAttendance(ctx context.Context, id int64) (*models.Attendance, error)
	ListOccupants(ctx context.Context, locationID int64, date time.Time) ([]models.Occupant, error)
	ListPersonHistory(ctx context.Context, personID int64, since time.Time) ([]models.HistoryEntry, error)
}

// Guard serializes the capacity-check-then-insert critical section per
// location.
type Guard interface {
	ExecuteWithLocationLock(ctx context.Context, locationID int64, fn func(context.Context) error) error
}

// CodeIssuer mints day-unique security codes.
type CodeIssuer interface {
	Issue(ctx context.Context) (*models.SecurityCode, error)
}

// EventSink receives attendance lifecycle events. Satisfied by
// *events.Bus; nil disables publishing.
type EventSink interface {
	CheckedIn(evt events.CheckedInEvent)
	CheckedOut(evt events.CheckedOutEvent)
	CodeIssued(evt events.CodeIssuedEvent)
}

// Config tunes the orchestrator.
type Config struct {
	// CapacityWarnPercent marks results near-capacity once occupancy
	// reaches this share of the room limit. Zero disables the warning.
	CapacityWarnPercent int

	// AutoSecurityCode issues a code on every check-in, even when the
	// request did not ask for one.
	AutoSecurityCode bool
}

// Service orchestrates check-in and check-out.
type Service struct {
	store  Store
	guard  Guard
	issuer CodeIssuer
	clk    clock.Clock
	cfg    Config
	sink   EventSink
}

// New creates the orchestrator. sink may be nil.
func New(store Store, guard Guard, issuer CodeIssuer, clk clock.Clock, cfg Config, sink EventSink) *Service {
	return &Service{store: store, guard: guard, issuer: issuer, clk: clk, cfg: cfg, sink: sink}
}

// CheckIn admits one person. Business denials come back as a
// CheckInResult with a non-success outcome; errors are faults.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	start := s.clk.Now()
	result, err := s.checkIn(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.ObserveCheckin(string(result.Outcome), s.clk.Now().Sub(start))
	return result, nil
}

func (s *Service) checkIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	if req.PersonID <= 0 || req.LocationID <= 0 || req.ScheduleID <= 0 {
		return nil, fmt.Errorf("%w: person, location and schedule ids must be positive", ErrInvalidRequest)
	}
	if req.OverrideCapacity && req.SupervisorPersonID == nil {
		return nil, ErrSupervisorRequired
	}

	person, err := s.store.GetPerson(ctx, req.PersonID)
	if errors.Is(err, database.ErrNotFound) {
		return denied(OutcomeInvalidPerson, "Person not found."), nil
	}
	if err != nil {
		return nil, err
	}
	if person.IsDeceased {
		return denied(OutcomePersonDeceased, fmt.Sprintf("%s is marked deceased and cannot be checked in.", person.FullName())), nil
	}
	if !person.IsActive {
		return denied(OutcomeInvalidPerson, fmt.Sprintf("%s is inactive and cannot be checked in.", person.FullName())), nil
	}

	location, err := s.store.GetLocation(ctx, req.LocationID)
	if errors.Is(err, database.ErrNotFound) {
		return denied(OutcomeInvalidLocationOrSchedule, "Location not found."), nil
	}
	if err != nil {
		return nil, err
	}
	if !location.IsActive {
		return denied(OutcomeLocationInactive, fmt.Sprintf("%s is not currently open.", location.Name)), nil
	}

	schedule, err := s.store.GetSchedule(ctx, req.ScheduleID)
	if errors.Is(err, database.ErrNotFound) {
		return denied(OutcomeInvalidLocationOrSchedule, "Schedule not found."), nil
	}
	if err != nil {
		return nil, err
	}
	if !schedule.IsActive {
		return denied(OutcomeInvalidLocationOrSchedule, fmt.Sprintf("Schedule %s is not active.", schedule.Name)), nil
	}

	today := clock.Today(s.clk)
	occ, err := s.store.GetOrCreateOccurrence(ctx, location.ID, schedule.ID, today)
	if err != nil {
		return nil, err
	}

	// The guarded section: recompute occupancy from open rows, compare,
	// insert. The duplicate check is inside the lock too so a person
	// double-tapping the kiosk cannot race past it.
	var (
		attendanceID int64
		occupancy    int
	)
	err = s.guard.ExecuteWithLocationLock(ctx, location.ID, func(ctx context.Context) error {
		open, err := s.store.HasOpenAttendance(ctx, person.ID, occ.ID)
		if err != nil {
			return err
		}
		if open {
			return errAlreadyCheckedIn
		}

		count, err := s.store.CountOpenAttendances(ctx, location.ID, today)
		if err != nil {
			return err
		}
		if location.Capacity != nil && count >= *location.Capacity && !req.OverrideCapacity {
			occupancy = count
			return errAtCapacity
		}

		id, err := s.store.InsertAttendance(ctx, person.ID, occ.ID, s.clk.Now())
		if err != nil {
			return err
		}
		attendanceID = id
		occupancy = count + 1
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyCheckedIn):
		return denied(OutcomeAlreadyCheckedIn, fmt.Sprintf("%s is already checked in here.", person.FullName())), nil
	case errors.Is(err, errAtCapacity):
		res := denied(OutcomeAtCapacity, fmt.Sprintf("%s is at capacity (%d).", location.Name, *location.Capacity))
		res.Occupancy = occupancy
		res.Capacity = location.Capacity
		return res, nil
	case err != nil:
		return nil, err
	}

	result := &CheckInResult{
		Outcome:      OutcomeSuccess,
		Message:      fmt.Sprintf("%s checked in to %s.", person.FullName(), location.Name),
		AttendanceID: attendanceID,
		PersonName:   person.FullName(),
		LocationName: location.Name,
		Occupancy:    occupancy,
		Capacity:     location.Capacity,
		NearCapacity: s.nearCapacity(occupancy, location.Capacity),
	}

	if req.GenerateSecurityCode || s.cfg.AutoSecurityCode {
		// The capacity slot is already committed and reflects physical
		// presence; an issuer fault surfaces as an error but never rolls
		// the attendance back.
		code, err := s.issuer.Issue(ctx)
		if err != nil {
			return nil, fmt.Errorf("attendance %d committed, code issue failed: %w", attendanceID, err)
		}
		if err := s.store.AttachSecurityCode(ctx, attendanceID, code.ID); err != nil {
			return nil, fmt.Errorf("attendance %d committed, code attach failed: %w", attendanceID, err)
		}
		result.SecurityCode = code.Code
		if s.sink != nil {
			s.sink.CodeIssued(events.CodeIssuedEvent{
				AttendanceID: attendanceID,
				IssueDate:    code.IssueDate,
				At:           s.clk.Now(),
			})
		}
	}

	metrics.Occupancy.WithLabelValues(strconv.FormatInt(location.ID, 10)).Set(float64(occupancy))

	if req.OverrideCapacity && location.Capacity != nil && occupancy > *location.Capacity {
		logging.Warn().
			Int64("attendance_id", attendanceID).
			Int64("location_id", location.ID).
			Int64("supervisor_id", *req.SupervisorPersonID).
			Int("occupancy", occupancy).
			Int("capacity", *location.Capacity).
			Msg("Capacity override check-in")
	}

	if s.sink != nil {
		s.sink.CheckedIn(events.CheckedInEvent{
			AttendanceID: attendanceID,
			PersonID:     person.ID,
			PersonName:   person.FullName(),
			LocationID:   location.ID,
			LocationName: location.Name,
			Occupancy:    occupancy,
			Capacity:     location.Capacity,
			NearCapacity: result.NearCapacity,
			At:           s.clk.Now(),
		})
	}

	return result, nil
}

// CheckInBatch processes each request independently: one item's denial
// or fault never aborts its siblings. Faults are folded into the item's
// result so the aggregate always covers every request.
func (s *Service) CheckInBatch(ctx context.Context, reqs []CheckInRequest) (*BatchResult, error) {
	batch := &BatchResult{Results: make([]CheckInResult, 0, len(reqs))}

	for i, req := range reqs {
		res, err := s.CheckIn(ctx, req)
		if err != nil {
			logging.Warn().Err(err).Int("item", i).Msg("Batch check-in item fault")
			switch {
			case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrSupervisorRequired):
				res = denied(OutcomeInvalidPerson, err.Error())
			default:
				res = denied(OutcomeError, "Request could not be processed.")
			}
		}
		batch.Results = append(batch.Results, *res)
		if res.OK() {
			batch.SuccessCount++
		} else {
			batch.FailureCount++
		}
	}

	batch.AllSucceeded = batch.FailureCount == 0 && len(reqs) > 0
	return batch, nil
}

// CheckOut closes an attendance. Returns false when the row does not
// exist or is already closed; redundant calls are expected and benign.
func (s *Service) CheckOut(ctx context.Context, attendanceID int64) (bool, error) {
	if attendanceID <= 0 {
		return false, fmt.Errorf("%w: attendance id must be positive", ErrInvalidRequest)
	}

	closed, err := s.store.CloseAttendance(ctx, attendanceID, s.clk.Now())
	if err != nil || !closed {
		return false, err
	}

	metrics.CheckoutsTotal.Inc()

	if s.sink != nil {
		evt := events.CheckedOutEvent{AttendanceID: attendanceID, At: s.clk.Now()}
		if att, err := s.store.GetAttendance(ctx, attendanceID); err == nil {
			evt.PersonID = att.PersonID
		}
		s.sink.CheckedOut(evt)
	}
	return true, nil
}

// CurrentOccupants lists today's open attendances at a location. Pure
// read: takes no lock, eventual consistency with in-flight check-ins is
// acceptable for roster display.
func (s *Service) CurrentOccupants(ctx context.Context, locationID int64) ([]models.Occupant, error) {
	if locationID <= 0 {
		return nil, fmt.Errorf("%w: location id must be positive", ErrInvalidRequest)
	}
	return s.store.ListOccupants(ctx, locationID, clock.Today(s.clk))
}

// PersonHistory lists past attendances, most recent first. windowDays
// zero means "no window" and returns an empty list, not all time.
func (s *Service) PersonHistory(ctx context.Context, personID int64, windowDays int) ([]models.HistoryEntry, error) {
	if personID <= 0 {
		return nil, fmt.Errorf("%w: person id must be positive", ErrInvalidRequest)
	}
	if windowDays <= 0 {
		return []models.HistoryEntry{}, nil
	}
	since := clock.Today(s.clk).AddDate(0, 0, -windowDays)
	return s.store.ListPersonHistory(ctx, personID, since)
}

// nearCapacity reports whether occupancy has crossed the warning
// threshold for a limited room.
func (s *Service) nearCapacity(occupancy int, capacity *int) bool {
	if capacity == nil || *capacity <= 0 || s.cfg.CapacityWarnPercent <= 0 {
		return false
	}
	return occupancy*100 >= s.cfg.CapacityWarnPercent*(*capacity)
}

func denied(outcome Outcome, message string) *CheckInResult {
	return &CheckInResult{Outcome: outcome, Message: message}
}
