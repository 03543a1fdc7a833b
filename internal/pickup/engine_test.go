// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package pickup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mayak870/gatehouse/internal/clock"
	"github.com/mayak870/gatehouse/internal/database"
	"github.com/mayak870/gatehouse/internal/models"
)

type fakeStore struct {
	mu          sync.Mutex
	attendances map[int64]*models.Attendance
	codes       map[int64]string
	auths       []models.AuthorizedPickup
	logs        []models.PickupLog
	persons     map[int64]*models.Person
	adults      map[int64][]models.Person
	nextAuthID  int64
	nextLogID   int64

	insertLogErr error
	closeErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attendances: make(map[int64]*models.Attendance),
		codes:       make(map[int64]string),
		persons:     make(map[int64]*models.Person),
		adults:      make(map[int64][]models.Person),
	}
}

func (s *fakeStore) GetAttendance(_ context.Context, id int64) (*models.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	att, ok := s.attendances[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *att
	return &cp, nil
}

func (s *fakeStore) GetAttendanceCode(_ context.Context, attendanceID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[attendanceID], nil
}

func (s *fakeStore) CloseAttendance(_ context.Context, attendanceID int64, endedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return false, s.closeErr
	}
	att, ok := s.attendances[attendanceID]
	if !ok || att.EndedAt != nil {
		return false, nil
	}
	att.EndedAt = &endedAt
	return true, nil
}

func (s *fakeStore) GetActiveAuthorization(_ context.Context, childID, personID int64) (*models.AuthorizedPickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.auths {
		a := s.auths[i]
		if a.IsActive && a.ChildID == childID && a.PersonID != nil && *a.PersonID == personID {
			cp := a
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) GetActiveAuthorizationByName(_ context.Context, childID int64, name string) (*models.AuthorizedPickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.auths {
		a := s.auths[i]
		if a.IsActive && a.ChildID == childID && a.PersonName != nil && strings.EqualFold(*a.PersonName, name) {
			cp := a
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) InsertPickupLog(_ context.Context, pl models.PickupLog) (*models.PickupLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertLogErr != nil {
		return nil, s.insertLogErr
	}
	s.nextLogID++
	pl.ID = s.nextLogID
	s.logs = append(s.logs, pl)
	cp := pl
	return &cp, nil
}

func (s *fakeStore) GetPerson(_ context.Context, id int64) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) ListFamilyAdults(_ context.Context, familyGroupID, excludePersonID int64) ([]models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Person
	for _, p := range s.adults[familyGroupID] {
		if p.ID != excludePersonID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertStandingAuthorization(_ context.Context, childID, personID int64, relationship string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.auths {
		if a.IsActive && a.ChildID == childID && a.PersonID != nil && *a.PersonID == personID {
			return false, nil
		}
	}
	s.nextAuthID++
	pid := personID
	s.auths = append(s.auths, models.AuthorizedPickup{
		ID: s.nextAuthID, ChildID: childID, PersonID: &pid,
		Relationship: relationship, Level: models.LevelAlways,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	return true, nil
}

func (s *fakeStore) addAuth(childID int64, person models.PickupPerson, level models.AuthorizationLevel, relationship string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAuthID++
	a := models.AuthorizedPickup{
		ID: s.nextAuthID, ChildID: childID, Relationship: relationship,
		Level: level, IsActive: true,
	}
	if id, ok := person.PersonID(); ok {
		a.PersonID = &id
	}
	if name, ok := person.Name(); ok {
		a.PersonName = &name
	}
	s.auths = append(s.auths, a)
	return a.ID
}

func newFixture(t *testing.T) (*Engine, *fakeStore, *clock.Fake) {
	t.Helper()
	store := newFakeStore()
	clk := clock.NewFake(time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC))
	return New(store, clk, nil), store, clk
}

// addOpenAttendance seeds child + open attendance + security code.
func addOpenAttendance(s *fakeStore, attID, childID int64, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attendances[attID] = &models.Attendance{
		ID: attID, PersonID: childID, OccurrenceID: 1,
		StartedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
		DidAttend: true,
	}
	s.codes[attID] = code
}

func TestVerifyAlwaysAuthorized(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	parent := models.KnownPerson(200)
	store.addAuth(100, parent, models.LevelAlways, "Parent")

	v, err := eng.Verify(context.Background(), 10, parent, "AB23")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.IsAuthorized {
		t.Error("expected authorized verification")
	}
	if v.RequiresSupervisorOverride {
		t.Error("authorized verification must not request an override")
	}
	if v.AuthorizedPickupID == nil {
		t.Error("expected the matched authorization id")
	}
}

func TestVerifyInvalidCodeDeniesBeforeAuthorization(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	parent := models.KnownPerson(200)
	store.addAuth(100, parent, models.LevelAlways, "Parent")

	tests := []struct {
		name      string
		presented string
	}{
		{"wrong code", "XY89"},
		{"empty code", ""},
		{"whitespace code", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := eng.Verify(context.Background(), 10, parent, tt.presented)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if v.IsAuthorized {
				t.Error("bad code must deny even a fully authorized parent")
			}
			if v.Level != "" {
				t.Error("code failure must not leak the authorization level")
			}
			if v.Message != "Invalid security code." {
				t.Errorf("message = %q", v.Message)
			}
		})
	}
}

func TestVerifyCodeIsCaseInsensitive(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	parent := models.KnownPerson(200)
	store.addAuth(100, parent, models.LevelAlways, "Parent")

	v, err := eng.Verify(context.Background(), 10, parent, "ab23")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.IsAuthorized {
		t.Error("lowercase presentation of the issued code must match")
	}
}

func TestVerifyEmergencyOnlyRequiresOverride(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	grandma := models.NamedPerson("Grandma Ruth")
	store.addAuth(100, grandma, models.LevelEmergencyOnly, "Grandmother")

	v, err := eng.Verify(context.Background(), 10, grandma, "AB23")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.IsAuthorized {
		t.Error("emergency-only must never auto-authorize")
	}
	if !v.RequiresSupervisorOverride {
		t.Error("emergency-only must request a supervisor override")
	}
	if v.Level != models.LevelEmergencyOnly {
		t.Errorf("level = %q", v.Level)
	}
	if !strings.Contains(v.Message, "Emergency-only") {
		t.Errorf("message must flag the emergency-only relationship, got %q", v.Message)
	}
}

func TestVerifyBlockedPerson(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	blocked := models.KnownPerson(300)
	store.addAuth(100, blocked, models.LevelNever, "Estranged relative")

	v, err := eng.Verify(context.Background(), 10, blocked, "AB23")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.IsAuthorized {
		t.Error("a blocked person must never verify as authorized")
	}
	if v.RequiresSupervisorOverride {
		t.Error("a hard block must not offer an override path")
	}
}

func TestVerifyUnknownPersonNeedsOverride(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")

	v, err := eng.Verify(context.Background(), 10, models.NamedPerson("Stranger"), "AB23")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.IsAuthorized {
		t.Error("an unlisted person must not be authorized")
	}
	if !v.RequiresSupervisorOverride {
		t.Error("an unlisted person is an override case, not a silent denial")
	}
}

func TestVerifyFaults(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")

	if _, err := eng.Verify(context.Background(), 99, models.KnownPerson(200), "AB23"); !errors.Is(err, ErrAttendanceNotFound) {
		t.Errorf("unknown attendance: err = %v", err)
	}
	if _, err := eng.Verify(context.Background(), 10, models.PickupPerson{}, "AB23"); !errors.Is(err, ErrEmptyPickupPerson) {
		t.Errorf("empty person: err = %v", err)
	}
}

func TestRecordPickupAuthorized(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	parent := models.KnownPerson(200)
	authID := store.addAuth(100, parent, models.LevelAlways, "Parent")

	pl, err := eng.RecordPickup(context.Background(), RecordPickupRequest{
		AttendanceID:       10,
		Person:             parent,
		WasAuthorized:      true,
		AuthorizedPickupID: &authID,
	})
	if err != nil {
		t.Fatalf("RecordPickup: %v", err)
	}
	if pl.ID == 0 {
		t.Error("expected a persisted log id")
	}
	if pl.PickupPersonID == nil || *pl.PickupPersonID != 200 {
		t.Error("log must carry the pickup person id")
	}
	if store.attendances[10].EndedAt == nil {
		t.Error("recording a pickup must close the open attendance")
	}
	if len(store.logs) != 1 {
		t.Fatalf("logs = %d, want exactly 1", len(store.logs))
	}
}

func TestRecordPickupValidationFaults(t *testing.T) {
	supervisor := int64(500)
	tests := []struct {
		name    string
		req     RecordPickupRequest
		wantErr error
	}{
		{
			name:    "unauthorized without override",
			req:     RecordPickupRequest{AttendanceID: 10, Person: models.NamedPerson("Stranger")},
			wantErr: ErrOverrideRequired,
		},
		{
			name: "override without supervisor",
			req: RecordPickupRequest{
				AttendanceID: 10, Person: models.NamedPerson("Stranger"),
				SupervisorOverride: true,
			},
			wantErr: ErrSupervisorRequired,
		},
		{
			name: "contradictory override",
			req: RecordPickupRequest{
				AttendanceID: 10, Person: models.NamedPerson("Stranger"),
				WasAuthorized: true, SupervisorOverride: true, SupervisorPersonID: &supervisor,
			},
			wantErr: ErrContradictoryOverride,
		},
		{
			name:    "empty person",
			req:     RecordPickupRequest{AttendanceID: 10},
			wantErr: ErrEmptyPickupPerson,
		},
		{
			name:    "unknown attendance",
			req:     RecordPickupRequest{AttendanceID: 99, Person: models.NamedPerson("Stranger"), WasAuthorized: true},
			wantErr: ErrAttendanceNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, store, _ := newFixture(t)
			addOpenAttendance(store, 10, 100, "AB23")

			_, err := eng.RecordPickup(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if len(store.logs) != 0 {
				t.Error("a validation fault must not write a pickup log")
			}
			if store.attendances[10].EndedAt != nil {
				t.Error("a validation fault must not close the attendance")
			}
		})
	}
}

func TestRecordPickupBlockedPersonEvenWithOverride(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	blocked := models.KnownPerson(300)
	store.addAuth(100, blocked, models.LevelNever, "Estranged relative")
	supervisor := int64(500)

	_, err := eng.RecordPickup(context.Background(), RecordPickupRequest{
		AttendanceID:       10,
		Person:             blocked,
		SupervisorOverride: true,
		SupervisorPersonID: &supervisor,
	})
	if !errors.Is(err, ErrBlockedPerson) {
		t.Fatalf("err = %v, want ErrBlockedPerson", err)
	}
	if len(store.logs) != 0 {
		t.Error("a blocked release must never be logged as completed")
	}
}

func TestRecordPickupOverrideAttributesSupervisor(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	supervisor := int64(500)

	pl, err := eng.RecordPickup(context.Background(), RecordPickupRequest{
		AttendanceID:       10,
		Person:             models.NamedPerson("Neighbor Pat"),
		SupervisorOverride: true,
		SupervisorPersonID: &supervisor,
		Notes:              "Parent phoned ahead",
	})
	if err != nil {
		t.Fatalf("RecordPickup: %v", err)
	}
	if !pl.SupervisorOverride {
		t.Error("log must record the override flag")
	}
	if pl.SupervisorPersonID == nil || *pl.SupervisorPersonID != supervisor {
		t.Error("log must attribute the supervisor")
	}
	if pl.PickupPersonName == nil || *pl.PickupPersonName != "Neighbor Pat" {
		t.Error("log must carry the captured name")
	}
	if pl.WasAuthorized {
		t.Error("an override release is by definition not policy-authorized")
	}
}

func TestRecordPickupOnClosedAttendanceStillLogs(t *testing.T) {
	eng, store, clk := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	ended := clk.Now().Add(-time.Hour)
	store.attendances[10].EndedAt = &ended

	parent := models.KnownPerson(200)
	store.addAuth(100, parent, models.LevelAlways, "Parent")

	pl, err := eng.RecordPickup(context.Background(), RecordPickupRequest{
		AttendanceID: 10, Person: parent, WasAuthorized: true,
	})
	if err != nil {
		t.Fatalf("RecordPickup: %v", err)
	}
	if pl.ID == 0 {
		t.Error("expected a persisted log")
	}
	if !store.attendances[10].EndedAt.Equal(ended) {
		t.Error("an already-closed attendance must keep its original end time")
	}
}

func TestRecordPickupLogSurvivesCloseFailure(t *testing.T) {
	eng, store, _ := newFixture(t)
	addOpenAttendance(store, 10, 100, "AB23")
	parent := models.KnownPerson(200)
	store.addAuth(100, parent, models.LevelAlways, "Parent")
	store.closeErr = errors.New("disk full")

	pl, err := eng.RecordPickup(context.Background(), RecordPickupRequest{
		AttendanceID: 10, Person: parent, WasAuthorized: true,
	})
	if err == nil {
		t.Fatal("expected the close failure to surface")
	}
	if pl == nil || pl.ID == 0 {
		t.Fatal("the committed log must be returned alongside the fault")
	}
	if len(store.logs) != 1 {
		t.Error("the log row must stand despite the close failure")
	}
}

func TestAutoPopulateStandingAuthorizations(t *testing.T) {
	eng, store, _ := newFixture(t)
	family := int64(7)
	store.persons[100] = &models.Person{ID: 100, FamilyGroupID: &family}
	store.adults[family] = []models.Person{{ID: 200}, {ID: 201}, {ID: 100}}

	created, err := eng.AutoPopulateStandingAuthorizations(context.Background(), 100)
	if err != nil {
		t.Fatalf("AutoPopulate: %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2 (the child itself is excluded)", created)
	}

	// Seeded authorizations are Always-level parents.
	a, err := store.GetActiveAuthorization(context.Background(), 100, 200)
	if err != nil {
		t.Fatalf("GetActiveAuthorization: %v", err)
	}
	if a.Level != models.LevelAlways || a.Relationship != "Parent" {
		t.Errorf("seeded auth = %q/%q", a.Level, a.Relationship)
	}

	// Idempotent: a second run creates nothing.
	created, err = eng.AutoPopulateStandingAuthorizations(context.Background(), 100)
	if err != nil {
		t.Fatalf("AutoPopulate rerun: %v", err)
	}
	if created != 0 {
		t.Errorf("rerun created = %d, want 0", created)
	}
}

func TestAutoPopulateWithoutFamilyGroup(t *testing.T) {
	eng, store, _ := newFixture(t)
	store.persons[100] = &models.Person{ID: 100}

	created, err := eng.AutoPopulateStandingAuthorizations(context.Background(), 100)
	if err != nil {
		t.Fatalf("AutoPopulate: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0 for a child with no family group", created)
	}
}
