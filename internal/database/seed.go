// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package database

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/models"
)

// SeedDemoData populates an empty database with a small demo site:
// rooms, schedules, three families, and staff logins. Intended for demo
// and kiosk-bringup environments only; it refuses to run when persons
// already exist.
func (d *DB) SeedDemoData(ctx context.Context) error {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM persons`).Scan(&count); err != nil {
		return fmt.Errorf("seed precheck: %w", err)
	}
	if count > 0 {
		logging.Info().Int("persons", count).Msg("Database already populated, skipping demo seed")
		return nil
	}

	logging.Info().Msg("Seeding demo data")

	cap12, cap20 := 12, 20
	rooms := []models.Location{
		{Name: "Nursery", IsActive: true, Capacity: &cap12},
		{Name: "Preschool Room", IsActive: true, Capacity: &cap20},
		{Name: "Elementary Hall", IsActive: true},
	}
	for i, room := range rooms {
		created, err := d.CreateLocation(ctx, room)
		if err != nil {
			return fmt.Errorf("seed location %q: %w", room.Name, err)
		}
		rooms[i] = *created
	}

	schedules := []models.Schedule{
		{Name: "Morning Session", IsActive: true},
		{Name: "Afternoon Session", IsActive: true},
	}
	for i, sched := range schedules {
		created, err := d.CreateSchedule(ctx, sched)
		if err != nil {
			return fmt.Errorf("seed schedule %q: %w", sched.Name, err)
		}
		schedules[i] = *created
	}

	// Three families: two parents and one or more children each.
	families := []struct {
		last     string
		adults   []string
		children []string
	}{
		{"Alvarez", []string{"Maria", "Diego"}, []string{"Sofia", "Mateo"}},
		{"Chen", []string{"Wei", "Lin"}, []string{"Amy"}},
		{"Okafor", []string{"Ngozi", "Emeka"}, []string{"Chidi", "Ada", "Obi"}},
	}
	childBirth := time.Date(2020, time.April, 9, 0, 0, 0, 0, time.UTC)

	for fi, fam := range families {
		groupID := int64(fi + 1)
		for _, first := range fam.adults {
			if _, err := d.CreatePerson(ctx, models.Person{
				FirstName:     first,
				LastName:      fam.last,
				IsActive:      true,
				IsAdult:       true,
				FamilyGroupID: &groupID,
			}); err != nil {
				return fmt.Errorf("seed adult %s %s: %w", first, fam.last, err)
			}
		}
		for _, first := range fam.children {
			birth := childBirth
			if _, err := d.CreatePerson(ctx, models.Person{
				FirstName:     first,
				LastName:      fam.last,
				BirthDate:     &birth,
				IsActive:      true,
				FamilyGroupID: &groupID,
			}); err != nil {
				return fmt.Errorf("seed child %s %s: %w", first, fam.last, err)
			}
		}
	}

	// Staff logins. Demo PINs only; real deployments provision their own.
	staff := []struct {
		first, last string
		username    string
		pin         string
		role        string
	}{
		{"Janet", "Mills", "jmills", "204059", models.RoleSupervisor},
		{"Omar", "Reyes", "oreyes", "731428", models.RoleStaff},
	}
	for _, s := range staff {
		person, err := d.CreatePerson(ctx, models.Person{
			FirstName: s.first,
			LastName:  s.last,
			IsActive:  true,
			IsAdult:   true,
		})
		if err != nil {
			return fmt.Errorf("seed staff person %s: %w", s.username, err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s.pin), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("seed staff pin %s: %w", s.username, err)
		}
		if _, err := d.CreateStaffCredential(ctx, models.StaffCredential{
			PersonID: person.ID,
			Username: s.username,
			PINHash:  string(hash),
			Role:     s.role,
		}); err != nil {
			return fmt.Errorf("seed staff credential %s: %w", s.username, err)
		}
	}

	logging.Info().
		Int("locations", len(rooms)).
		Int("schedules", len(schedules)).
		Int("families", len(families)).
		Int("staff", len(staff)).
		Msg("Demo data seeded")
	return nil
}
