// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/auth"
	"github.com/mayak870/gatehouse/internal/checkin"
	"github.com/mayak870/gatehouse/internal/idkey"
	"github.com/mayak870/gatehouse/internal/models"
	"github.com/mayak870/gatehouse/internal/offline"
	"github.com/mayak870/gatehouse/internal/pickup"
	"github.com/mayak870/gatehouse/internal/ratelimit"
	"github.com/mayak870/gatehouse/internal/websocket"
)

// CheckinService is the attendance orchestrator surface the handlers
// need. Implemented by *checkin.Service.
type CheckinService interface {
	CheckIn(ctx context.Context, req checkin.CheckInRequest) (*checkin.CheckInResult, error)
	CheckInBatch(ctx context.Context, reqs []checkin.CheckInRequest) (*checkin.BatchResult, error)
	CheckOut(ctx context.Context, attendanceID int64) (bool, error)
	CurrentOccupants(ctx context.Context, locationID int64) ([]models.Occupant, error)
	PersonHistory(ctx context.Context, personID int64, windowDays int) ([]models.HistoryEntry, error)
}

// PickupService is the release-decision surface. Implemented by
// *pickup.Engine.
type PickupService interface {
	Verify(ctx context.Context, attendanceID int64, person models.PickupPerson, presentedCode string) (*pickup.Verification, error)
	RecordPickup(ctx context.Context, req pickup.RecordPickupRequest) (*models.PickupLog, error)
	AutoPopulateStandingAuthorizations(ctx context.Context, childID int64) (int, error)
}

// AuthService authenticates staff logins. Implemented by *auth.Service.
type AuthService interface {
	Login(ctx context.Context, username, pin string, source audit.Source) (*auth.LoginResult, error)
}

// KioskTokenIssuer provisions long-lived kiosk tokens. Implemented by
// *auth.JWTManager.
type KioskTokenIssuer interface {
	GenerateKioskToken(kioskID string) (string, error)
	KioskTokenTTL() time.Duration
}

// AuthorizationStore is the pickup-authorization persistence surface.
// Implemented by *database.DB.
type AuthorizationStore interface {
	ListActiveAuthorizations(ctx context.Context, childID int64) ([]models.AuthorizedPickup, error)
	SaveAuthorization(ctx context.Context, ap models.AuthorizedPickup, now time.Time) (*models.AuthorizedPickup, error)
	DeactivateAuthorization(ctx context.Context, id int64, now time.Time) (bool, error)
	ListPickupLogsForChild(ctx context.Context, childID int64, limit int) ([]models.PickupLog, error)
}

// AnalyticsStore serves the reporting queries. Implemented by
// *database.DB.
type AnalyticsStore interface {
	AttendanceSummary(ctx context.Context, from, to time.Time) (*models.AttendanceSummary, error)
	AttendanceTrend(ctx context.Context, from, to time.Time) ([]models.AttendanceTrendPoint, error)
	AttendanceByLocation(ctx context.Context, from, to time.Time) ([]models.LocationAttendance, error)
}

// AuditSink records custody events and serves the audit query API.
// Implemented by *audit.Logger; nil disables auditing and the query
// endpoints return empty results.
type AuditSink interface {
	LogCheckin(ctx context.Context, actor audit.Actor, source audit.Source, child audit.Subject, outcome string, attendanceID int64)
	LogCapacityOverride(ctx context.Context, actor audit.Actor, source audit.Source, child audit.Subject, locationID, supervisorID int64)
	LogCheckout(ctx context.Context, actor audit.Actor, source audit.Source, child audit.Subject, attendanceID int64)
	LogPickupRecorded(ctx context.Context, actor audit.Actor, source audit.Source, child audit.Subject, pickupLogID int64, override bool)
	LogPickupDenied(ctx context.Context, actor audit.Actor, source audit.Source, child audit.Subject, reason string)
	LogPickupRateLimited(ctx context.Context, actor audit.Actor, source audit.Source, attendanceID int64)
	LogAuthListChange(ctx context.Context, actor audit.Actor, source audit.Source, child audit.Subject, action, detail string)
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

// CodeReprinter re-renders the security code of an open attendance.
// Implemented by *securitycode.Reprinter.
type CodeReprinter interface {
	Reprint(ctx context.Context, attendanceID, supervisorPersonID int64, source audit.Source) (string, error)
}

// OfflineQueue accepts kiosk submissions captured while disconnected.
// Implemented by *offline.Queue.
type OfflineQueue interface {
	Enqueue(ctx context.Context, sub offline.Submission) (bool, error)
	Len() (int, error)
}

// HealthChecker reports storage reachability for the readiness probe.
// Implemented by *database.DB.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler holds every dependency the HTTP surface needs.
type Handler struct {
	checkins       CheckinService
	pickups        PickupService
	authn          AuthService
	kioskTokens    KioskTokenIssuer
	authorizations AuthorizationStore
	analytics      AnalyticsStore
	auditor        AuditSink
	reprinter      CodeReprinter
	offlineQueue   OfflineQueue
	health         HealthChecker
	limiter        *ratelimit.Limiter
	keys           *idkey.Codec
	hub            *websocket.Hub
	corsOrigins    []string
}

// Deps wires a Handler. Optional surfaces (auditor, hub, offlineQueue)
// may be nil; the matching endpoints degrade rather than panic.
type Deps struct {
	Checkins       CheckinService
	Pickups        PickupService
	Auth           AuthService
	KioskTokens    KioskTokenIssuer
	Authorizations AuthorizationStore
	Analytics      AnalyticsStore
	Auditor        AuditSink
	Reprinter      CodeReprinter
	OfflineQueue   OfflineQueue
	Health         HealthChecker
	Limiter        *ratelimit.Limiter
	Keys           *idkey.Codec
	Hub            *websocket.Hub

	// CORSOrigins also gates websocket upgrades; "*" allows any origin.
	CORSOrigins []string
}

// NewHandler builds the HTTP handler set.
func NewHandler(d Deps) *Handler {
	return &Handler{
		checkins:       d.Checkins,
		pickups:        d.Pickups,
		authn:          d.Auth,
		kioskTokens:    d.KioskTokens,
		authorizations: d.Authorizations,
		analytics:      d.Analytics,
		auditor:        d.Auditor,
		reprinter:      d.Reprinter,
		offlineQueue:   d.OfflineQueue,
		health:         d.Health,
		limiter:        d.Limiter,
		keys:           d.Keys,
		hub:            d.Hub,
		corsOrigins:    d.CORSOrigins,
	}
}

// actorFromRequest derives the audit actor from the authenticated
// claims. Unauthenticated requests (health probes, tests) attribute to
// the system actor.
func actorFromRequest(r *http.Request) audit.Actor {
	claims := auth.GetClaims(r.Context())
	if claims == nil {
		return audit.SystemActor()
	}
	if claims.Role == models.RoleKiosk {
		return audit.KioskActor(claims.Username)
	}
	return audit.StaffActor(claims.PersonID, claims.Username, claims.Role)
}

// supervisorID returns the acting supervisor's person id from claims,
// or false when the caller is not an authenticated supervisor.
func supervisorID(r *http.Request) (int64, bool) {
	claims := auth.GetClaims(r.Context())
	if claims == nil || claims.Role != models.RoleSupervisor {
		return 0, false
	}
	return claims.PersonID, true
}
