// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mayak870/gatehouse/internal/auth"
	"github.com/mayak870/gatehouse/internal/config"
	"github.com/mayak870/gatehouse/internal/models"
)

// NewRouter wires the full route table. Role boundaries:
//
//   - kiosk surfaces (check-in, checkout, pickup, offline sync) admit
//     kiosk and staff tokens
//   - rosters, history, authorization lists, and reports are staff-only
//   - the audit view, code reprints, and kiosk provisioning are
//     supervisor-only
//
// A supervisor token passes every boundary.
func NewRouter(cfg *config.Config, h *Handler, authmw *auth.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(AccessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Kiosk-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Metrics)
		if cfg.Server.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.Server.RequestsPerMinute, time.Minute))
		}

		r.Route("/auth", func(r chi.Router) {
			// Tight transport limit on login; the auth service applies
			// its own per-IP attempt limit behind it.
			r.With(httprate.LimitByIP(15, time.Minute)).Post("/login", h.HandleLogin)

			r.Group(func(r chi.Router) {
				r.Use(authmw.Authenticate)
				r.Use(authmw.RequireRole(models.RoleSupervisor))
				r.Post("/kiosk-tokens", h.HandleProvisionKiosk)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.Authenticate)
			r.Use(authmw.RequireRole(models.RoleKiosk, models.RoleStaff))

			r.Post("/checkins", h.HandleCheckIn)
			r.Post("/checkins/batch", h.HandleCheckInBatch)
			r.Post("/attendances/{attendanceKey}/checkout", h.HandleCheckOut)
			r.Post("/pickups/verify", h.HandleVerifyPickup)
			r.Post("/pickups", h.HandleRecordPickup)
			r.Post("/offline/sync", h.HandleOfflineSync)
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.Authenticate)
			r.Use(authmw.RequireRole(models.RoleStaff))

			r.Get("/locations/{locationKey}/occupants", h.HandleListOccupants)
			r.Get("/persons/{personKey}/history", h.HandlePersonHistory)
			r.Get("/persons/{personKey}/authorizations", h.HandleListAuthorizations)
			r.Post("/persons/{personKey}/authorizations", h.HandleCreateAuthorization)
			r.Post("/persons/{personKey}/authorizations/auto-populate", h.HandleAutoPopulateAuthorizations)
			r.Get("/persons/{personKey}/pickups", h.HandleListPickupLogs)
			r.Delete("/authorizations/{authorizationKey}", h.HandleDeactivateAuthorization)

			r.Get("/reports/summary", h.HandleAttendanceSummary)
			r.Get("/reports/trend", h.HandleAttendanceTrend)
			r.Get("/reports/locations", h.HandleAttendanceByLocation)
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.Authenticate)
			r.Use(authmw.RequireRole(models.RoleSupervisor))

			r.Get("/audit/events", h.HandleQueryAuditEvents)
			r.Post("/attendances/{attendanceKey}/code/reprint", h.HandleReprintCode)
		})
	})

	return r
}
