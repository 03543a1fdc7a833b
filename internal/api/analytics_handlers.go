// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"net/http"
	"time"

	"github.com/mayak870/gatehouse/internal/idkey"
	"github.com/mayak870/gatehouse/internal/models"
)

type locationAttendanceResponse struct {
	LocationKey  string `json:"location_key"`
	LocationName string `json:"location_name"`
	Checkins     int    `json:"checkins"`
}

// reportRange parses the from/to query parameters, defaulting to the
// last 30 days. Dates are accepted as RFC 3339 or YYYY-MM-DD.
func reportRange(rw *ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	q := r.URL.Query()
	to = time.Now()
	from = to.AddDate(0, 0, -30)

	if raw := q.Get("from"); raw != "" {
		parsed, err := parseTimeParam(raw)
		if err != nil {
			rw.BadRequest("from must be an RFC 3339 timestamp or a YYYY-MM-DD date")
			return from, to, false
		}
		from = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := parseTimeParam(raw)
		if err != nil {
			rw.BadRequest("to must be an RFC 3339 timestamp or a YYYY-MM-DD date")
			return from, to, false
		}
		to = parsed
	}
	if !from.Before(to) {
		rw.BadRequest("from must be earlier than to")
		return from, to, false
	}
	return from, to, true
}

// HandleAttendanceSummary aggregates check-in activity over a range.
func (h *Handler) HandleAttendanceSummary(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	from, to, ok := reportRange(rw, r)
	if !ok {
		return
	}

	summary, err := h.analytics.AttendanceSummary(r.Context(), from, to)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(summary)
}

// HandleAttendanceTrend returns the per-day check-in series.
func (h *Handler) HandleAttendanceTrend(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	from, to, ok := reportRange(rw, r)
	if !ok {
		return
	}

	trend, err := h.analytics.AttendanceTrend(r.Context(), from, to)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if trend == nil {
		trend = []models.AttendanceTrendPoint{}
	}
	rw.Success(trend)
}

// HandleAttendanceByLocation returns the per-room breakdown.
func (h *Handler) HandleAttendanceByLocation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	from, to, ok := reportRange(rw, r)
	if !ok {
		return
	}

	rows, err := h.analytics.AttendanceByLocation(r.Context(), from, to)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	out := make([]locationAttendanceResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, locationAttendanceResponse{
			LocationKey:  h.keys.Encode(idkey.KindLocation, row.LocationID),
			LocationName: row.LocationName,
			Checkins:     row.Checkins,
		})
	}
	rw.Success(out)
}
