// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/auth"
	"github.com/mayak870/gatehouse/internal/database"
	"github.com/mayak870/gatehouse/internal/idkey"
	"github.com/mayak870/gatehouse/internal/offline"
	"github.com/mayak870/gatehouse/internal/securitycode"
)

type reprintResponse struct {
	AttendanceKey string `json:"attendance_key"`
	SecurityCode  string `json:"security_code"`
}

type auditEventsResponse struct {
	Events []audit.Event `json:"events"`
	Total  int64         `json:"total"`
}

type offlineSyncItemResult struct {
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
}

type offlineSyncResponse struct {
	Results   []offlineSyncItemResult `json:"results"`
	Queued    int                     `json:"queued"`
	Duplicate int                     `json:"duplicate"`
}

// HandleReprintCode re-renders the security code of an open attendance
// for a lost label. Supervisor only; the original code stays valid and
// no new code is minted.
func (h *Handler) HandleReprintCode(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	attendanceID, ok := h.decodeParamKey(rw, r, idkey.KindAttendance, "attendanceKey", "attendance")
	if !ok {
		return
	}
	supID, ok := supervisorID(r)
	if !ok {
		rw.Forbidden("A supervisor session is required")
		return
	}

	code, err := h.reprinter.Reprint(r.Context(), attendanceID, supID, audit.SourceFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			rw.NotFound("Attendance not found")
		case errors.Is(err, securitycode.ErrAttendanceClosed):
			rw.Conflict("The attendance is already closed")
		case errors.Is(err, securitycode.ErrNoCodeAttached):
			rw.Conflict("This attendance has no security code")
		default:
			rw.DatabaseError(err)
		}
		return
	}

	rw.Success(reprintResponse{
		AttendanceKey: h.keys.Encode(idkey.KindAttendance, attendanceID),
		SecurityCode:  code,
	})
}

// HandleQueryAuditEvents serves the supervisor audit view, newest
// first.
func (h *Handler) HandleQueryAuditEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.auditor == nil {
		rw.Success(auditEventsResponse{Events: []audit.Event{}})
		return
	}

	filter, ok := auditFilterFromQuery(rw, r)
	if !ok {
		return
	}

	events, err := h.auditor.Query(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	total, err := h.auditor.Count(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	if events == nil {
		events = []audit.Event{}
	}
	rw.Success(auditEventsResponse{Events: events, Total: total})
}

func auditFilterFromQuery(rw *ResponseWriter, r *http.Request) (audit.QueryFilter, bool) {
	filter := audit.DefaultQueryFilter()
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			rw.BadRequest("limit must be an integer between 1 and 1000")
			return filter, false
		}
		filter.Limit = parsed
	}
	if raw := q.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			rw.BadRequest("offset must be a non-negative integer")
			return filter, false
		}
		filter.Offset = parsed
	}
	if raw := q.Get("start"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			rw.BadRequest("start must be an RFC 3339 timestamp or a YYYY-MM-DD date")
			return filter, false
		}
		filter.StartTime = &t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			rw.BadRequest("end must be an RFC 3339 timestamp or a YYYY-MM-DD date")
			return filter, false
		}
		filter.EndTime = &t
	}
	filter.ActorID = q.Get("actor_id")
	filter.ActorType = q.Get("actor_type")
	filter.ChildID = q.Get("child_id")
	filter.SearchText = q.Get("search")
	if raw := q.Get("type"); raw != "" {
		filter.Types = []audit.EventType{audit.EventType(raw)}
	}
	return filter, true
}

func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// HandleOfflineSync accepts check-ins a kiosk captured while
// disconnected. Each item is deduplicated on its idempotency key; the
// replayer applies queued submissions in the background.
func (h *Handler) HandleOfflineSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.offlineQueue == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, "Offline sync is not enabled")
		return
	}

	var body offlineSyncRequest
	if !decodeAndValidate(rw, r, &body) {
		return
	}

	kioskID := r.Header.Get("X-Kiosk-ID")
	if claims := auth.GetClaims(r.Context()); claims != nil && kioskID == "" {
		kioskID = claims.Username
	}

	now := time.Now()
	resp := offlineSyncResponse{Results: make([]offlineSyncItemResult, 0, len(body.Submissions))}
	for _, item := range body.Submissions {
		personID, ok := h.decodeBodyKey(rw, idkey.KindPerson, item.PersonKey, "person")
		if !ok {
			return
		}
		locationID, ok := h.decodeBodyKey(rw, idkey.KindLocation, item.LocationKey, "location")
		if !ok {
			return
		}
		scheduleID, ok := h.decodeBodyKey(rw, idkey.KindSchedule, item.ScheduleKey, "schedule")
		if !ok {
			return
		}

		stored, err := h.offlineQueue.Enqueue(r.Context(), offline.Submission{
			IdempotencyKey: item.IdempotencyKey,
			KioskID:        kioskID,
			PersonID:       personID,
			LocationID:     locationID,
			ScheduleID:     scheduleID,
			CapturedAt:     item.CapturedAt,
			QueuedAt:       now,
		})
		if err != nil {
			rw.InternalError("Offline sync failed")
			return
		}

		status := "queued"
		if stored {
			resp.Queued++
		} else {
			status = "duplicate"
			resp.Duplicate++
		}
		resp.Results = append(resp.Results, offlineSyncItemResult{
			IdempotencyKey: item.IdempotencyKey,
			Status:         status,
		})
	}
	rw.Success(resp)
}
