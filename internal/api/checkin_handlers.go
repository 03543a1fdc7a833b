// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/checkin"
	"github.com/mayak870/gatehouse/internal/idkey"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/websocket"
)

// checkInResultResponse is one check-in attempt on the wire. Only the
// outcome and message are always present; the rest fills in on success.
type checkInResultResponse struct {
	Outcome string `json:"outcome"`
	Message string `json:"message"`

	AttendanceKey string `json:"attendance_key,omitempty"`
	SecurityCode  string `json:"security_code,omitempty"`

	PersonName   string `json:"person_name,omitempty"`
	LocationName string `json:"location_name,omitempty"`

	Occupancy    int  `json:"occupancy,omitempty"`
	Capacity     *int `json:"capacity,omitempty"`
	NearCapacity bool `json:"near_capacity,omitempty"`
}

type batchCheckInResponse struct {
	Results      []checkInResultResponse `json:"results"`
	SuccessCount int                     `json:"success_count"`
	FailureCount int                     `json:"failure_count"`
	AllSucceeded bool                    `json:"all_succeeded"`
}

type checkOutResponse struct {
	AttendanceKey string `json:"attendance_key"`
	CheckedOut    bool   `json:"checked_out"`
}

type occupantResponse struct {
	AttendanceKey string    `json:"attendance_key"`
	PersonKey     string    `json:"person_key"`
	PersonName    string    `json:"person_name"`
	CheckedInAt   time.Time `json:"checked_in_at"`
	SecurityCode  string    `json:"security_code,omitempty"`
}

type historyEntryResponse struct {
	AttendanceKey string     `json:"attendance_key"`
	LocationName  string     `json:"location_name"`
	ScheduleName  string     `json:"schedule_name"`
	Date          time.Time  `json:"date"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	DidAttend     bool       `json:"did_attend"`
}

// decodeBodyKey decodes an opaque entity key from a request body. On a
// malformed key it writes a 400 and returns false.
func (h *Handler) decodeBodyKey(rw *ResponseWriter, kind idkey.Kind, key, label string) (int64, bool) {
	id, err := h.keys.Decode(kind, key)
	if err != nil {
		rw.BadRequest(fmt.Sprintf("Invalid %s key", label))
		return 0, false
	}
	return id, true
}

// decodeParamKey decodes an opaque entity key from a URL path segment.
func (h *Handler) decodeParamKey(rw *ResponseWriter, r *http.Request, kind idkey.Kind, param, label string) (int64, bool) {
	return h.decodeBodyKey(rw, kind, chi.URLParam(r, param), label)
}

// toCheckInRequest resolves a wire item's keys into a domain request.
func (h *Handler) toCheckInRequest(rw *ResponseWriter, item checkInItem) (checkin.CheckInRequest, bool) {
	var req checkin.CheckInRequest

	personID, ok := h.decodeBodyKey(rw, idkey.KindPerson, item.PersonKey, "person")
	if !ok {
		return req, false
	}
	locationID, ok := h.decodeBodyKey(rw, idkey.KindLocation, item.LocationKey, "location")
	if !ok {
		return req, false
	}
	scheduleID, ok := h.decodeBodyKey(rw, idkey.KindSchedule, item.ScheduleKey, "schedule")
	if !ok {
		return req, false
	}

	req = checkin.CheckInRequest{
		PersonID:             personID,
		LocationID:           locationID,
		ScheduleID:           scheduleID,
		GenerateSecurityCode: item.GenerateSecurityCode,
		OverrideCapacity:     item.OverrideCapacity,
	}

	if item.OverrideCapacity {
		if item.SupervisorKey == "" {
			rw.BadRequest("A supervisor key is required for a capacity override")
			return req, false
		}
		supervisorPersonID, ok := h.decodeBodyKey(rw, idkey.KindPerson, item.SupervisorKey, "supervisor")
		if !ok {
			return req, false
		}
		req.SupervisorPersonID = &supervisorPersonID
	}
	return req, true
}

func (h *Handler) checkInResultDTO(res checkin.CheckInResult) checkInResultResponse {
	dto := checkInResultResponse{
		Outcome:      string(res.Outcome),
		Message:      res.Message,
		SecurityCode: res.SecurityCode,
		PersonName:   res.PersonName,
		LocationName: res.LocationName,
		Occupancy:    res.Occupancy,
		Capacity:     res.Capacity,
		NearCapacity: res.NearCapacity,
	}
	if res.AttendanceID != 0 {
		dto.AttendanceKey = h.keys.Encode(idkey.KindAttendance, res.AttendanceID)
	}
	return dto
}

// HandleCheckIn admits one person. A business denial is a 200 carrying
// the denial outcome; 201 is reserved for an actual admission.
func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var item checkInItem
	if !decodeAndValidate(rw, r, &item) {
		return
	}
	req, ok := h.toCheckInRequest(rw, item)
	if !ok {
		return
	}

	result, err := h.checkins.CheckIn(r.Context(), req)
	if err != nil {
		if errors.Is(err, checkin.ErrSupervisorRequired) || errors.Is(err, checkin.ErrInvalidRequest) {
			rw.BadRequest(err.Error())
			return
		}
		logging.Err(err).Int64("person_id", req.PersonID).Msg("Check-in failed")
		rw.InternalError("Check-in failed")
		return
	}

	h.auditCheckIn(r, req, result)
	h.broadcastOccupancy(req.LocationID, result)

	if result.OK() {
		rw.Created(h.checkInResultDTO(*result))
		return
	}
	rw.Success(h.checkInResultDTO(*result))
}

// HandleCheckInBatch admits a family group in one request. Items are
// independent; one denial never blocks a sibling.
func (h *Handler) HandleCheckInBatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body batchCheckInRequest
	if !decodeAndValidate(rw, r, &body) {
		return
	}

	reqs := make([]checkin.CheckInRequest, 0, len(body.Items))
	for _, item := range body.Items {
		req, ok := h.toCheckInRequest(rw, item)
		if !ok {
			return
		}
		reqs = append(reqs, req)
	}

	batch, err := h.checkins.CheckInBatch(r.Context(), reqs)
	if err != nil {
		logging.Err(err).Int("items", len(reqs)).Msg("Batch check-in failed")
		rw.InternalError("Batch check-in failed")
		return
	}

	resp := batchCheckInResponse{
		Results:      make([]checkInResultResponse, 0, len(batch.Results)),
		SuccessCount: batch.SuccessCount,
		FailureCount: batch.FailureCount,
		AllSucceeded: batch.AllSucceeded,
	}
	for i, res := range batch.Results {
		h.auditCheckIn(r, reqs[i], &res)
		h.broadcastOccupancy(reqs[i].LocationID, &res)
		resp.Results = append(resp.Results, h.checkInResultDTO(res))
	}
	rw.Success(resp)
}

// HandleCheckOut closes an open attendance. Checking out an already
// closed attendance reports checked_out=false rather than failing, so
// kiosk retries are harmless.
func (h *Handler) HandleCheckOut(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	attendanceID, ok := h.decodeParamKey(rw, r, idkey.KindAttendance, "attendanceKey", "attendance")
	if !ok {
		return
	}

	closed, err := h.checkins.CheckOut(r.Context(), attendanceID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	if closed && h.auditor != nil {
		h.auditor.LogCheckout(r.Context(), actorFromRequest(r), audit.SourceFromRequest(r),
			audit.Subject{}, attendanceID)
	}
	rw.Success(checkOutResponse{
		AttendanceKey: h.keys.Encode(idkey.KindAttendance, attendanceID),
		CheckedOut:    closed,
	})
}

// HandleListOccupants returns the current roster of a location.
func (h *Handler) HandleListOccupants(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	locationID, ok := h.decodeParamKey(rw, r, idkey.KindLocation, "locationKey", "location")
	if !ok {
		return
	}

	occupants, err := h.checkins.CurrentOccupants(r.Context(), locationID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	out := make([]occupantResponse, 0, len(occupants))
	for _, o := range occupants {
		out = append(out, occupantResponse{
			AttendanceKey: h.keys.Encode(idkey.KindAttendance, o.AttendanceID),
			PersonKey:     h.keys.Encode(idkey.KindPerson, o.PersonID),
			PersonName:    o.PersonName,
			CheckedInAt:   o.CheckedInAt,
			SecurityCode:  o.SecurityCode,
		})
	}
	rw.Success(out)
}

// HandlePersonHistory returns a person's attendance history. The days
// query parameter bounds the window; it defaults to 90.
func (h *Handler) HandlePersonHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	personID, ok := h.decodeParamKey(rw, r, idkey.KindPerson, "personKey", "person")
	if !ok {
		return
	}

	days := 90
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 730 {
			rw.BadRequest("days must be an integer between 1 and 730")
			return
		}
		days = parsed
	}

	entries, err := h.checkins.PersonHistory(r.Context(), personID, days)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			AttendanceKey: h.keys.Encode(idkey.KindAttendance, e.AttendanceID),
			LocationName:  e.LocationName,
			ScheduleName:  e.ScheduleName,
			Date:          e.Date,
			StartedAt:     e.StartedAt,
			EndedAt:       e.EndedAt,
			DidAttend:     e.DidAttend,
		})
	}
	rw.Success(out)
}

func (h *Handler) auditCheckIn(r *http.Request, req checkin.CheckInRequest, res *checkin.CheckInResult) {
	if h.auditor == nil {
		return
	}
	actor := actorFromRequest(r)
	source := audit.SourceFromRequest(r)
	child := audit.ChildSubject(req.PersonID, res.PersonName)

	h.auditor.LogCheckin(r.Context(), actor, source, child, string(res.Outcome), res.AttendanceID)
	if res.OK() && req.OverrideCapacity && req.SupervisorPersonID != nil {
		h.auditor.LogCapacityOverride(r.Context(), actor, source, child, req.LocationID, *req.SupervisorPersonID)
	}
}

func (h *Handler) broadcastOccupancy(locationID int64, res *checkin.CheckInResult) {
	if h.hub == nil || !res.OK() {
		return
	}
	h.hub.BroadcastOccupancy(websocket.OccupancyData{
		LocationID:   h.keys.Encode(idkey.KindLocation, locationID),
		LocationName: res.LocationName,
		Occupancy:    res.Occupancy,
		Capacity:     res.Capacity,
		NearCapacity: res.NearCapacity,
	})
}
