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
	"strings"
	"time"

	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/database"
	"github.com/mayak870/gatehouse/internal/idkey"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/metrics"
	"github.com/mayak870/gatehouse/internal/models"
	"github.com/mayak870/gatehouse/internal/pickup"
	"github.com/mayak870/gatehouse/internal/ratelimit"
)

type verificationResponse struct {
	IsAuthorized               bool   `json:"is_authorized"`
	Level                      string `json:"level,omitempty"`
	RequiresSupervisorOverride bool   `json:"requires_supervisor_override"`
	Message                    string `json:"message"`
	AuthorizationKey           string `json:"authorization_key,omitempty"`
	AttendanceKey              string `json:"attendance_key"`
	ChildKey                   string `json:"child_key"`
}

type pickupLogResponse struct {
	PickupKey          string    `json:"pickup_key"`
	AttendanceKey      string    `json:"attendance_key"`
	ChildKey           string    `json:"child_key"`
	PersonKey          string    `json:"person_key,omitempty"`
	PersonName         string    `json:"person_name,omitempty"`
	WasAuthorized      bool      `json:"was_authorized"`
	AuthorizationKey   string    `json:"authorization_key,omitempty"`
	SupervisorOverride bool      `json:"supervisor_override"`
	SupervisorKey      string    `json:"supervisor_key,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	RecordedAt         time.Time `json:"recorded_at"`
}

type authorizationResponse struct {
	AuthorizationKey string    `json:"authorization_key"`
	ChildKey         string    `json:"child_key"`
	PersonKey        string    `json:"person_key,omitempty"`
	PersonName       string    `json:"person_name,omitempty"`
	Relationship     string    `json:"relationship"`
	Level            string    `json:"level"`
	CreatedAt        time.Time `json:"created_at"`
}

type autoPopulateResponse struct {
	Created int `json:"created"`
}

// pickupPersonFromFields builds the pickup identity from the wire pair.
// Exactly one of personKey and personName must be set.
func (h *Handler) pickupPersonFromFields(rw *ResponseWriter, personKey, personName string) (models.PickupPerson, bool) {
	personName = strings.TrimSpace(personName)

	switch {
	case personKey != "" && personName != "":
		rw.BadRequest("Provide either person_key or person_name, not both")
		return models.PickupPerson{}, false
	case personKey != "":
		id, ok := h.decodeBodyKey(rw, idkey.KindPerson, personKey, "person")
		if !ok {
			return models.PickupPerson{}, false
		}
		return models.KnownPerson(id), true
	case personName != "":
		return models.NamedPerson(personName), true
	default:
		rw.BadRequest("A pickup person is required: set person_key or person_name")
		return models.PickupPerson{}, false
	}
}

// verifyOrigin keys the attempt limiter. A kiosk identifies itself via
// X-Kiosk-ID; anything else falls back to the client IP so one
// misbehaving origin cannot lock the attendance for everyone.
func verifyOrigin(r *http.Request) string {
	if kiosk := r.Header.Get("X-Kiosk-ID"); kiosk != "" {
		return kiosk
	}
	return r.RemoteAddr
}

// HandleVerifyPickup runs the speculative authorization check. Failed
// attempts count against the per-attendance-per-origin limiter; a
// limited origin gets a 429 with a Retry-After header before any code
// comparison happens.
func (h *Handler) HandleVerifyPickup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body verifyPickupRequest
	if !decodeAndValidate(rw, r, &body) {
		return
	}
	attendanceID, ok := h.decodeBodyKey(rw, idkey.KindAttendance, body.AttendanceKey, "attendance")
	if !ok {
		return
	}
	person, ok := h.pickupPersonFromFields(rw, body.PersonKey, body.PersonName)
	if !ok {
		return
	}

	key := ratelimit.Key{AttendanceID: attendanceID, OriginID: verifyOrigin(r)}
	if h.limiter != nil {
		limited, retryAfter, err := h.limiter.IsLimited(r.Context(), key)
		if err != nil {
			logging.Err(err).Int64("attendance_id", attendanceID).Msg("Rate limit check failed")
		}
		if limited {
			metrics.RateLimitedTotal.Inc()
			if h.auditor != nil {
				h.auditor.LogPickupRateLimited(r.Context(), actorFromRequest(r), audit.SourceFromRequest(r), attendanceID)
			}
			rw.TooManyRequests(ratelimit.Message(retryAfter), retryAfter)
			return
		}
	}

	v, err := h.pickups.Verify(r.Context(), attendanceID, person, body.Code)
	if err != nil {
		switch {
		case errors.Is(err, pickup.ErrAttendanceNotFound):
			rw.NotFound("Attendance not found")
		case errors.Is(err, pickup.ErrEmptyPickupPerson):
			rw.BadRequest("A pickup person is required")
		default:
			logging.Err(err).Int64("attendance_id", attendanceID).Msg("Pickup verification failed")
			rw.InternalError("Pickup verification failed")
		}
		return
	}

	if h.limiter != nil {
		if v.IsAuthorized {
			if err := h.limiter.Reset(r.Context(), key); err != nil {
				logging.Err(err).Msg("Rate limit reset failed")
			}
		} else {
			if _, _, err := h.limiter.RecordFailure(r.Context(), key); err != nil {
				logging.Err(err).Msg("Rate limit record failed")
			}
		}
	}
	if !v.IsAuthorized && h.auditor != nil {
		h.auditor.LogPickupDenied(r.Context(), actorFromRequest(r), audit.SourceFromRequest(r),
			audit.ChildSubject(v.ChildID, ""), v.Message)
	}

	rw.Success(h.verificationDTO(v))
}

// HandleRecordPickup commits the release. Validation faults map to
// client errors; the hard block is a 403 so kiosks render it as final.
func (h *Handler) HandleRecordPickup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body recordPickupRequest
	if !decodeAndValidate(rw, r, &body) {
		return
	}
	attendanceID, ok := h.decodeBodyKey(rw, idkey.KindAttendance, body.AttendanceKey, "attendance")
	if !ok {
		return
	}
	person, ok := h.pickupPersonFromFields(rw, body.PersonKey, body.PersonName)
	if !ok {
		return
	}

	req := pickup.RecordPickupRequest{
		AttendanceID:       attendanceID,
		Person:             person,
		WasAuthorized:      body.WasAuthorized,
		SupervisorOverride: body.SupervisorOverride,
		Notes:              body.Notes,
	}
	if body.AuthorizationKey != "" {
		id, ok := h.decodeBodyKey(rw, idkey.KindAuthorization, body.AuthorizationKey, "authorization")
		if !ok {
			return
		}
		req.AuthorizedPickupID = &id
	}
	if body.SupervisorKey != "" {
		id, ok := h.decodeBodyKey(rw, idkey.KindPerson, body.SupervisorKey, "supervisor")
		if !ok {
			return
		}
		req.SupervisorPersonID = &id
	}

	saved, err := h.pickups.RecordPickup(r.Context(), req)
	if err != nil {
		h.writeRecordPickupError(rw, r, attendanceID, err)
		return
	}

	if h.limiter != nil {
		key := ratelimit.Key{AttendanceID: attendanceID, OriginID: verifyOrigin(r)}
		if err := h.limiter.Reset(r.Context(), key); err != nil {
			logging.Err(err).Msg("Rate limit reset failed")
		}
	}
	if h.auditor != nil {
		h.auditor.LogPickupRecorded(r.Context(), actorFromRequest(r), audit.SourceFromRequest(r),
			audit.ChildSubject(saved.ChildID, ""), saved.ID, saved.SupervisorOverride)
	}

	rw.Created(h.pickupLogDTO(*saved))
}

func (h *Handler) writeRecordPickupError(rw *ResponseWriter, r *http.Request, attendanceID int64, err error) {
	switch {
	case errors.Is(err, pickup.ErrAttendanceNotFound):
		rw.NotFound("Attendance not found")
	case errors.Is(err, pickup.ErrBlockedPerson):
		if h.auditor != nil {
			h.auditor.LogPickupDenied(r.Context(), actorFromRequest(r), audit.SourceFromRequest(r),
				audit.Subject{}, "blocked person presented for release")
		}
		rw.Forbidden("This person is blocked from picking up this child")
	case errors.Is(err, pickup.ErrOverrideRequired):
		rw.Conflict("A supervisor override is required for an unauthorized release")
	case errors.Is(err, pickup.ErrSupervisorRequired),
		errors.Is(err, pickup.ErrContradictoryOverride),
		errors.Is(err, pickup.ErrEmptyPickupPerson):
		rw.BadRequest(strings.TrimPrefix(err.Error(), "pickup: "))
	default:
		logging.Err(err).Int64("attendance_id", attendanceID).Msg("Record pickup failed")
		rw.InternalError("Record pickup failed")
	}
}

// HandleAutoPopulateAuthorizations seeds Parent authorizations for the
// child's family adults. Idempotent; reports only how many were new.
func (h *Handler) HandleAutoPopulateAuthorizations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	childID, ok := h.decodeParamKey(rw, r, idkey.KindPerson, "personKey", "person")
	if !ok {
		return
	}

	created, err := h.pickups.AutoPopulateStandingAuthorizations(r.Context(), childID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			rw.NotFound("Person not found")
			return
		}
		rw.DatabaseError(err)
		return
	}

	if h.auditor != nil && created > 0 {
		h.auditor.LogAuthListChange(r.Context(), actorFromRequest(r), audit.SourceFromRequest(r),
			audit.ChildSubject(childID, ""), "auto_populate", fmt.Sprintf("%d standing authorizations created", created))
	}
	rw.Success(autoPopulateResponse{Created: created})
}

// HandleListAuthorizations returns a child's active pickup list.
func (h *Handler) HandleListAuthorizations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	childID, ok := h.decodeParamKey(rw, r, idkey.KindPerson, "personKey", "person")
	if !ok {
		return
	}

	auths, err := h.authorizations.ListActiveAuthorizations(r.Context(), childID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	out := make([]authorizationResponse, 0, len(auths))
	for _, ap := range auths {
		out = append(out, h.authorizationDTO(ap))
	}
	rw.Success(out)
}

// HandleCreateAuthorization adds a standing authorization to a child's
// pickup list.
func (h *Handler) HandleCreateAuthorization(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	childID, ok := h.decodeParamKey(rw, r, idkey.KindPerson, "personKey", "person")
	if !ok {
		return
	}

	var body createAuthorizationRequest
	if !decodeAndValidate(rw, r, &body) {
		return
	}

	ap := models.AuthorizedPickup{
		ChildID:      childID,
		Relationship: body.Relationship,
		Level:        models.AuthorizationLevel(body.Level),
		IsActive:     true,
	}
	switch {
	case body.PersonKey != "" && body.PersonName != "":
		rw.BadRequest("Provide either person_key or person_name, not both")
		return
	case body.PersonKey != "":
		id, ok := h.decodeBodyKey(rw, idkey.KindPerson, body.PersonKey, "person")
		if !ok {
			return
		}
		ap.PersonID = &id
	case strings.TrimSpace(body.PersonName) != "":
		name := strings.TrimSpace(body.PersonName)
		ap.PersonName = &name
	default:
		rw.BadRequest("An authorized person is required: set person_key or person_name")
		return
	}

	saved, err := h.authorizations.SaveAuthorization(r.Context(), ap, time.Now())
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	if h.auditor != nil {
		h.auditor.LogAuthListChange(r.Context(), actorFromRequest(r), audit.SourceFromRequest(r),
			audit.ChildSubject(childID, ""), "create",
			fmt.Sprintf("level %s (%s)", saved.Level, saved.Relationship))
	}
	rw.Created(h.authorizationDTO(*saved))
}

// HandleDeactivateAuthorization retires a standing authorization. The
// row survives for the audit trail; it just stops matching.
func (h *Handler) HandleDeactivateAuthorization(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := h.decodeParamKey(rw, r, idkey.KindAuthorization, "authorizationKey", "authorization")
	if !ok {
		return
	}

	deactivated, err := h.authorizations.DeactivateAuthorization(r.Context(), id, time.Now())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if !deactivated {
		rw.NotFound("Authorization not found")
		return
	}

	if h.auditor != nil {
		h.auditor.LogAuthListChange(r.Context(), actorFromRequest(r), audit.SourceFromRequest(r),
			audit.Subject{}, "deactivate",
			fmt.Sprintf("authorization %s deactivated", h.keys.Encode(idkey.KindAuthorization, id)))
	}
	rw.NoContent()
}

// HandleListPickupLogs returns a child's release history, newest first.
func (h *Handler) HandleListPickupLogs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	childID, ok := h.decodeParamKey(rw, r, idkey.KindPerson, "personKey", "person")
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			rw.BadRequest("limit must be an integer between 1 and 200")
			return
		}
		limit = parsed
	}

	logs, err := h.authorizations.ListPickupLogsForChild(r.Context(), childID, limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	out := make([]pickupLogResponse, 0, len(logs))
	for _, pl := range logs {
		out = append(out, h.pickupLogDTO(pl))
	}
	rw.Success(out)
}

func (h *Handler) verificationDTO(v *pickup.Verification) verificationResponse {
	dto := verificationResponse{
		IsAuthorized:               v.IsAuthorized,
		Level:                      string(v.Level),
		RequiresSupervisorOverride: v.RequiresSupervisorOverride,
		Message:                    v.Message,
		AttendanceKey:              h.keys.Encode(idkey.KindAttendance, v.AttendanceID),
		ChildKey:                   h.keys.Encode(idkey.KindPerson, v.ChildID),
	}
	if v.AuthorizedPickupID != nil {
		dto.AuthorizationKey = h.keys.Encode(idkey.KindAuthorization, *v.AuthorizedPickupID)
	}
	return dto
}

func (h *Handler) pickupLogDTO(pl models.PickupLog) pickupLogResponse {
	dto := pickupLogResponse{
		PickupKey:          h.keys.Encode(idkey.KindPickupLog, pl.ID),
		AttendanceKey:      h.keys.Encode(idkey.KindAttendance, pl.AttendanceID),
		ChildKey:           h.keys.Encode(idkey.KindPerson, pl.ChildID),
		WasAuthorized:      pl.WasAuthorized,
		SupervisorOverride: pl.SupervisorOverride,
		Notes:              pl.Notes,
		RecordedAt:         pl.RecordedAt,
	}
	if pl.PickupPersonID != nil {
		dto.PersonKey = h.keys.Encode(idkey.KindPerson, *pl.PickupPersonID)
	}
	if pl.PickupPersonName != nil {
		dto.PersonName = *pl.PickupPersonName
	}
	if pl.AuthorizedPickupID != nil {
		dto.AuthorizationKey = h.keys.Encode(idkey.KindAuthorization, *pl.AuthorizedPickupID)
	}
	if pl.SupervisorPersonID != nil {
		dto.SupervisorKey = h.keys.Encode(idkey.KindPerson, *pl.SupervisorPersonID)
	}
	return dto
}

func (h *Handler) authorizationDTO(ap models.AuthorizedPickup) authorizationResponse {
	dto := authorizationResponse{
		AuthorizationKey: h.keys.Encode(idkey.KindAuthorization, ap.ID),
		ChildKey:         h.keys.Encode(idkey.KindPerson, ap.ChildID),
		Relationship:     ap.Relationship,
		Level:            string(ap.Level),
		CreatedAt:        ap.CreatedAt,
	}
	if ap.PersonID != nil {
		dto.PersonKey = h.keys.Encode(idkey.KindPerson, *ap.PersonID)
	}
	if ap.PersonName != nil {
		dto.PersonName = *ap.PersonName
	}
	return dto
}
