// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mayak870/gatehouse/internal/validation"
)

// maxBodyBytes caps request bodies. Kiosk batches are the largest
// legitimate payload and stay well under this.
const maxBodyBytes = 1 << 20

type loginRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
	PIN      string `json:"pin" validate:"required,min=4,max=12"`
}

type kioskTokenRequest struct {
	KioskID string `json:"kiosk_id" validate:"required,min=2,max=64"`
}

type checkInItem struct {
	PersonKey   string `json:"person_key" validate:"required"`
	LocationKey string `json:"location_key" validate:"required"`
	ScheduleKey string `json:"schedule_key" validate:"required"`

	GenerateSecurityCode bool `json:"generate_security_code"`

	OverrideCapacity bool   `json:"override_capacity"`
	SupervisorKey    string `json:"supervisor_key,omitempty"`
}

type batchCheckInRequest struct {
	Items []checkInItem `json:"items" validate:"required,min=1,max=50,dive"`
}

// verifyPickupRequest names the pickup person either by directory key
// or by free-text name; exactly one must be set.
type verifyPickupRequest struct {
	AttendanceKey string `json:"attendance_key" validate:"required"`
	Code          string `json:"code" validate:"required,min=3,max=10"`
	PersonKey     string `json:"person_key,omitempty"`
	PersonName    string `json:"person_name,omitempty" validate:"omitempty,max=120"`
}

type recordPickupRequest struct {
	AttendanceKey      string `json:"attendance_key" validate:"required"`
	PersonKey          string `json:"person_key,omitempty"`
	PersonName         string `json:"person_name,omitempty" validate:"omitempty,max=120"`
	WasAuthorized      bool   `json:"was_authorized"`
	AuthorizationKey   string `json:"authorization_key,omitempty"`
	SupervisorOverride bool   `json:"supervisor_override"`
	SupervisorKey      string `json:"supervisor_key,omitempty"`
	Notes              string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type createAuthorizationRequest struct {
	PersonKey    string `json:"person_key,omitempty"`
	PersonName   string `json:"person_name,omitempty" validate:"omitempty,max=120"`
	Relationship string `json:"relationship" validate:"required,max=60"`
	Level        string `json:"level" validate:"required,oneof=always emergency_only never"`
}

type offlineSubmissionItem struct {
	IdempotencyKey string    `json:"idempotency_key" validate:"required,max=128"`
	PersonKey      string    `json:"person_key" validate:"required"`
	LocationKey    string    `json:"location_key" validate:"required"`
	ScheduleKey    string    `json:"schedule_key" validate:"required"`
	CapturedAt     time.Time `json:"captured_at" validate:"required"`
}

type offlineSyncRequest struct {
	Submissions []offlineSubmissionItem `json:"submissions" validate:"required,min=1,max=200,dive"`
}

// decodeAndValidate parses the JSON body into dst and runs struct
// validation. On failure it writes the error response and returns
// false; the handler must return immediately.
func decodeAndValidate(rw *ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			rw.BadRequest("Request body is required")
			return false
		}
		rw.BadRequest("Invalid JSON in request body")
		return false
	}

	if fieldErrs := validation.Struct(dst); fieldErrs != nil {
		rw.ValidationError("Request validation failed", fieldErrs)
		return false
	}
	return true
}
