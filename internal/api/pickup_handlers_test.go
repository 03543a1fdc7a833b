// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mayak870/gatehouse/internal/idkey"
	"github.com/mayak870/gatehouse/internal/models"
	"github.com/mayak870/gatehouse/internal/pickup"
)

func (env *testEnv) verifyBody(code string) map[string]interface{} {
	return map[string]interface{}{
		"attendance_key": env.keys.Encode(idkey.KindAttendance, 55),
		"code":           code,
		"person_name":    "Dana Reyes",
	}
}

func TestHandleVerifyPickupAuthorized(t *testing.T) {
	env := newTestEnv(t)
	apID := int64(7)
	env.pickups.verification = &pickup.Verification{
		IsAuthorized:       true,
		Level:              models.LevelAlways,
		Message:            "Authorized (Parent).",
		AuthorizedPickupID: &apID,
		AttendanceID:       55,
		ChildID:            10,
	}

	rec := env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("FQ7K"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if env.pickups.gotVerifyAttendance != 55 || env.pickups.gotVerifyCode != "FQ7K" {
		t.Errorf("verify args = (%d, %q)", env.pickups.gotVerifyAttendance, env.pickups.gotVerifyCode)
	}
	if name, ok := env.pickups.gotVerifyPerson.Name(); !ok || name != "Dana Reyes" {
		t.Errorf("verify person = %+v", env.pickups.gotVerifyPerson)
	}

	var data verificationResponse
	dataField(t, rec, &data)
	if !data.IsAuthorized || data.Level != "always" {
		t.Errorf("verification = %+v", data)
	}
	if id, err := env.keys.Decode(idkey.KindAuthorization, data.AuthorizationKey); err != nil || id != 7 {
		t.Errorf("authorization key decodes to (%d, %v)", id, err)
	}
	if id, err := env.keys.Decode(idkey.KindPerson, data.ChildKey); err != nil || id != 10 {
		t.Errorf("child key decodes to (%d, %v)", id, err)
	}
}

func TestHandleVerifyPickupDeniedCountsTowardLimit(t *testing.T) {
	env := newTestEnv(t)
	env.pickups.verification = &pickup.Verification{
		IsAuthorized: false,
		Message:      "Invalid security code.",
		AttendanceID: 55,
		ChildID:      10,
	}

	// The limiter allows 3 failures; the fourth attempt must be blocked
	// before the engine runs.
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("WRONG"))
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d, want 200", i+1, rec.Code)
		}
	}
	if !env.auditor.has("pickup_denied:") {
		t.Errorf("denials not audited: %v", env.auditor.entries)
	}

	rec := env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("WRONG"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (body %s)", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
		t.Fatalf("envelope = %+v", resp)
	}
	if resp.Error.RetryAfterSeconds < 1 {
		t.Errorf("retry_after_seconds = %d", resp.Error.RetryAfterSeconds)
	}
	if !env.auditor.has("rate_limited:55") {
		t.Errorf("limit not audited: %v", env.auditor.entries)
	}
}

func TestHandleVerifyPickupLimitExpiresWithWindow(t *testing.T) {
	env := newTestEnv(t)
	env.pickups.verification = &pickup.Verification{Message: "Invalid security code.", AttendanceID: 55, ChildID: 10}

	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("WRONG"))
	}
	if rec := env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("WRONG")); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	env.clk.Advance(16 * time.Minute)
	if rec := env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("WRONG")); rec.Code != http.StatusOK {
		t.Fatalf("after window: status = %d, want 200", rec.Code)
	}
}

func TestHandleVerifyPickupSuccessResetsLimit(t *testing.T) {
	env := newTestEnv(t)
	env.pickups.verification = &pickup.Verification{Message: "Invalid security code.", AttendanceID: 55, ChildID: 10}

	for i := 0; i < 2; i++ {
		env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("WRONG"))
	}

	env.pickups.verification = &pickup.Verification{IsAuthorized: true, AttendanceID: 55, ChildID: 10}
	if rec := env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("FQ7K")); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// The counter was reset, so three more failures fit before a block.
	env.pickups.verification = &pickup.Verification{Message: "Invalid security code.", AttendanceID: 55, ChildID: 10}
	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("WRONG")); rec.Code != http.StatusOK {
			t.Fatalf("post-reset attempt %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestHandleVerifyPickupLimitIsPerOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.pickups.verification = &pickup.Verification{Message: "Invalid security code.", AttendanceID: 55, ChildID: 10}

	send := func(kioskID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/pickups/verify", bytes.NewReader(mustJSON(t, env.verifyBody("WRONG"))))
		req.Header.Set("X-Kiosk-ID", kioskID)
		req.RemoteAddr = "203.0.113.7:51000"
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		send("kiosk-1")
	}
	if rec := send("kiosk-1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("kiosk-1: status = %d, want 429", rec.Code)
	}
	if rec := send("kiosk-2"); rec.Code != http.StatusOK {
		t.Fatalf("kiosk-2: status = %d, want 200", rec.Code)
	}
}

func TestHandleVerifyPickupPersonFields(t *testing.T) {
	env := newTestEnv(t)
	env.pickups.verification = &pickup.Verification{IsAuthorized: true, AttendanceID: 55, ChildID: 10}

	tests := []struct {
		name     string
		body     map[string]interface{}
		wantCode int
	}{
		{
			name: "both key and name",
			body: map[string]interface{}{
				"attendance_key": env.keys.Encode(idkey.KindAttendance, 55),
				"code":           "FQ7K",
				"person_key":     env.keys.Encode(idkey.KindPerson, 40),
				"person_name":    "Dana Reyes",
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "neither",
			body: map[string]interface{}{
				"attendance_key": env.keys.Encode(idkey.KindAttendance, 55),
				"code":           "FQ7K",
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "known person",
			body: map[string]interface{}{
				"attendance_key": env.keys.Encode(idkey.KindAttendance, 55),
				"code":           "FQ7K",
				"person_key":     env.keys.Encode(idkey.KindPerson, 40),
			},
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/pickups/verify", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestHandleVerifyPickupUnknownAttendance(t *testing.T) {
	env := newTestEnv(t)
	env.pickups.err = pickup.ErrAttendanceNotFound

	rec := env.do(t, http.MethodPost, "/pickups/verify", env.verifyBody("FQ7K"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleRecordPickupSuccess(t *testing.T) {
	env := newTestEnv(t)
	personID := int64(40)
	env.pickups.log = &models.PickupLog{
		ID:             90,
		AttendanceID:   55,
		ChildID:        10,
		PickupPersonID: &personID,
		WasAuthorized:  true,
	}

	rec := env.do(t, http.MethodPost, "/pickups", map[string]interface{}{
		"attendance_key": env.keys.Encode(idkey.KindAttendance, 55),
		"person_key":     env.keys.Encode(idkey.KindPerson, 40),
		"was_authorized": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	if env.pickups.gotRecord.AttendanceID != 55 || !env.pickups.gotRecord.WasAuthorized {
		t.Errorf("record req = %+v", env.pickups.gotRecord)
	}

	var data pickupLogResponse
	dataField(t, rec, &data)
	if id, err := env.keys.Decode(idkey.KindPickupLog, data.PickupKey); err != nil || id != 90 {
		t.Errorf("pickup key decodes to (%d, %v)", id, err)
	}
	if !env.auditor.has("pickup_recorded:90:false") {
		t.Errorf("not audited: %v", env.auditor.entries)
	}
}

func TestHandleRecordPickupFaultMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"blocked", pickup.ErrBlockedPerson, http.StatusForbidden},
		{"override required", pickup.ErrOverrideRequired, http.StatusConflict},
		{"supervisor required", pickup.ErrSupervisorRequired, http.StatusBadRequest},
		{"contradictory override", pickup.ErrContradictoryOverride, http.StatusBadRequest},
		{"unknown attendance", pickup.ErrAttendanceNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.pickups.err = tt.err

			rec := env.do(t, http.MethodPost, "/pickups", map[string]interface{}{
				"attendance_key": env.keys.Encode(idkey.KindAttendance, 55),
				"person_name":    "Dana Reyes",
				"was_authorized": true,
			})
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestHandleRecordPickupOverrideCarriesSupervisor(t *testing.T) {
	env := newTestEnv(t)
	env.pickups.log = &models.PickupLog{ID: 91, AttendanceID: 55, ChildID: 10, SupervisorOverride: true}

	rec := env.do(t, http.MethodPost, "/pickups", map[string]interface{}{
		"attendance_key":      env.keys.Encode(idkey.KindAttendance, 55),
		"person_name":         "Dana Reyes",
		"supervisor_override": true,
		"supervisor_key":      env.keys.Encode(idkey.KindPerson, 77),
		"notes":               "parent called ahead",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	got := env.pickups.gotRecord
	if got.SupervisorPersonID == nil || *got.SupervisorPersonID != 77 {
		t.Errorf("supervisor id = %v", got.SupervisorPersonID)
	}
	if got.Notes != "parent called ahead" {
		t.Errorf("notes = %q", got.Notes)
	}
	if !env.auditor.has("pickup_recorded:91:true") {
		t.Errorf("override not audited: %v", env.auditor.entries)
	}
}

func TestHandleListAuthorizations(t *testing.T) {
	env := newTestEnv(t)
	personID := int64(40)
	env.auths.list = []models.AuthorizedPickup{
		{ID: 7, ChildID: 10, PersonID: &personID, Relationship: "Parent", Level: models.LevelAlways},
	}

	key := env.keys.Encode(idkey.KindPerson, 10)
	rec := env.do(t, http.MethodGet, "/persons/"+key+"/authorizations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var data []authorizationResponse
	dataField(t, rec, &data)
	if len(data) != 1 || data[0].Level != "always" {
		t.Fatalf("data = %+v", data)
	}
	if id, err := env.keys.Decode(idkey.KindAuthorization, data[0].AuthorizationKey); err != nil || id != 7 {
		t.Errorf("authorization key decodes to (%d, %v)", id, err)
	}
}

func TestHandleCreateAuthorization(t *testing.T) {
	env := newTestEnv(t)
	name := "Dana Reyes"
	env.auths.saved = &models.AuthorizedPickup{
		ID: 8, ChildID: 10, PersonName: &name, Relationship: "Aunt", Level: models.LevelEmergencyOnly,
	}

	key := env.keys.Encode(idkey.KindPerson, 10)
	rec := env.do(t, http.MethodPost, "/persons/"+key+"/authorizations", map[string]interface{}{
		"person_name":  "Dana Reyes",
		"relationship": "Aunt",
		"level":        "emergency_only",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	if env.auths.gotSave.ChildID != 10 || env.auths.gotSave.Level != models.LevelEmergencyOnly {
		t.Errorf("saved = %+v", env.auths.gotSave)
	}
	if !env.auths.gotSave.IsActive {
		t.Error("new authorization not active")
	}
	if !env.auditor.has("auth_list:create") {
		t.Errorf("not audited: %v", env.auditor.entries)
	}
}

func TestHandleCreateAuthorizationRejectsBadLevel(t *testing.T) {
	env := newTestEnv(t)
	key := env.keys.Encode(idkey.KindPerson, 10)

	rec := env.do(t, http.MethodPost, "/persons/"+key+"/authorizations", map[string]interface{}{
		"person_name":  "Dana Reyes",
		"relationship": "Aunt",
		"level":        "sometimes",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestHandleDeactivateAuthorization(t *testing.T) {
	env := newTestEnv(t)
	env.auths.deactivated = true

	key := env.keys.Encode(idkey.KindAuthorization, 7)
	rec := env.do(t, http.MethodDelete, "/authorizations/"+key, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !env.auditor.has("auth_list:deactivate") {
		t.Errorf("not audited: %v", env.auditor.entries)
	}
}

func TestHandleDeactivateAuthorizationNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.auths.deactivated = false

	key := env.keys.Encode(idkey.KindAuthorization, 7)
	rec := env.do(t, http.MethodDelete, "/authorizations/"+key, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleAutoPopulate(t *testing.T) {
	env := newTestEnv(t)
	env.pickups.created = 2

	key := env.keys.Encode(idkey.KindPerson, 10)
	rec := env.do(t, http.MethodPost, "/persons/"+key+"/authorizations/auto-populate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var data autoPopulateResponse
	dataField(t, rec, &data)
	if data.Created != 2 {
		t.Errorf("created = %d, want 2", data.Created)
	}
	if !env.auditor.has("auth_list:auto_populate") {
		t.Errorf("not audited: %v", env.auditor.entries)
	}
}
