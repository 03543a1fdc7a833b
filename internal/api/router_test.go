// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/auth"
	"github.com/mayak870/gatehouse/internal/checkin"
	"github.com/mayak870/gatehouse/internal/config"
	"github.com/mayak870/gatehouse/internal/idkey"
	"github.com/mayak870/gatehouse/internal/models"
)

type fakeReprinter struct {
	code string
	err  error

	gotSupervisor int64
}

func (f *fakeReprinter) Reprint(_ context.Context, _, supervisorPersonID int64, _ audit.Source) (string, error) {
	f.gotSupervisor = supervisorPersonID
	return f.code, f.err
}

// routerEnv exercises the full route table with real JWT auth.
type routerEnv struct {
	*testEnv
	server    http.Handler
	tokens    *auth.JWTManager
	reprinter *fakeReprinter
	authn     *fakeAuthn
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()

	env := newTestEnv(t)
	tokens, err := auth.NewJWTManager(config.AuthConfig{
		JWTSecret:     "0123456789abcdef0123456789abcdef",
		TokenTTL:      time.Hour,
		KioskTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	re := &routerEnv{
		testEnv:   env,
		tokens:    tokens,
		reprinter: &fakeReprinter{code: "FQ7K"},
		authn:     &fakeAuthn{},
	}

	h := NewHandler(Deps{
		Checkins:       env.checkins,
		Pickups:        env.pickups,
		Auth:           re.authn,
		KioskTokens:    tokens,
		Authorizations: env.auths,
		Analytics:      &fakeAnalytics{summary: &models.AttendanceSummary{}},
		Auditor:        env.auditor,
		Reprinter:      re.reprinter,
		OfflineQueue:   env.offline,
		Health:         &fakeHealth{},
		Limiter:        env.limiter,
		Keys:           env.keys,
		CORSOrigins:    []string{"*"},
	})

	cfg := &config.Config{}
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Server.RequestsPerMinute = 10000

	re.server = NewRouter(cfg, h, auth.NewMiddleware(tokens, nil))
	return re
}

func (re *routerEnv) token(t *testing.T, role string) string {
	t.Helper()

	var token string
	var err error
	if role == models.RoleKiosk {
		token, err = re.tokens.GenerateKioskToken("kiosk-1")
	} else {
		token, err = re.tokens.GenerateToken("msmith", role, 77)
	}
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (re *routerEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(mustJSON(t, body)))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "203.0.113.7:51000"
	rec := httptest.NewRecorder()
	re.server.ServeHTTP(rec, req)
	return rec
}

func TestRouterRequiresAuthentication(t *testing.T) {
	re := newRouterEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/checkins"},
		{http.MethodPost, "/api/v1/pickups/verify"},
		{http.MethodGet, "/api/v1/reports/summary"},
		{http.MethodGet, "/api/v1/audit/events"},
	}
	for _, p := range paths {
		rec := re.request(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestRouterRoleBoundaries(t *testing.T) {
	re := newRouterEnv(t)
	re.checkins.result = &checkin.CheckInResult{Outcome: checkin.OutcomeSuccess, AttendanceID: 1}

	checkinBody := map[string]interface{}{
		"person_key":   re.keys.Encode(idkey.KindPerson, 10),
		"location_key": re.keys.Encode(idkey.KindLocation, 3),
		"schedule_key": re.keys.Encode(idkey.KindSchedule, 2),
	}

	tests := []struct {
		name     string
		method   string
		path     string
		role     string
		body     interface{}
		wantCode int
	}{
		{"kiosk can check in", http.MethodPost, "/api/v1/checkins", models.RoleKiosk, checkinBody, http.StatusCreated},
		{"staff can check in", http.MethodPost, "/api/v1/checkins", models.RoleStaff, checkinBody, http.StatusCreated},
		{"kiosk cannot read reports", http.MethodGet, "/api/v1/reports/summary", models.RoleKiosk, nil, http.StatusForbidden},
		{"staff can read reports", http.MethodGet, "/api/v1/reports/summary", models.RoleStaff, nil, http.StatusOK},
		{"staff cannot read audit", http.MethodGet, "/api/v1/audit/events", models.RoleStaff, nil, http.StatusForbidden},
		{"supervisor can read audit", http.MethodGet, "/api/v1/audit/events", models.RoleSupervisor, nil, http.StatusOK},
		{"supervisor passes staff routes", http.MethodGet, "/api/v1/reports/summary", models.RoleSupervisor, nil, http.StatusOK},
		{"supervisor passes kiosk routes", http.MethodPost, "/api/v1/checkins", models.RoleSupervisor, checkinBody, http.StatusCreated},
		{"staff cannot provision kiosks", http.MethodPost, "/api/v1/auth/kiosk-tokens", models.RoleStaff, map[string]interface{}{"kiosk_id": "kiosk-9"}, http.StatusForbidden},
		{"supervisor can provision kiosks", http.MethodPost, "/api/v1/auth/kiosk-tokens", models.RoleSupervisor, map[string]interface{}{"kiosk_id": "kiosk-9"}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := re.request(t, tt.method, tt.path, re.token(t, tt.role), tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

func TestRouterLogin(t *testing.T) {
	re := newRouterEnv(t)
	re.authn.result = &auth.LoginResult{
		Token:     "session-token",
		ExpiresAt: time.Now().Add(time.Hour),
		Username:  "msmith",
		Role:      models.RoleSupervisor,
	}

	rec := re.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"username": "msmith",
		"pin":      "1234",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var data loginResponse
	dataField(t, rec, &data)
	if data.Token != "session-token" || data.Role != models.RoleSupervisor {
		t.Errorf("login data = %+v", data)
	}
}

func TestRouterLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"bad credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"rate limited", auth.ErrRateLimited, http.StatusTooManyRequests},
		{"store fault", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := newRouterEnv(t)
			re.authn.err = tt.err

			rec := re.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
				"username": "msmith",
				"pin":      "9999",
			})
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestRouterProvisionedKioskTokenWorks(t *testing.T) {
	re := newRouterEnv(t)
	re.checkins.result = &checkin.CheckInResult{Outcome: checkin.OutcomeSuccess, AttendanceID: 1}

	rec := re.request(t, http.MethodPost, "/api/v1/auth/kiosk-tokens",
		re.token(t, models.RoleSupervisor), map[string]interface{}{"kiosk_id": "kiosk-9"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("provision: status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var data kioskTokenResponse
	dataField(t, rec, &data)
	if data.KioskID != "kiosk-9" || data.Token == "" {
		t.Fatalf("data = %+v", data)
	}

	// The minted token must check in but not read reports.
	checkinBody := map[string]interface{}{
		"person_key":   re.keys.Encode(idkey.KindPerson, 10),
		"location_key": re.keys.Encode(idkey.KindLocation, 3),
		"schedule_key": re.keys.Encode(idkey.KindSchedule, 2),
	}
	if rec := re.request(t, http.MethodPost, "/api/v1/checkins", data.Token, checkinBody); rec.Code != http.StatusCreated {
		t.Errorf("kiosk check-in: status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if rec := re.request(t, http.MethodGet, "/api/v1/reports/summary", data.Token, nil); rec.Code != http.StatusForbidden {
		t.Errorf("kiosk reports: status = %d, want 403", rec.Code)
	}
}

func TestRouterReprintSupervisorOnly(t *testing.T) {
	re := newRouterEnv(t)

	key := re.keys.Encode(idkey.KindAttendance, 55)
	path := "/api/v1/attendances/" + key + "/code/reprint"

	if rec := re.request(t, http.MethodPost, path, re.token(t, models.RoleStaff), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("staff reprint: status = %d, want 403", rec.Code)
	}

	rec := re.request(t, http.MethodPost, path, re.token(t, models.RoleSupervisor), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("supervisor reprint: status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var data reprintResponse
	dataField(t, rec, &data)
	if data.SecurityCode != "FQ7K" {
		t.Errorf("code = %q", data.SecurityCode)
	}
	if re.reprinter.gotSupervisor != 77 {
		t.Errorf("supervisor id = %d, want 77 from claims", re.reprinter.gotSupervisor)
	}
}

func TestRouterHealthAndReady(t *testing.T) {
	re := newRouterEnv(t)

	if rec := re.request(t, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("/health: status = %d", rec.Code)
	}
	if rec := re.request(t, http.MethodGet, "/ready", "", nil); rec.Code != http.StatusOK {
		t.Errorf("/ready: status = %d", rec.Code)
	}
	if rec := re.request(t, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Errorf("/metrics: status = %d", rec.Code)
	}
}

func TestRouterReadyFailsWhenStorageDown(t *testing.T) {
	re := newRouterEnv(t)
	env := re.testEnv

	h := NewHandler(Deps{
		Checkins: env.checkins,
		Pickups:  env.pickups,
		Auth:     re.authn,
		Health:   &fakeHealth{err: errors.New("connection refused")},
		Limiter:  env.limiter,
		Keys:     env.keys,
	})
	cfg := &config.Config{}
	cfg.Server.RequestsPerMinute = 10000
	server := NewRouter(cfg, h, auth.NewMiddleware(re.tokens, nil))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/ready: status = %d, want 503", rec.Code)
	}
}

func TestRouterEchoesRequestID(t *testing.T) {
	re := newRouterEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "kiosk-req-42")
	rec := httptest.NewRecorder()
	re.server.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "kiosk-req-42" {
		t.Errorf("X-Request-ID = %q, want echo", got)
	}

	// A missing id is generated, never empty.
	rec = httptest.NewRecorder()
	re.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}
}
