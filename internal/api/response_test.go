// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTooManyRequestsSetsRetryAfter(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).TooManyRequests("Too many failed attempts. Try again in 9m30s.", 9*time.Minute+30*time.Second)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "570" {
		t.Errorf("Retry-After = %q, want 570", got)
	}

	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.RetryAfterSeconds != 570 {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestTooManyRequestsFloorsAtOneSecond(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).TooManyRequests("slow down", 10*time.Millisecond)

	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
}

func TestDatabaseErrorHidesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).DatabaseError(errors.New("duckdb: catalog table missing"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "duckdb") {
		t.Errorf("SQL detail leaked: %s", rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeDatabaseError {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestSuccessEnvelopeMeta(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).Success(map[string]string{"hello": "world"})

	resp := decodeEnvelope(t, rec)
	if !resp.Success || resp.Meta == nil {
		t.Fatalf("envelope = %+v", resp)
	}
	if resp.Meta.Timestamp.IsZero() {
		t.Error("meta timestamp not set")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
}
