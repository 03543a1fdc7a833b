// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/auth"
	"github.com/mayak870/gatehouse/internal/logging"
)

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

type kioskTokenResponse struct {
	Token     string    `json:"token"`
	KioskID   string    `json:"kiosk_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleLogin exchanges a username and PIN for a session token. Bad
// credentials and unknown usernames produce the same 401.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body loginRequest
	if !decodeAndValidate(rw, r, &body) {
		return
	}

	result, err := h.authn.Login(r.Context(), body.Username, body.PIN, audit.SourceFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRateLimited):
			rw.TooManyRequests("Too many login attempts. Try again in a minute.", time.Minute)
		case errors.Is(err, auth.ErrInvalidCredentials):
			rw.Unauthorized("Invalid username or PIN")
		default:
			logging.Err(err).Msg("Login failed")
			rw.InternalError("Login failed")
		}
		return
	}

	rw.Success(loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Username:  result.Username,
		Role:      result.Role,
	})
}

// HandleProvisionKiosk mints a long-lived kiosk token. Supervisor only;
// the router enforces the role.
func (h *Handler) HandleProvisionKiosk(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var body kioskTokenRequest
	if !decodeAndValidate(rw, r, &body) {
		return
	}

	token, err := h.kioskTokens.GenerateKioskToken(body.KioskID)
	if err != nil {
		logging.Err(err).Str("kiosk_id", body.KioskID).Msg("Kiosk token generation failed")
		rw.InternalError("Kiosk token generation failed")
		return
	}

	logging.Info().Str("kiosk_id", body.KioskID).Msg("Kiosk token provisioned")
	rw.Created(kioskTokenResponse{
		Token:     token,
		KioskID:   body.KioskID,
		ExpiresAt: time.Now().Add(h.kioskTokens.KioskTokenTTL()),
	})
}
