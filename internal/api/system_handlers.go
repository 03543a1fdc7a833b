// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package api

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/websocket"
)

type healthResponse struct {
	Status string `json:"status"`
}

// HandleHealth is the liveness probe: the process is up.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(healthResponse{Status: "ok"})
}

// HandleReady is the readiness probe: storage must answer.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			logging.Err(err).Msg("Readiness check failed")
			rw.Error(http.StatusServiceUnavailable, ErrCodeDatabaseError, "Storage is not reachable")
			return
		}
	}
	rw.Success(healthResponse{Status: "ready"})
}

func (h *Handler) upgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin gates upgrades with the same origin list CORS
// uses. Browsers always send Origin; a missing header means a
// non-browser client and is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if len(h.corsOrigins) == 0 {
		return true
	}
	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// HandleWebSocket upgrades a dashboard connection and attaches it to
// the hub.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		NewResponseWriter(w, r).NotFound("Live updates are not enabled")
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
