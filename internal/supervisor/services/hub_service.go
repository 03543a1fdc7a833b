// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package services

import "context"

// ContextRunner matches the websocket hub's RunWithContext run loop.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// HubService runs the websocket hub under supervision.
type HubService struct {
	hub ContextRunner
}

// NewHubService wraps the hub for the supervision tree.
func NewHubService(hub ContextRunner) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String identifies the service in supervisor logs.
func (s *HubService) String() string {
	return "websocket-hub"
}
