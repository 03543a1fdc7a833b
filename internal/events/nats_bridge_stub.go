// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

//go:build !nats

package events

import (
	"context"
	"errors"

	"github.com/mayak870/gatehouse/internal/config"
)

// ErrNATSNotBuilt reports that the binary was compiled without NATS
// support. Rebuild with -tags nats to enable the JetStream mirror.
var ErrNATSNotBuilt = errors.New("events: nats support not compiled in (build with -tags nats)")

// NATSBridge is the no-op stand-in for builds without -tags nats.
type NATSBridge struct{}

// NewNATSBridge always fails in the stub build.
func NewNATSBridge(_ *Bus, _ config.NATSConfig) (*NATSBridge, error) {
	return nil, ErrNATSNotBuilt
}

// Serve never runs in the stub build.
func (b *NATSBridge) Serve(_ context.Context) error {
	return ErrNATSNotBuilt
}

// Close is a no-op.
func (b *NATSBridge) Close() error { return nil }

// String identifies the bridge in supervisor logs.
func (b *NATSBridge) String() string { return "nats-bridge-stub" }
