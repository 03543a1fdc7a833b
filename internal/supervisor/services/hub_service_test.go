// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package services

import (
	"context"
	"errors"
	"testing"
)

type fakeHub struct {
	called bool
	err    error
}

func (f *fakeHub) RunWithContext(ctx context.Context) error {
	f.called = true
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHubServiceDelegatesToHub(t *testing.T) {
	hub := &fakeHub{}
	svc := NewHubService(hub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
	if !hub.called {
		t.Error("RunWithContext was not called")
	}
}

func TestHubServicePropagatesFailure(t *testing.T) {
	hub := &fakeHub{err: errors.New("broadcast loop wedged")}
	svc := NewHubService(hub)

	if err := svc.Serve(context.Background()); !errors.Is(err, hub.err) {
		t.Errorf("Serve returned %v, want hub error", err)
	}
}

func TestHubServiceString(t *testing.T) {
	if got := NewHubService(&fakeHub{}).String(); got != "websocket-hub" {
		t.Errorf("String() = %q", got)
	}
}
