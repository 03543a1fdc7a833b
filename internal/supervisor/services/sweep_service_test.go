// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePickupSweeper struct {
	called bool
}

func (f *fakePickupSweeper) RunCleanup(ctx context.Context) {
	f.called = true
	<-ctx.Done()
}

func TestPickupSweepServiceReturnsContextError(t *testing.T) {
	sweeper := &fakePickupSweeper{}
	svc := NewPickupSweepService(sweeper)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
	if !sweeper.called {
		t.Error("RunCleanup was not called")
	}
}

type fakeLoginSweeper struct {
	gotInterval time.Duration
	err         error
}

func (f *fakeLoginSweeper) RunCleanup(ctx context.Context, interval time.Duration) error {
	f.gotInterval = interval
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestLoginSweepServiceBindsInterval(t *testing.T) {
	sweeper := &fakeLoginSweeper{}
	svc := NewLoginSweepService(sweeper, 5*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
	if sweeper.gotInterval != 5*time.Minute {
		t.Errorf("interval = %v, want 5m", sweeper.gotInterval)
	}
}

func TestLoginSweepServiceDefaultInterval(t *testing.T) {
	svc := NewLoginSweepService(&fakeLoginSweeper{}, 0)
	if svc.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", svc.interval)
	}
}

type fakeRetention struct {
	err error
}

func (f *fakeRetention) RunCleanup(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestAuditRetentionServicePropagatesFailure(t *testing.T) {
	runner := &fakeRetention{err: errors.New("delete failed")}
	svc := NewAuditRetentionService(runner)

	if err := svc.Serve(context.Background()); !errors.Is(err, runner.err) {
		t.Errorf("Serve returned %v, want runner error", err)
	}
}

func TestSweepServiceNames(t *testing.T) {
	if got := NewPickupSweepService(&fakePickupSweeper{}).String(); got != "pickup-limit-sweep" {
		t.Errorf("pickup sweep String() = %q", got)
	}
	if got := NewLoginSweepService(&fakeLoginSweeper{}, time.Minute).String(); got != "login-limit-sweep" {
		t.Errorf("login sweep String() = %q", got)
	}
	if got := NewAuditRetentionService(&fakeRetention{}).String(); got != "audit-retention" {
		t.Errorf("audit retention String() = %q", got)
	}
}
