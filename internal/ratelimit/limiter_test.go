// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/mayak870/gatehouse/internal/clock"
)

func newTestLimiter(t *testing.T) (*Limiter, *clock.Fake, *MemoryStore) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	lim := New(store, clk, Config{
		Enabled:     true,
		MaxAttempts: 5,
		Window:      15 * time.Minute,
	})
	return lim, clk, store
}

func mustNotLimited(t *testing.T, lim *Limiter, key Key) {
	t.Helper()
	limited, _, err := lim.IsLimited(context.Background(), key)
	if err != nil {
		t.Fatalf("IsLimited: %v", err)
	}
	if limited {
		t.Fatalf("pair %v unexpectedly limited", key)
	}
}

func TestFifthFailureTripsLimit(t *testing.T) {
	lim, _, _ := newTestLimiter(t)
	ctx := context.Background()
	key := Key{AttendanceID: 42, OriginID: "kiosk-1"}

	for i := 1; i <= 4; i++ {
		limited, _, err := lim.RecordFailure(ctx, key)
		if err != nil {
			t.Fatalf("RecordFailure #%d: %v", i, err)
		}
		if limited {
			t.Fatalf("limited after %d failures, want trip on 5th", i)
		}
		mustNotLimited(t, lim, key)
	}

	limited, retryAfter, err := lim.RecordFailure(ctx, key)
	if err != nil {
		t.Fatalf("RecordFailure #5: %v", err)
	}
	if !limited {
		t.Fatal("5th failure did not trip the limit")
	}
	if retryAfter <= 0 || retryAfter > 15*time.Minute {
		t.Errorf("retryAfter = %v, want within (0, 15m]", retryAfter)
	}

	limited, _, err = lim.IsLimited(ctx, key)
	if err != nil {
		t.Fatalf("IsLimited: %v", err)
	}
	if !limited {
		t.Fatal("IsLimited = false after trip")
	}
}

func TestPairsAreIndependent(t *testing.T) {
	lim, _, _ := newTestLimiter(t)
	ctx := context.Background()

	tripped := Key{AttendanceID: 1, OriginID: "kiosk-1"}
	for i := 0; i < 5; i++ {
		if _, _, err := lim.RecordFailure(ctx, tripped); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	limited, _, _ := lim.IsLimited(ctx, tripped)
	if !limited {
		t.Fatal("tripped pair not limited")
	}

	// Same attendance, different origin.
	mustNotLimited(t, lim, Key{AttendanceID: 1, OriginID: "kiosk-2"})
	// Same origin, different attendance.
	mustNotLimited(t, lim, Key{AttendanceID: 2, OriginID: "kiosk-1"})
}

func TestWindowExpiryReopens(t *testing.T) {
	lim, clk, _ := newTestLimiter(t)
	ctx := context.Background()
	key := Key{AttendanceID: 7, OriginID: "desk"}

	for i := 0; i < 5; i++ {
		if _, _, err := lim.RecordFailure(ctx, key); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if limited, _, _ := lim.IsLimited(ctx, key); !limited {
		t.Fatal("expected limited inside window")
	}

	clk.Advance(15*time.Minute + time.Second)
	mustNotLimited(t, lim, key)

	// A failure after expiry starts a fresh window at count one.
	limited, _, err := lim.RecordFailure(ctx, key)
	if err != nil {
		t.Fatalf("RecordFailure after expiry: %v", err)
	}
	if limited {
		t.Fatal("first failure of a fresh window tripped the limit")
	}
}

func TestResetClearsPair(t *testing.T) {
	lim, _, _ := newTestLimiter(t)
	ctx := context.Background()
	key := Key{AttendanceID: 9, OriginID: "kiosk-3"}

	for i := 0; i < 4; i++ {
		if _, _, err := lim.RecordFailure(ctx, key); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if err := lim.Reset(ctx, key); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	// Budget is fresh: four more failures still do not trip.
	for i := 0; i < 4; i++ {
		limited, _, err := lim.RecordFailure(ctx, key)
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if limited {
			t.Fatalf("limited after %d post-reset failures", i+1)
		}
	}

	// Reset of an unknown pair is a no-op.
	if err := lim.Reset(ctx, Key{AttendanceID: 999, OriginID: "nowhere"}); err != nil {
		t.Fatalf("Reset unknown pair: %v", err)
	}
}

func TestLimitedFailuresDoNotExtendWindow(t *testing.T) {
	lim, clk, _ := newTestLimiter(t)
	ctx := context.Background()
	key := Key{AttendanceID: 11, OriginID: "kiosk-1"}

	for i := 0; i < 5; i++ {
		if _, _, err := lim.RecordFailure(ctx, key); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	// Hammering while blocked must not move the window end.
	clk.Advance(10 * time.Minute)
	if _, _, err := lim.RecordFailure(ctx, key); err != nil {
		t.Fatalf("RecordFailure while limited: %v", err)
	}
	clk.Advance(5*time.Minute + time.Second)
	mustNotLimited(t, lim, key)
}

func TestDisabledLimiter(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	lim := New(NewMemoryStore(), clk, Config{Enabled: false, MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()
	key := Key{AttendanceID: 1, OriginID: "kiosk-1"}

	for i := 0; i < 10; i++ {
		limited, _, err := lim.RecordFailure(ctx, key)
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if limited {
			t.Fatal("disabled limiter reported limited")
		}
	}
	mustNotLimited(t, lim, key)
}

func TestOnLimitCallback(t *testing.T) {
	lim, _, _ := newTestLimiter(t)
	ctx := context.Background()

	got := make(chan Entry, 1)
	lim.SetOnLimit(func(e Entry) { got <- e })

	key := Key{AttendanceID: 3, OriginID: "kiosk-9"}
	for i := 0; i < 5; i++ {
		if _, _, err := lim.RecordFailure(ctx, key); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	select {
	case e := <-got:
		if e.Key != key {
			t.Errorf("callback key = %v, want %v", e.Key, key)
		}
		if e.Failures != 5 {
			t.Errorf("callback failures = %d, want 5", e.Failures)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnLimit callback never fired")
	}
}

func TestCleanupExpired(t *testing.T) {
	lim, clk, store := newTestLimiter(t)
	ctx := context.Background()

	if _, _, err := lim.RecordFailure(ctx, Key{AttendanceID: 1, OriginID: "a"}); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	clk.Advance(20 * time.Minute)
	if _, _, err := lim.RecordFailure(ctx, Key{AttendanceID: 2, OriginID: "b"}); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	count, err := store.CleanupExpired(ctx, clk.Now().Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if count != 1 {
		t.Errorf("cleaned %d entries, want 1", count)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d entries, want 1", store.Len())
	}
}

func TestMessage(t *testing.T) {
	got := Message(14*time.Minute + 59*time.Second + 400*time.Millisecond)
	want := "Too many failed attempts. Try again in 14m59s."
	if got != want {
		t.Errorf("Message = %q, want %q", got, want)
	}
}
