// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package securitycode

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mayak870/gatehouse/internal/clock"
)

// memStore mimics the per-day unique constraint of the real store.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	seen   map[string]struct{} // code + "|" + date
	fail   error
}

func newMemStore() *memStore {
	return &memStore{seen: make(map[string]struct{})}
}

func (s *memStore) InsertSecurityCode(_ context.Context, code string, issueDate time.Time) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return 0, false, s.fail
	}
	key := code + "|" + issueDate.Format("2006-01-02")
	if _, dup := s.seen[key]; dup {
		return 0, false, nil
	}
	s.seen[key] = struct{}{}
	s.nextID++
	return s.nextID, true, nil
}

func testClock() *clock.Fake {
	return clock.NewFake(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
}

func TestIssueProducesValidCode(t *testing.T) {
	iss := New(newMemStore(), testClock(), Config{})

	sc, err := iss.Issue(context.Background())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if sc.ID == 0 {
		t.Error("expected non-zero id")
	}
	if len(sc.Code) != DefaultLength {
		t.Errorf("code length = %d, want %d", len(sc.Code), DefaultLength)
	}
	for _, r := range sc.Code {
		if !strings.ContainsRune(Alphabet, r) {
			t.Errorf("code %q contains %q outside the alphabet", sc.Code, r)
		}
	}
	wantDate := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !sc.IssueDate.Equal(wantDate) {
		t.Errorf("issue date = %v, want %v", sc.IssueDate, wantDate)
	}
}

func TestIssueUniquePerDay(t *testing.T) {
	store := newMemStore()
	iss := New(store, testClock(), Config{})

	codes := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		sc, err := iss.Issue(context.Background())
		if err != nil {
			t.Fatalf("Issue #%d: %v", i, err)
		}
		if _, dup := codes[sc.Code]; dup {
			t.Fatalf("duplicate code %q issued for the same day", sc.Code)
		}
		codes[sc.Code] = struct{}{}
	}
}

func TestIssueRetriesOnCollision(t *testing.T) {
	store := newMemStore()
	clk := testClock()

	// Pre-claim a large slice of a tiny keyspace so collisions are
	// certain, then verify the issuer still finds the free code.
	iss := New(store, clk, Config{Length: 1, MaxAttempts: 5000})
	day := clock.Today(clk)
	for _, c := range Alphabet[:len(Alphabet)-1] {
		if _, _, err := store.InsertSecurityCode(context.Background(), string(c), day); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	sc, err := iss.Issue(context.Background())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	want := string(Alphabet[len(Alphabet)-1])
	if sc.Code != want {
		t.Errorf("code = %q, want the only free code %q", sc.Code, want)
	}
}

func TestIssueKeyspaceExhausted(t *testing.T) {
	store := newMemStore()
	clk := testClock()
	iss := New(store, clk, Config{Length: 1, MaxAttempts: 200})

	day := clock.Today(clk)
	for _, c := range Alphabet {
		if _, _, err := store.InsertSecurityCode(context.Background(), string(c), day); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	_, err := iss.Issue(context.Background())
	if !errors.Is(err, ErrKeyspaceExhausted) {
		t.Fatalf("got %v, want ErrKeyspaceExhausted", err)
	}
}

func TestIssueNewDayFreesKeyspace(t *testing.T) {
	store := newMemStore()
	clk := testClock()
	iss := New(store, clk, Config{Length: 1, MaxAttempts: 200})

	day := clock.Today(clk)
	for _, c := range Alphabet {
		if _, _, err := store.InsertSecurityCode(context.Background(), string(c), day); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := iss.Issue(context.Background()); !errors.Is(err, ErrKeyspaceExhausted) {
		t.Fatalf("expected exhaustion on the full day, got %v", err)
	}

	clk.Advance(24 * time.Hour)
	sc, err := iss.Issue(context.Background())
	if err != nil {
		t.Fatalf("Issue on the next day: %v", err)
	}
	if sc.Code == "" {
		t.Fatal("expected a code on the fresh day")
	}
}

func TestIssueStoreError(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("disk on fire")
	iss := New(store, testClock(), Config{})

	_, err := iss.Issue(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("store error not propagated: %v", err)
	}
}

func TestGenerateUsesFullAlphabet(t *testing.T) {
	seen := make(map[byte]bool)
	for i := 0; i < 4000; i++ {
		code, err := generate(4)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		for j := 0; j < len(code); j++ {
			seen[code[j]] = true
		}
	}
	for i := 0; i < len(Alphabet); i++ {
		if !seen[Alphabet[i]] {
			t.Errorf("character %q never generated", Alphabet[i])
		}
	}
}
