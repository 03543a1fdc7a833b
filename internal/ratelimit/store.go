// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEntryNotFound is returned when no entry exists for a pair.
var ErrEntryNotFound = errors.New("ratelimit: entry not found")

// Store persists attempt entries.
type Store interface {
	GetEntry(ctx context.Context, key Key) (*Entry, error)
	SaveEntry(ctx context.Context, entry *Entry) error
	DeleteEntry(ctx context.Context, key Key) error

	// CleanupExpired removes entries whose window started before cutoff,
	// returning how many were removed.
	CleanupExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore is an in-process Store. Attempt windows are short-lived
// and per-instance, so losing them on restart is acceptable.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]*Entry)}
}

func (s *MemoryStore) GetEntry(_ context.Context, key Key) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryStore) SaveEntry(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.entries[entry.Key] = &cp
	return nil
}

func (s *MemoryStore) DeleteEntry(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return ErrEntryNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key, entry := range s.entries {
		if entry.WindowStart.Before(cutoff) {
			delete(s.entries, key)
			count++
		}
	}
	return count, nil
}

// Len reports the number of tracked pairs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
