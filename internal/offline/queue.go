// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package offline queues check-in submissions captured while a kiosk had
// no connectivity, and replays them once the service is reachable again.
//
// Each submission carries a client-generated idempotency key. The queue
// accepts a duplicate key silently without storing a second copy, so a
// kiosk that retries its whole backlog cannot double-enter a child.
// Entries carry a TTL: a submission that sat unsynced past the TTL is
// stale enough that replaying it would lie about who is in the building.
package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/mayak870/gatehouse/internal/metrics"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("offline: queue is closed")

const entryPrefix = "entry:"

// Submission is one queued offline check-in.
type Submission struct {
	// IdempotencyKey is the client-generated dedup key.
	IdempotencyKey string `json:"idempotency_key"`

	// KioskID identifies the submitting terminal.
	KioskID string `json:"kiosk_id"`

	PersonID   int64 `json:"person_id"`
	LocationID int64 `json:"location_id"`
	ScheduleID int64 `json:"schedule_id"`

	// CapturedAt is when the kiosk recorded the check-in locally.
	CapturedAt time.Time `json:"captured_at"`

	// QueuedAt is when the service accepted the submission.
	QueuedAt time.Time `json:"queued_at"`
}

// Config tunes the queue.
type Config struct {
	// Dir is the Badger data directory.
	Dir string

	// EntryTTL bounds how long an entry may wait before it is considered
	// stale and dropped instead of replayed.
	EntryTTL time.Duration
}

// Queue is a Badger-backed store of pending offline submissions.
type Queue struct {
	db  *badger.DB
	ttl time.Duration
}

// Open creates or opens the queue at cfg.Dir.
func Open(cfg Config) (*Queue, error) {
	if cfg.Dir == "" {
		return nil, errors.New("offline: queue dir is required")
	}
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("offline: open badger: %w", err)
	}

	q := &Queue{db: db, ttl: ttl}
	q.updatePendingGauge()
	return q, nil
}

// Enqueue stores a submission. A duplicate idempotency key is accepted
// and ignored; the bool reports whether the entry was newly stored.
func (q *Queue) Enqueue(_ context.Context, sub Submission) (bool, error) {
	if sub.IdempotencyKey == "" {
		return false, errors.New("offline: idempotency key is required")
	}
	if sub.QueuedAt.IsZero() {
		sub.QueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return false, fmt.Errorf("offline: marshal submission: %w", err)
	}

	key := []byte(entryPrefix + sub.IdempotencyKey)
	stored := false
	err = q.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil // duplicate, keep the first copy
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		stored = true
		entry := badger.NewEntry(key, data).WithTTL(q.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return false, ErrClosed
		}
		return false, fmt.Errorf("offline: enqueue: %w", err)
	}

	if stored {
		metrics.OfflinePending.Inc()
	}
	return stored, nil
}

// Pending returns every queued submission, oldest capture first.
func (q *Queue) Pending(_ context.Context) ([]Submission, error) {
	var subs []Submission

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var sub Submission
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sub)
			})
			if err != nil {
				return err
			}
			subs = append(subs, sub)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("offline: list pending: %w", err)
	}

	// Badger iterates in key order; replay should follow capture order.
	for i := 1; i < len(subs); i++ {
		for j := i; j > 0 && subs[j].CapturedAt.Before(subs[j-1].CapturedAt); j-- {
			subs[j], subs[j-1] = subs[j-1], subs[j]
		}
	}
	return subs, nil
}

// Remove deletes a replayed (or stale) entry.
func (q *Queue) Remove(_ context.Context, idempotencyKey string) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(entryPrefix + idempotencyKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return ErrClosed
		}
		return fmt.Errorf("offline: remove: %w", err)
	}
	q.updatePendingGauge()
	return nil
}

// Len counts queued entries.
func (q *Queue) Len() (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return 0, ErrClosed
		}
		return 0, err
	}
	return count, nil
}

// Close shuts the queue down.
func (q *Queue) Close() error {
	return q.db.Close()
}

func (q *Queue) updatePendingGauge() {
	if n, err := q.Len(); err == nil {
		metrics.OfflinePending.Set(float64(n))
	}
}
