// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package securitycode issues short pickup codes that are unique per
// calendar day.
//
// Codes are printed on badge labels and read back by guardians at pickup,
// so the alphabet drops lookalike characters (I/1, O/0, S/5). Day-level
// uniqueness is enforced by the store's unique constraint, not by an
// in-process set: concurrent issuers on one database cannot hand out the
// same code for the same day.
package securitycode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/mayak870/gatehouse/internal/clock"
	"github.com/mayak870/gatehouse/internal/metrics"
	"github.com/mayak870/gatehouse/internal/models"
)

// Alphabet is the character set for generated codes. Ambiguous glyphs
// (I, O, S, 0, 1, 5) are excluded so codes survive handwriting and
// low-quality label printers.
const Alphabet = "ABCDEFGHJKLMNPQRTUVWXYZ2346789"

// DefaultLength is the code length used when Config.Length is zero.
const DefaultLength = 4

// DefaultMaxAttempts bounds collision retries when Config.MaxAttempts is
// zero. With a 4-character code the keyspace is 30^4 = 810000, so 64
// attempts only exhaust on a nearly full day.
const DefaultMaxAttempts = 64

// ErrKeyspaceExhausted reports that the issuer could not find an unused
// code for the day within its retry budget. Callers should surface it as
// a service fault, not retry further.
var ErrKeyspaceExhausted = errors.New("securitycode: keyspace exhausted for issue date")

// Store persists codes and enforces per-day uniqueness.
type Store interface {
	// InsertSecurityCode stores code for issueDate. inserted is false
	// when the (code, day) pair already exists.
	InsertSecurityCode(ctx context.Context, code string, issueDate time.Time) (id int64, inserted bool, err error)
}

// Config tunes the issuer. Zero values take the package defaults.
type Config struct {
	Length      int
	MaxAttempts int
}

// Issuer generates and persists day-unique codes.
type Issuer struct {
	store       Store
	clk         clock.Clock
	length      int
	maxAttempts int
}

// New creates an Issuer backed by store.
func New(store Store, clk clock.Clock, cfg Config) *Issuer {
	length := cfg.Length
	if length <= 0 {
		length = DefaultLength
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	return &Issuer{store: store, clk: clk, length: length, maxAttempts: attempts}
}

// Issue generates a code unique for today (issuer clock), persists it and
// returns the stored record. Collisions are retried with fresh random
// codes up to the configured attempt budget, then ErrKeyspaceExhausted.
func (i *Issuer) Issue(ctx context.Context) (*models.SecurityCode, error) {
	issueDate := clock.Today(i.clk)

	for attempt := 0; attempt < i.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, err := generate(i.length)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}

		id, inserted, err := i.store.InsertSecurityCode(ctx, code, issueDate)
		if err != nil {
			return nil, fmt.Errorf("persist code: %w", err)
		}
		if !inserted {
			metrics.CodeCollisions.Inc()
			continue
		}

		return &models.SecurityCode{ID: id, Code: code, IssueDate: issueDate}, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrKeyspaceExhausted, i.maxAttempts)
}

// generate builds one candidate code. Each character is drawn uniformly
// from Alphabet using crypto/rand; no modulo bias because rand.Int
// rejects out-of-range values internally.
func generate(length int) (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = Alphabet[n.Int64()]
	}
	return string(out), nil
}
