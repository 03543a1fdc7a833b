// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package idkey translates between externally exposed opaque identifiers
// and internal numeric keys.
//
// External clients only ever see id keys (short base32 strings); internal
// storage uses int64 primary keys. Keys are namespaced by entity kind so a
// person key cannot be replayed as an attendance key, and carry a checksum
// so malformed or tampered input is rejected before any lookup happens.
package idkey

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Kind namespaces id keys per entity type.
type Kind string

const (
	KindPerson        Kind = "person"
	KindLocation      Kind = "location"
	KindSchedule      Kind = "schedule"
	KindAttendance    Kind = "attendance"
	KindPickupLog     Kind = "pickup_log"
	KindAuthorization Kind = "authorized_pickup"
)

// ErrInvalidIDKey marks externally supplied identifiers that do not decode.
// Callers surface this as a malformed-input fault, distinct from "not found".
var ErrInvalidIDKey = errors.New("invalid id key")

const minSecretLen = 8

// encoding is unpadded lowercase base32hex: 10 payload bytes -> 16 chars.
var encoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// Codec encodes and decodes id keys with a process-wide secret.
type Codec struct {
	secret []byte
}

// New creates a Codec. The secret must be at least 8 bytes; it is what
// keeps internal ids non-enumerable from the outside.
func New(secret string) (*Codec, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("idkey secret must be at least %d bytes", minSecretLen)
	}
	return &Codec{secret: []byte(secret)}, nil
}

// mask derives the per-kind 8-byte mask and 2-byte checksum key.
func (c *Codec) mask(kind Kind) []byte {
	h := sha256.New()
	h.Write(c.secret)
	h.Write([]byte(":"))
	h.Write([]byte(kind))
	return h.Sum(nil)
}

// Encode produces the opaque key for an internal id. Non-positive ids are
// a programming error and encode to the empty string.
func (c *Codec) Encode(kind Kind, id int64) string {
	if id <= 0 {
		return ""
	}
	m := c.mask(kind)

	var buf [10]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(id)^binary.BigEndian.Uint64(m[:8]))
	sum := checksum(m, buf[:8])
	copy(buf[8:], sum[:])

	return strings.ToLower(encoding.EncodeToString(buf[:]))
}

// Decode recovers the internal id from an opaque key. Any malformed,
// truncated, tampered, or wrong-kind input returns ErrInvalidIDKey.
func (c *Codec) Decode(kind Kind, key string) (int64, error) {
	raw, err := encoding.DecodeString(strings.ToUpper(strings.TrimSpace(key)))
	if err != nil || len(raw) != 10 {
		return 0, ErrInvalidIDKey
	}
	m := c.mask(kind)

	want := checksum(m, raw[:8])
	if subtle.ConstantTimeCompare(raw[8:], want[:]) != 1 {
		return 0, ErrInvalidIDKey
	}

	id := int64(binary.BigEndian.Uint64(raw[:8]) ^ binary.BigEndian.Uint64(m[:8]))
	if id <= 0 {
		return 0, ErrInvalidIDKey
	}
	return id, nil
}

// checksum is the 2-byte integrity tag over the masked payload.
func checksum(mask, payload []byte) [2]byte {
	h := sha256.New()
	h.Write(mask[8:16])
	h.Write(payload)
	var out [2]byte
	copy(out[:], h.Sum(nil)[:2])
	return out
}
