// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package auth

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mayak870/gatehouse/internal/config"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:          "0123456789abcdef0123456789abcdef",
		TokenTTL:           time.Hour,
		KioskTokenTTL:      24 * time.Hour,
		BCryptCost:         4,
		LoginRatePerMinute: 100,
	}
}

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(testAuthConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return m
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	cfg := testAuthConfig()
	cfg.JWTSecret = ""
	if _, err := NewJWTManager(cfg); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := newTestManager(t)

	token, err := m.GenerateToken("msmith", models.RoleStaff, 42)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "msmith" {
		t.Errorf("Username = %q, want msmith", claims.Username)
	}
	if claims.Role != models.RoleStaff {
		t.Errorf("Role = %q, want %q", claims.Role, models.RoleStaff)
	}
	if claims.PersonID != 42 {
		t.Errorf("PersonID = %d, want 42", claims.PersonID)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 55*time.Minute || remaining > time.Hour {
		t.Errorf("token lifetime %v, want about 1h", remaining)
	}
}

func TestKioskTokenUsesKioskRoleAndTTL(t *testing.T) {
	m := newTestManager(t)

	token, err := m.GenerateKioskToken("lobby-1")
	if err != nil {
		t.Fatalf("GenerateKioskToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Role != models.RoleKiosk {
		t.Errorf("Role = %q, want %q", claims.Role, models.RoleKiosk)
	}
	if claims.Username != "lobby-1" {
		t.Errorf("Username = %q, want lobby-1", claims.Username)
	}
	if claims.PersonID != 0 {
		t.Errorf("PersonID = %d, want 0", claims.PersonID)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 23*time.Hour {
		t.Errorf("kiosk token lifetime %v, want about 24h", remaining)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t)

	other := testAuthConfig()
	other.JWTSecret = "ffffffffffffffffffffffffffffffff"
	m2, err := NewJWTManager(other)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	token, err := m2.GenerateToken("msmith", models.RoleStaff, 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Fatal("expected validation to fail for token signed with another secret")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := testAuthConfig()
	cfg.TokenTTL = -time.Minute
	m, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	// The non-positive TTL falls back to the default, so sign an
	// already-expired token directly.
	claims := &Claims{
		Username: "msmith",
		Role:     models.RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.ValidateToken(signed); err == nil {
		t.Fatal("expected validation to fail for expired token")
	}
}

func TestValidateTokenRejectsUnsignedAlgorithm(t *testing.T) {
	m := newTestManager(t)

	claims := &Claims{Username: "msmith", Role: models.RoleStaff}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = m.ValidateToken(signed)
	if err == nil {
		t.Fatal("expected validation to fail for alg=none token")
	}
	if !strings.Contains(err.Error(), "signing method") && !strings.Contains(err.Error(), "token") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m := newTestManager(t)
	for _, token := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := m.ValidateToken(token); err == nil {
			t.Errorf("ValidateToken(%q): expected error", token)
		}
	}
}
