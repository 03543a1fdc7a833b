// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mayak870/gatehouse/internal/config"
	"github.com/mayak870/gatehouse/internal/models"
)

// Claims are the JWT claims carried by staff and kiosk tokens.
//
// Username holds the staff login name, or the kiosk identifier for
// kiosk tokens. PersonID is the directory person the credential is
// bound to; it is zero for kiosk tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	PersonID int64  `json:"person_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager creates and validates signed session tokens.
//
// Tokens are signed with HMAC-SHA256. Staff tokens expire after the
// configured token TTL; kiosk tokens use a separate, typically longer,
// TTL so kiosks survive overnight without re-provisioning. Tokens are
// stateless and cannot be revoked before expiry.
type JWTManager struct {
	secret   []byte
	ttl      time.Duration
	kioskTTL time.Duration
}

// NewJWTManager builds a manager from the auth configuration. It fails
// if the signing secret is empty; there is no insecure default.
func NewJWTManager(cfg config.AuthConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required but was empty")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	kioskTTL := cfg.KioskTokenTTL
	if kioskTTL <= 0 {
		kioskTTL = 7 * 24 * time.Hour
	}

	return &JWTManager{
		secret:   []byte(cfg.JWTSecret),
		ttl:      ttl,
		kioskTTL: kioskTTL,
	}, nil
}

// GenerateToken creates a session token for an authenticated staff
// member.
func (m *JWTManager) GenerateToken(username, role string, personID int64) (string, error) {
	return m.sign(username, role, personID, m.ttl)
}

// GenerateKioskToken creates a long-lived token for a provisioned
// kiosk. Kiosk tokens carry the kiosk identifier as the username and
// are limited to the kiosk role.
func (m *JWTManager) GenerateKioskToken(kioskID string) (string, error) {
	return m.sign(kioskID, models.RoleKiosk, 0, m.kioskTTL)
}

// KioskTokenTTL reports the lifetime applied to kiosk tokens.
func (m *JWTManager) KioskTokenTTL() time.Duration {
	return m.kioskTTL
}

func (m *JWTManager) sign(username, role string, personID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		Role:     role,
		PersonID: personID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature, signing algorithm and validity
// window of a token and returns its claims. The algorithm check
// rejects tokens signed with anything but HMAC, which closes the
// algorithm-confusion hole.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
