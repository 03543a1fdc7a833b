// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/config"
	"github.com/mayak870/gatehouse/internal/database"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/metrics"
	"github.com/mayak870/gatehouse/internal/models"
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// PINs so responses do not reveal which usernames exist.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrRateLimited means the client IP has exceeded its login
	// attempt budget.
	ErrRateLimited = errors.New("auth: too many login attempts")
)

// dummyHash is compared against when the username is unknown so that
// login latency does not reveal whether the username exists.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Store is the credential lookup the service needs from the database.
type Store interface {
	GetStaffCredential(ctx context.Context, username string) (*models.StaffCredential, error)
}

// AuditSink receives authentication events. *audit.Logger satisfies
// it; a nil sink disables auditing.
type AuditSink interface {
	LogAuthSuccess(ctx context.Context, actor audit.Actor, source audit.Source)
	LogAuthFailure(ctx context.Context, username string, source audit.Source, reason string)
}

// LoginResult is a successful authentication outcome.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	PersonID  int64     `json:"person_id"`
}

// Service authenticates staff logins and issues session tokens.
type Service struct {
	store      Store
	tokens     *JWTManager
	limiter    *LoginLimiter
	auditor    AuditSink
	bcryptCost int
}

// NewService wires the login flow. auditor may be nil.
func NewService(store Store, tokens *JWTManager, cfg config.AuthConfig, auditor AuditSink) *Service {
	cost := cfg.BCryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		store:      store,
		tokens:     tokens,
		limiter:    NewLoginLimiter(cfg.LoginRatePerMinute),
		auditor:    auditor,
		bcryptCost: cost,
	}
}

// Tokens returns the underlying token manager, for kiosk provisioning
// and middleware construction.
func (s *Service) Tokens() *JWTManager { return s.tokens }

// Limiter returns the per-IP login limiter so its cleanup loop can be
// supervised.
func (s *Service) Limiter() *LoginLimiter { return s.limiter }

// Login verifies a username/PIN pair and returns a session token.
// Unknown usernames and wrong PINs both yield ErrInvalidCredentials;
// exceeding the per-IP attempt budget yields ErrRateLimited before
// any credential lookup happens.
func (s *Service) Login(ctx context.Context, username, pin string, source audit.Source) (*LoginResult, error) {
	if !s.limiter.Allow(source.IPAddress) {
		metrics.LoginsTotal.WithLabelValues("rate_limited").Inc()
		logging.Warn().
			Str("username", username).
			Str("ip", source.IPAddress).
			Msg("Login rate limited")
		if s.auditor != nil {
			s.auditor.LogAuthFailure(ctx, username, source, "rate limited")
		}
		return nil, ErrRateLimited
	}

	cred, err := s.store.GetStaffCredential(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		// Burn a comparison so timing matches the wrong-PIN path.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(pin))
		return nil, s.failLogin(ctx, username, source, "unknown username")
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PINHash), []byte(pin)); err != nil {
		return nil, s.failLogin(ctx, username, source, "wrong pin")
	}

	token, err := s.tokens.GenerateToken(cred.Username, cred.Role, cred.PersonID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	logging.Info().
		Str("username", cred.Username).
		Str("role", cred.Role).
		Msg("Staff member authenticated")
	if s.auditor != nil {
		s.auditor.LogAuthSuccess(ctx, audit.StaffActor(cred.PersonID, cred.Username, cred.Role), source)
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokens.ttl),
		Username:  cred.Username,
		Role:      cred.Role,
		PersonID:  cred.PersonID,
	}, nil
}

func (s *Service) failLogin(ctx context.Context, username string, source audit.Source, reason string) error {
	metrics.LoginsTotal.WithLabelValues("bad_credentials").Inc()
	logging.Warn().
		Str("username", username).
		Str("ip", source.IPAddress).
		Str("reason", reason).
		Msg("Login failed")
	if s.auditor != nil {
		s.auditor.LogAuthFailure(ctx, username, source, reason)
	}
	return ErrInvalidCredentials
}

// HashPIN hashes a staff PIN at the configured bcrypt cost, for
// credential provisioning.
func (s *Service) HashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}
