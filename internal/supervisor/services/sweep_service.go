// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package services

import (
	"context"
	"time"
)

// PickupLimitSweeper matches the pickup verification limiter's cleanup
// loop, which blocks until its context ends and reports nothing.
type PickupLimitSweeper interface {
	RunCleanup(ctx context.Context)
}

// PickupSweepService runs the pickup limiter's expiry sweep under
// supervision.
type PickupSweepService struct {
	limiter PickupLimitSweeper
}

// NewPickupSweepService wraps the pickup verification limiter.
func NewPickupSweepService(limiter PickupLimitSweeper) *PickupSweepService {
	return &PickupSweepService{limiter: limiter}
}

// Serve implements suture.Service. The limiter's loop only returns when
// ctx ends, so the context error is the loop's result.
func (s *PickupSweepService) Serve(ctx context.Context) error {
	s.limiter.RunCleanup(ctx)
	return ctx.Err()
}

// String identifies the service in supervisor logs.
func (s *PickupSweepService) String() string {
	return "pickup-limit-sweep"
}

// LoginLimitSweeper matches the login rate limiter's cleanup loop.
type LoginLimitSweeper interface {
	RunCleanup(ctx context.Context, interval time.Duration) error
}

// LoginSweepService runs the login limiter's idle-bucket sweep at a
// fixed interval under supervision.
type LoginSweepService struct {
	limiter  LoginLimitSweeper
	interval time.Duration
}

// NewLoginSweepService wraps the login limiter, binding the sweep
// interval.
func NewLoginSweepService(limiter LoginLimitSweeper, interval time.Duration) *LoginSweepService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LoginSweepService{limiter: limiter, interval: interval}
}

// Serve implements suture.Service.
func (s *LoginSweepService) Serve(ctx context.Context) error {
	return s.limiter.RunCleanup(ctx, s.interval)
}

// String identifies the service in supervisor logs.
func (s *LoginSweepService) String() string {
	return "login-limit-sweep"
}

// RetentionRunner matches the audit logger's retention loop.
type RetentionRunner interface {
	RunCleanup(ctx context.Context) error
}

// AuditRetentionService runs the audit retention sweep under
// supervision.
type AuditRetentionService struct {
	logger RetentionRunner
}

// NewAuditRetentionService wraps the audit logger's retention loop.
func NewAuditRetentionService(logger RetentionRunner) *AuditRetentionService {
	return &AuditRetentionService{logger: logger}
}

// Serve implements suture.Service.
func (s *AuditRetentionService) Serve(ctx context.Context) error {
	return s.logger.RunCleanup(ctx)
}

// String identifies the service in supervisor logs.
func (s *AuditRetentionService) String() string {
	return "audit-retention"
}
