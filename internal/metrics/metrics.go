// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package metrics defines the Prometheus collectors for the service.
// Collectors are registered at init via promauto and exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckinsTotal counts check-in attempts by structured outcome
	// (success, at_capacity, already_checked_in, ...).
	CheckinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "checkin",
			Name:      "attempts_total",
			Help:      "Check-in attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// CheckinDuration observes end-to-end check-in latency, including the
	// guarded critical section.
	CheckinDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gatehouse",
			Subsystem: "checkin",
			Name:      "duration_seconds",
			Help:      "Check-in latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// CheckoutsTotal counts completed check-outs.
	CheckoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "checkin",
			Name:      "checkouts_total",
			Help:      "Completed check-outs.",
		},
	)

	// Occupancy tracks open attendances per location.
	Occupancy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gatehouse",
			Subsystem: "checkin",
			Name:      "occupancy",
			Help:      "Open attendances per location.",
		},
		[]string{"location"},
	)

	// LockWaitDuration observes time spent waiting for a location lock.
	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gatehouse",
			Subsystem: "guard",
			Name:      "lock_wait_seconds",
			Help:      "Wait time for the per-location lock.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// CodeCollisions counts security-code generation retries.
	CodeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "securitycode",
			Name:      "collisions_total",
			Help:      "Security-code collisions requiring regeneration.",
		},
	)

	// PickupVerifications counts verification calls by result
	// (authorized, denied, invalid_code, blocked).
	PickupVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "pickup",
			Name:      "verifications_total",
			Help:      "Pickup verifications by result.",
		},
		[]string{"result"},
	)

	// PickupsRecorded counts durable pickup commits by kind
	// (authorized, override).
	PickupsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "pickup",
			Name:      "recorded_total",
			Help:      "Recorded pickups by kind.",
		},
		[]string{"kind"},
	)

	// RateLimitedTotal counts pickup verifications rejected by the
	// attempt limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "pickup",
			Name:      "rate_limited_total",
			Help:      "Verification attempts rejected by the rate limiter.",
		},
	)

	// EventsPublished counts bus publishes by topic.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published to the bus by topic.",
		},
		[]string{"topic"},
	)

	// WebsocketClients tracks connected dashboard clients.
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gatehouse",
			Subsystem: "websocket",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		},
	)

	// OfflinePending tracks queued offline submissions awaiting replay.
	OfflinePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gatehouse",
			Subsystem: "offline",
			Name:      "pending",
			Help:      "Offline submissions awaiting replay.",
		},
	)

	// LoginsTotal counts staff login attempts by result
	// (success, bad_credentials, rate_limited).
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gatehouse",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Staff login attempts by result.",
		},
		[]string{"result"},
	)

	// HTTPRequestDuration observes handler latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gatehouse",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// ObserveCheckin records one check-in attempt.
func ObserveCheckin(outcome string, took time.Duration) {
	CheckinsTotal.WithLabelValues(outcome).Inc()
	CheckinDuration.Observe(took.Seconds())
}

// NewLockWaitTimer starts a timer against LockWaitDuration. Call
// ObserveDuration on the result once the lock is acquired or abandoned.
func NewLockWaitTimer() *prometheus.Timer {
	return prometheus.NewTimer(LockWaitDuration)
}
