// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Attendance events
	EventTypeCheckinSuccess  EventType = "checkin.success"
	EventTypeCheckinDenied   EventType = "checkin.denied"
	EventTypeCheckinOverride EventType = "checkin.capacity_override"
	EventTypeCheckout        EventType = "checkout"
	EventTypeCodeReprint     EventType = "code.reprint"

	// Pickup events
	EventTypePickupAuthorized  EventType = "pickup.authorized"
	EventTypePickupOverride    EventType = "pickup.override"
	EventTypePickupDenied      EventType = "pickup.denied"
	EventTypePickupRateLimited EventType = "pickup.rate_limited"

	// Authorization list events
	EventTypeAuthListChanged EventType = "authlist.changed"

	// Staff authentication events
	EventTypeAuthSuccess EventType = "auth.success"
	EventTypeAuthFailure EventType = "auth.failure"
	EventTypeAuthzDenied EventType = "authz.denied"

	// Offline kiosk events
	EventTypeOfflineReplay EventType = "offline.replay"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one custody audit record.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	Type     EventType `json:"type"`
	Severity Severity  `json:"severity"`
	Outcome  Outcome   `json:"outcome"`

	// Actor is the staff member, kiosk, or system process that acted.
	Actor Actor `json:"actor"`

	// Child the action concerned, when there is one.
	Child *Subject `json:"child,omitempty"`

	// Source of the request.
	Source Source `json:"source"`

	// Action is the verb: check_in, check_out, verify, record, reprint.
	Action string `json:"action"`

	// Description provides human-readable details.
	Description string `json:"description"`

	// Metadata contains event-specific details.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// RequestID from the originating HTTP request.
	RequestID string `json:"request_id,omitempty"`
}

// Actor represents who performed an action.
type Actor struct {
	// ID is the staff person id, kiosk id, or "system".
	ID string `json:"id"`

	// Type of actor (staff, kiosk, system).
	Type string `json:"type"`

	Name string `json:"name,omitempty"`

	// Role held at the time (staff, supervisor, kiosk).
	Role string `json:"role,omitempty"`
}

// Subject is the child a custody event concerns.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Source represents where a request originated.
type Source struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent,omitempty"`

	// KioskID identifies the terminal for kiosk-originated requests.
	KioskID string `json:"kiosk_id,omitempty"`
}

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Get retrieves an event by ID.
	Get(ctx context.Context, id string) (*Event, error)

	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than the retention cutoff.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter defines filtering options for audit queries.
type QueryFilter struct {
	Types      []EventType `json:"types,omitempty"`
	Severities []Severity  `json:"severities,omitempty"`
	Outcomes   []Outcome   `json:"outcomes,omitempty"`
	ActorID    string      `json:"actor_id,omitempty"`
	ActorType  string      `json:"actor_type,omitempty"`
	ChildID    string      `json:"child_id,omitempty"`
	SourceIP   string      `json:"source_ip,omitempty"`
	StartTime  *time.Time  `json:"start_time,omitempty"`
	EndTime    *time.Time  `json:"end_time,omitempty"`
	RequestID  string      `json:"request_id,omitempty"`

	// SearchText matches against description and action.
	SearchText string `json:"search_text,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}
