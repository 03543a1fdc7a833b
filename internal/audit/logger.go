// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package audit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mayak870/gatehouse/internal/logging"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// RetentionDays is how long to keep audit records.
	RetentionDays int `json:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		RetentionDays:   365,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
	}
}

// Logger writes audit events asynchronously through a bounded buffer.
// A full buffer drops the event with a warning rather than blocking the
// check-in path.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLogger creates the audit logger and starts its writer goroutine.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events before exiting.
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to save audit event")
	}
}

// Log records an audit event. Never blocks.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.config.Enabled
	l.mu.RUnlock()

	if !enabled {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Str("type", string(event.Type)).
			Msg("Audit event buffer full, dropping event")
	}
}

// Close shuts down the logger, draining the buffer.
func (l *Logger) Close() error {
	close(l.stopChan)
	l.wg.Wait()
	return nil
}

// RunCleanup blocks and periodically deletes events past retention.
// Runs under the supervision tree; returns when ctx is canceled.
func (l *Logger) RunCleanup(ctx context.Context) error {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	retention := l.config.RetentionDays
	l.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retention)
			count, err := l.store.Delete(ctx, cutoff)
			if err != nil {
				logging.Error().Err(err).Msg("Audit cleanup error")
			} else if count > 0 {
				logging.Info().Int64("count", count).Msg("Cleaned up expired audit events")
			}
		}
	}
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

// Helper methods for the custody events the services emit.

// LogCheckin records a completed or denied check-in.
func (l *Logger) LogCheckin(ctx context.Context, actor Actor, source Source, child Subject, outcome string, attendanceID int64) {
	evt := &Event{
		Type:        EventTypeCheckinSuccess,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Child:       &child,
		Source:      source,
		Action:      "check_in",
		Description: "Child checked in",
		Metadata: mustJSON(map[string]interface{}{
			"outcome":       outcome,
			"attendance_id": attendanceID,
		}),
		RequestID: getRequestID(ctx),
	}
	if outcome != "success" {
		evt.Type = EventTypeCheckinDenied
		evt.Severity = SeverityWarning
		evt.Outcome = OutcomeFailure
		evt.Description = "Check-in denied: " + outcome
	}
	l.Log(evt)
}

// LogCapacityOverride records a supervisor admitting past a full room.
func (l *Logger) LogCapacityOverride(ctx context.Context, actor Actor, source Source, child Subject, locationID, supervisorID int64) {
	l.Log(&Event{
		Type:        EventTypeCheckinOverride,
		Severity:    SeverityWarning,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Child:       &child,
		Source:      source,
		Action:      "check_in",
		Description: "Capacity override admitted past a full room",
		Metadata: mustJSON(map[string]interface{}{
			"location_id":   locationID,
			"supervisor_id": supervisorID,
		}),
		RequestID: getRequestID(ctx),
	})
}

// LogCheckout records a plain checkout.
func (l *Logger) LogCheckout(ctx context.Context, actor Actor, source Source, child Subject, attendanceID int64) {
	l.Log(&Event{
		Type:        EventTypeCheckout,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Child:       &child,
		Source:      source,
		Action:      "check_out",
		Description: "Child checked out",
		Metadata:    mustJSON(map[string]interface{}{"attendance_id": attendanceID}),
		RequestID:   getRequestID(ctx),
	})
}

// LogPickupRecorded records a completed release, override or not.
func (l *Logger) LogPickupRecorded(ctx context.Context, actor Actor, source Source, child Subject, pickupLogID int64, override bool) {
	evt := &Event{
		Type:        EventTypePickupAuthorized,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Child:       &child,
		Source:      source,
		Action:      "record",
		Description: "Authorized pickup recorded",
		Metadata:    mustJSON(map[string]interface{}{"pickup_log_id": pickupLogID}),
		RequestID:   getRequestID(ctx),
	}
	if override {
		evt.Type = EventTypePickupOverride
		evt.Severity = SeverityWarning
		evt.Description = "Pickup recorded under supervisor override"
	}
	l.Log(evt)
}

// LogPickupDenied records a failed verification attempt.
func (l *Logger) LogPickupDenied(ctx context.Context, actor Actor, source Source, child Subject, reason string) {
	l.Log(&Event{
		Type:        EventTypePickupDenied,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       actor,
		Child:       &child,
		Source:      source,
		Action:      "verify",
		Description: "Pickup verification denied: " + reason,
		Metadata:    mustJSON(map[string]string{"reason": reason}),
		RequestID:   getRequestID(ctx),
	})
}

// LogPickupRateLimited records a verification attempt refused by the
// failed-attempt limiter.
func (l *Logger) LogPickupRateLimited(ctx context.Context, actor Actor, source Source, attendanceID int64) {
	l.Log(&Event{
		Type:        EventTypePickupRateLimited,
		Severity:    SeverityCritical,
		Outcome:     OutcomeFailure,
		Actor:       actor,
		Source:      source,
		Action:      "verify",
		Description: "Pickup verification rate limited for attendance " + strconv.FormatInt(attendanceID, 10),
		Metadata:    mustJSON(map[string]interface{}{"attendance_id": attendanceID}),
		RequestID:   getRequestID(ctx),
	})
}

// LogCodeReprint records a supervisor reissuing a security code slip.
func (l *Logger) LogCodeReprint(ctx context.Context, actor Actor, source Source, child Subject, attendanceID int64) {
	l.Log(&Event{
		Type:        EventTypeCodeReprint,
		Severity:    SeverityWarning,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Child:       &child,
		Source:      source,
		Action:      "reprint",
		Description: "Security code reprinted",
		Metadata:    mustJSON(map[string]interface{}{"attendance_id": attendanceID}),
		RequestID:   getRequestID(ctx),
	})
}

// LogAuthListChange records an authorization list edit.
func (l *Logger) LogAuthListChange(ctx context.Context, actor Actor, source Source, child Subject, action, detail string) {
	l.Log(&Event{
		Type:        EventTypeAuthListChanged,
		Severity:    SeverityWarning,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Child:       &child,
		Source:      source,
		Action:      action,
		Description: detail,
		RequestID:   getRequestID(ctx),
	})
}

// LogAuthSuccess logs a successful staff authentication.
func (l *Logger) LogAuthSuccess(ctx context.Context, actor Actor, source Source) {
	l.Log(&Event{
		Type:        EventTypeAuthSuccess,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Source:      source,
		Action:      "authenticate",
		Description: "Staff member authenticated",
		RequestID:   getRequestID(ctx),
	})
}

// LogAuthFailure logs a failed staff authentication attempt.
func (l *Logger) LogAuthFailure(ctx context.Context, username string, source Source, reason string) {
	l.Log(&Event{
		Type:     EventTypeAuthFailure,
		Severity: SeverityWarning,
		Outcome:  OutcomeFailure,
		Actor: Actor{
			ID:   username,
			Type: "staff",
			Name: username,
		},
		Source:      source,
		Action:      "authenticate",
		Description: "Authentication failed: " + reason,
		Metadata:    mustJSON(map[string]string{"reason": reason}),
		RequestID:   getRequestID(ctx),
	})
}

// LogAuthzDenied logs a role check refusing an action.
func (l *Logger) LogAuthzDenied(ctx context.Context, actor Actor, source Source, resource string) {
	l.Log(&Event{
		Type:        EventTypeAuthzDenied,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       actor,
		Source:      source,
		Action:      "authorize",
		Description: "Authorization denied for " + resource,
		Metadata:    mustJSON(map[string]string{"resource": resource}),
		RequestID:   getRequestID(ctx),
	})
}

// LogOfflineReplay records a batch of queued kiosk submissions replayed.
func (l *Logger) LogOfflineReplay(ctx context.Context, kioskID string, replayed, failed int) {
	l.Log(&Event{
		Type:     EventTypeOfflineReplay,
		Severity: SeverityInfo,
		Outcome:  OutcomeSuccess,
		Actor: Actor{
			ID:   kioskID,
			Type: "kiosk",
		},
		Source:      Source{KioskID: kioskID},
		Action:      "replay",
		Description: "Offline kiosk queue replayed",
		Metadata: mustJSON(map[string]int{
			"replayed": replayed,
			"failed":   failed,
		}),
	})
}

// mustJSON converts a value to JSON, returning empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return logging.RequestIDFromContext(ctx)
}

// SourceFromRequest creates a Source from an HTTP request.
func SourceFromRequest(r *http.Request) Source {
	ip := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = xff
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip = xri
	}

	return Source{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		KioskID:   r.Header.Get("X-Kiosk-ID"),
	}
}

// StaffActor builds an Actor for an authenticated staff member.
func StaffActor(personID int64, name, role string) Actor {
	return Actor{
		ID:   strconv.FormatInt(personID, 10),
		Type: "staff",
		Name: name,
		Role: role,
	}
}

// ChildSubject builds the Subject for a directory person.
func ChildSubject(personID int64, name string) Subject {
	return Subject{
		ID:   strconv.FormatInt(personID, 10),
		Name: name,
	}
}

// KioskActor builds an Actor for a provisioned kiosk.
func KioskActor(kioskID string) Actor {
	return Actor{
		ID:   kioskID,
		Type: "kiosk",
		Name: kioskID,
	}
}

// SystemActor returns an Actor representing the service itself.
func SystemActor() Actor {
	return Actor{
		ID:   "system",
		Type: "system",
		Name: "Gatehouse",
	}
}
