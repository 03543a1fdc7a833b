// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/mayak870/gatehouse/internal/logging"
)

// DuckDBStore implements Store using DuckDB for durable audit records.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a new DuckDB-backed audit store. Call
// CreateTable before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			outcome TEXT NOT NULL,

			actor_id TEXT NOT NULL,
			actor_type TEXT NOT NULL,
			actor_name TEXT,
			actor_role TEXT,

			child_id TEXT,
			child_name TEXT,

			source_ip TEXT NOT NULL,
			source_user_agent TEXT,
			source_kiosk_id TEXT,

			action TEXT NOT NULL,
			description TEXT NOT NULL,
			metadata JSON,
			request_id TEXT,

			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type);
		CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_events(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_child_id ON audit_events(child_id);
		CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_events(request_id);
	`

	for _, stmt := range strings.Split(query, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute audit schema statement: %w", err)
		}
	}

	logging.Info().Msg("Audit events table created/verified")
	return nil
}

// Save persists an audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	var childID, childName *string
	if event.Child != nil {
		childID = &event.Child.ID
		if event.Child.Name != "" {
			childName = &event.Child.Name
		}
	}

	metadata := "{}"
	if len(event.Metadata) > 0 {
		metadata = string(event.Metadata)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, timestamp, type, severity, outcome,
			actor_id, actor_type, actor_name, actor_role,
			child_id, child_name,
			source_ip, source_user_agent, source_kiosk_id,
			action, description, metadata, request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Timestamp,
		string(event.Type),
		string(event.Severity),
		string(event.Outcome),
		event.Actor.ID,
		event.Actor.Type,
		event.Actor.Name,
		event.Actor.Role,
		childID,
		childName,
		event.Source.IPAddress,
		event.Source.UserAgent,
		event.Source.KioskID,
		event.Action,
		event.Description,
		metadata,
		event.RequestID,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

const selectColumns = `
	id, timestamp, type, severity, outcome,
	actor_id, actor_type, actor_name, actor_role,
	child_id, child_name,
	source_ip, source_user_agent, source_kiosk_id,
	action, description, metadata, request_id`

// Get retrieves an event by ID.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+selectColumns+" FROM audit_events WHERE id = ?", id)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return event, nil
}

// Query retrieves events matching the filter, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	where, args := buildWhere(&filter)

	query := "SELECT" + selectColumns + " FROM audit_events" + where +
		" ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := buildWhere(&filter)

	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// Delete removes events older than the given time.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_events WHERE timestamp < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return deleted, nil
}

// buildWhere assembles the WHERE clause and argument list for a filter.
func buildWhere(filter *QueryFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if c := inCondition("type", filter.Types, &args); c != "" {
		conds = append(conds, c)
	}
	if c := inCondition("severity", filter.Severities, &args); c != "" {
		conds = append(conds, c)
	}
	if c := inCondition("outcome", filter.Outcomes, &args); c != "" {
		conds = append(conds, c)
	}
	if filter.ActorID != "" {
		conds = append(conds, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.ActorType != "" {
		conds = append(conds, "actor_type = ?")
		args = append(args, filter.ActorType)
	}
	if filter.ChildID != "" {
		conds = append(conds, "child_id = ?")
		args = append(args, filter.ChildID)
	}
	if filter.SourceIP != "" {
		conds = append(conds, "source_ip = ?")
		args = append(args, filter.SourceIP)
	}
	if filter.StartTime != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}
	if filter.RequestID != "" {
		conds = append(conds, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if filter.SearchText != "" {
		conds = append(conds, "(description ILIKE ? OR action ILIKE ?)")
		pattern := "%" + filter.SearchText + "%"
		args = append(args, pattern, pattern)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// inCondition creates a SQL IN clause for a slice of string-kinded values.
func inCondition[T ~string](column string, values []T, args *[]interface{}) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		event     Event
		eventType string
		severity  string
		outcome   string
		actorName sql.NullString
		actorRole sql.NullString
		childID   sql.NullString
		childName sql.NullString
		userAgent sql.NullString
		kioskID   sql.NullString
		metadata  sql.NullString
		requestID sql.NullString
	)

	err := row.Scan(
		&event.ID, &event.Timestamp, &eventType, &severity, &outcome,
		&event.Actor.ID, &event.Actor.Type, &actorName, &actorRole,
		&childID, &childName,
		&event.Source.IPAddress, &userAgent, &kioskID,
		&event.Action, &event.Description, &metadata, &requestID,
	)
	if err != nil {
		return nil, err
	}

	event.Type = EventType(eventType)
	event.Severity = Severity(severity)
	event.Outcome = Outcome(outcome)
	event.Actor.Name = actorName.String
	event.Actor.Role = actorRole.String
	event.Source.UserAgent = userAgent.String
	event.Source.KioskID = kioskID.String
	event.RequestID = requestID.String

	if childID.Valid {
		event.Child = &Subject{ID: childID.String, Name: childName.String}
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "{}" {
		event.Metadata = json.RawMessage(metadata.String)
	}

	return &event, nil
}
