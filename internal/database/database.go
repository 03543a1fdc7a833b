// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package database provides the DuckDB-backed persistence layer: the
// directory (persons, locations, schedules), the attendance trail,
// security codes, standing pickup authorizations and pickup logs.
//
// All access goes through database/sql; store methods are grouped per
// entity in the sibling files.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/mayak870/gatehouse/internal/config"
	"github.com/mayak870/gatehouse/internal/logging"
)

// DB wraps the sql.DB handle for the embedded DuckDB file.
type DB struct {
	db *sql.DB
}

// New opens (creating if needed) the DuckDB database at cfg.Path, applies
// pool settings, and ensures the schema exists.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	d := &DB{db: db}
	if err := d.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Msg("database ready")
	return d, nil
}

// Conn exposes the underlying handle for collaborators that manage their
// own tables (the audit store).
func (d *DB) Conn() *sql.DB {
	return d.db
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Health verifies the connection is still serviceable.
func (d *DB) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
