// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package config loads and validates service configuration.
//
// Sources are layered: struct defaults, then an optional YAML file, then
// environment variables. Environment always wins so containerized
// deployments can override any key without a file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Auth      AuthConfig      `koanf:"auth"`
	IDKey     IDKeyConfig     `koanf:"idkey"`
	Checkin   CheckinConfig   `koanf:"checkin"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Audit     AuditConfig     `koanf:"audit"`
	Offline   OfflineConfig   `koanf:"offline"`
	Events    EventsConfig    `koanf:"events"`
	NATS      NATSConfig      `koanf:"nats"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timezone          string        `koanf:"timezone"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RequestsPerMinute int           `koanf:"requests_per_minute" validate:"gte=1"`
}

// Addr renders the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path            string        `koanf:"path" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`

	// SeedDemoData populates an empty database with demo rooms,
	// families, and staff logins at startup. Demo environments only.
	SeedDemoData bool `koanf:"seed_demo_data"`
}

// LoggingConfig holds global logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// AuthConfig holds JWT and credential settings.
type AuthConfig struct {
	JWTSecret          string        `koanf:"jwt_secret"`
	TokenTTL           time.Duration `koanf:"token_ttl"`
	KioskTokenTTL      time.Duration `koanf:"kiosk_token_ttl"`
	BCryptCost         int           `koanf:"bcrypt_cost" validate:"gte=4,lte=31"`
	LoginRatePerMinute int           `koanf:"login_rate_per_minute" validate:"gte=1"`
}

// IDKeyConfig holds the identifier-obfuscation secret.
type IDKeyConfig struct {
	Secret string `koanf:"secret"`
}

// CheckinConfig tunes the check-in orchestrator.
type CheckinConfig struct {
	// CapacityWarnPercent flags a check-in result as near-capacity once
	// occupancy reaches this percentage of the location's capacity.
	CapacityWarnPercent int `koanf:"capacity_warn_percent" validate:"gte=1,lte=100"`

	// AutoSecurityCode issues a code on every check-in even when the
	// request does not ask for one.
	AutoSecurityCode bool `koanf:"auto_security_code"`

	CodeLength      int `koanf:"code_length" validate:"gte=3,lte=8"`
	CodeMaxAttempts int `koanf:"code_max_attempts" validate:"gte=1"`
}

// RateLimitConfig tunes the pickup-verification attempt limiter.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	MaxAttempts     int           `koanf:"max_attempts" validate:"gte=1"`
	WindowMinutes   int           `koanf:"window_minutes" validate:"gte=1"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// Window returns the attempt window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

// AuditConfig tunes the audit trail.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	RetentionDays   int           `koanf:"retention_days" validate:"gte=1"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	BufferSize      int           `koanf:"buffer_size" validate:"gte=1"`
}

// OfflineConfig tunes the offline kiosk submission queue.
type OfflineConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Dir            string        `koanf:"dir"`
	ReplayInterval time.Duration `koanf:"replay_interval"`
	EntryTTL       time.Duration `koanf:"entry_ttl"`
}

// EventsConfig tunes the in-process event bus.
type EventsConfig struct {
	BufferSize     int           `koanf:"buffer_size" validate:"gte=1"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

// NATSConfig enables the optional JetStream fan-out bridge
// (compiled in with -tags nats).
type NATSConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	TopicPrefix   string        `koanf:"topic_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// Defaults returns the built-in configuration; Load layers file and
// environment sources on top of it.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8425,
			ShutdownTimeout:   10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			RequestsPerMinute: 300,
		},
		Database: DatabaseConfig{
			Path:            "data/gatehouse.db",
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			TokenTTL:           8 * time.Hour,
			KioskTokenTTL:      24 * time.Hour,
			BCryptCost:         12,
			LoginRatePerMinute: 10,
		},
		Checkin: CheckinConfig{
			CapacityWarnPercent: 80,
			AutoSecurityCode:    true,
			CodeLength:          4,
			CodeMaxAttempts:     64,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			MaxAttempts:     5,
			WindowMinutes:   15,
			CleanupInterval: 5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:         true,
			RetentionDays:   365,
			CleanupInterval: 24 * time.Hour,
			BufferSize:      1000,
		},
		Offline: OfflineConfig{
			Enabled:        false,
			Dir:            "data/offline",
			ReplayInterval: 30 * time.Second,
			EntryTTL:       72 * time.Hour,
		},
		Events: EventsConfig{
			BufferSize:     256,
			PublishTimeout: 5 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			TopicPrefix:   "gatehouse",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
	}
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express. Secrets are required because the service refuses to mint
// guessable id keys or tokens.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config validation: auth.jwt_secret must be at least 16 characters")
	}
	if len(c.IDKey.Secret) < 8 {
		return fmt.Errorf("config validation: idkey.secret must be at least 8 characters")
	}
	if c.Offline.Enabled && c.Offline.Dir == "" {
		return fmt.Errorf("config validation: offline.dir is required when offline.enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("config validation: nats.url is required when nats.enabled")
	}
	if c.Server.Timezone != "" {
		if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
			return fmt.Errorf("config validation: server.timezone: %w", err)
		}
	}
	return nil
}

// Location resolves the configured service timezone, defaulting to local.
func (c *Config) Location() *time.Location {
	if c.Server.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Sanitized returns a copy safe for startup logging.
func (c Config) Sanitized() Config {
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.IDKey.Secret = mask(c.IDKey.Secret)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
