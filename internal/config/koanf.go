// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/mayak870/gatehouse/internal/logging"
)

// DefaultConfigPaths are probed in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"gatehouse.yaml",
	"config/gatehouse.yaml",
	"/etc/gatehouse/config.yaml",
}

// envMappings translates flat operator-facing environment variables to
// koanf keys. Only listed variables are honored; everything else in the
// environment is ignored.
var envMappings = map[string]string{
	"SERVER_HOST":                "server.host",
	"SERVER_PORT":                "server.port",
	"SERVER_TIMEZONE":            "server.timezone",
	"SERVER_CORS_ORIGINS":        "server.cors_origins",
	"SERVER_REQUESTS_PER_MINUTE": "server.requests_per_minute",
	"DATABASE_PATH":              "database.path",
	"SEED_DEMO_DATA":             "database.seed_demo_data",
	"LOG_LEVEL":                  "logging.level",
	"LOG_FORMAT":                 "logging.format",
	"LOG_CALLER":                 "logging.caller",
	"JWT_SECRET":                 "auth.jwt_secret",
	"AUTH_TOKEN_TTL":             "auth.token_ttl",
	"AUTH_KIOSK_TOKEN_TTL":       "auth.kiosk_token_ttl",
	"IDKEY_SECRET":               "idkey.secret",
	"CHECKIN_WARN_PERCENT":       "checkin.capacity_warn_percent",
	"CHECKIN_AUTO_CODE":          "checkin.auto_security_code",
	"CHECKIN_CODE_LENGTH":        "checkin.code_length",
	"RATE_LIMIT_ENABLED":         "rate_limit.enabled",
	"RATE_LIMIT_MAX_ATTEMPTS":    "rate_limit.max_attempts",
	"RATE_LIMIT_WINDOW_MINUTES":  "rate_limit.window_minutes",
	"AUDIT_ENABLED":              "audit.enabled",
	"AUDIT_RETENTION_DAYS":       "audit.retention_days",
	"OFFLINE_ENABLED":            "offline.enabled",
	"OFFLINE_DIR":                "offline.dir",
	"NATS_ENABLED":               "nats.enabled",
	"NATS_URL":                   "nats.url",
	"NATS_TOPIC_PREFIX":          "nats.topic_prefix",
}

// Load builds the effective configuration: defaults, then the first config
// file found (or CONFIG_PATH), then environment overrides, then validation.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		logging.Info().Str("path", path).Msg("loaded config file")
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated env values for slice fields.
	if raw := os.Getenv("SERVER_CORS_ORIGINS"); raw != "" {
		cfg.Server.CORSOrigins = splitCSV(raw)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envTransform maps a raw environment variable name to its koanf key;
// unmapped variables are dropped by returning "".
func envTransform(s string) string {
	if key, ok := envMappings[s]; ok {
		return key
	}
	return ""
}

func findConfigFile() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
