// Gatehouse - Child Check-In and Secure Pickup Service
// Copyright 2026 Maya K. (mayak870)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mayak870/gatehouse

// Package main is the entry point for the gatehouse server.
//
// Startup order: configuration, logging, DuckDB, audit trail, event bus,
// domain services, HTTP surface, then the supervision tree that runs
// everything until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mayak870/gatehouse/internal/api"
	"github.com/mayak870/gatehouse/internal/audit"
	"github.com/mayak870/gatehouse/internal/auth"
	"github.com/mayak870/gatehouse/internal/checkin"
	"github.com/mayak870/gatehouse/internal/clock"
	"github.com/mayak870/gatehouse/internal/config"
	"github.com/mayak870/gatehouse/internal/database"
	"github.com/mayak870/gatehouse/internal/events"
	"github.com/mayak870/gatehouse/internal/guard"
	"github.com/mayak870/gatehouse/internal/idkey"
	"github.com/mayak870/gatehouse/internal/logging"
	"github.com/mayak870/gatehouse/internal/offline"
	"github.com/mayak870/gatehouse/internal/pickup"
	"github.com/mayak870/gatehouse/internal/ratelimit"
	"github.com/mayak870/gatehouse/internal/securitycode"
	"github.com/mayak870/gatehouse/internal/supervisor"
	"github.com/mayak870/gatehouse/internal/supervisor/services"
	"github.com/mayak870/gatehouse/internal/websocket"
)

// Set via -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("version", version).
		Str("commit", commit).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting gatehouse")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	if cfg.Database.SeedDemoData {
		if err := db.SeedDemoData(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to seed demo data")
		}
	}

	clk := clock.System(cfg.Location())

	// Audit trail, persisted alongside attendance in DuckDB.
	auditStore := audit.NewDuckDBStore(db.Conn())
	if err := auditStore.CreateTable(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create audit events table")
	}
	auditor := audit.NewLogger(auditStore, &audit.Config{
		Enabled:         cfg.Audit.Enabled,
		RetentionDays:   cfg.Audit.RetentionDays,
		CleanupInterval: cfg.Audit.CleanupInterval,
		BufferSize:      cfg.Audit.BufferSize,
	})
	defer func() {
		if err := auditor.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}()

	// In-process event bus feeding the websocket forwarder and, when
	// built with -tags nats, the JetStream mirror.
	bus := events.NewBus(cfg.Events)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	// Domain services.
	issuer := securitycode.New(db, clk, securitycode.Config{
		Length:      cfg.Checkin.CodeLength,
		MaxAttempts: cfg.Checkin.CodeMaxAttempts,
	})
	checkins := checkin.New(db, guard.New(), issuer, clk, checkin.Config{
		CapacityWarnPercent: cfg.Checkin.CapacityWarnPercent,
		AutoSecurityCode:    cfg.Checkin.AutoSecurityCode,
	}, bus)
	pickups := pickup.New(db, clk, bus)
	reprinter := securitycode.NewReprinter(db, auditor)

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), clk, ratelimit.Config{
		Enabled:         cfg.RateLimit.Enabled,
		MaxAttempts:     cfg.RateLimit.MaxAttempts,
		Window:          cfg.RateLimit.Window(),
		CleanupInterval: cfg.RateLimit.CleanupInterval,
	})
	limiter.SetOnLimit(func(e ratelimit.Entry) {
		auditor.LogPickupRateLimited(context.Background(),
			audit.KioskActor(e.Key.OriginID), audit.Source{IPAddress: e.Key.OriginID}, e.Key.AttendanceID)
	})

	// Authentication.
	tokens, err := auth.NewJWTManager(cfg.Auth)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token manager")
	}
	authSvc := auth.NewService(db, tokens, cfg.Auth, auditor)
	authmw := auth.NewMiddleware(tokens, auditor)

	keys, err := idkey.New(cfg.IDKey.Secret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize id key codec")
	}

	hub := websocket.NewHub()
	forwarder := websocket.NewForwarder(bus, hub)

	// Offline kiosk queue, optional.
	var queue *offline.Queue
	var replayer *offline.Replayer
	if cfg.Offline.Enabled {
		queue, err = offline.Open(offline.Config{Dir: cfg.Offline.Dir, EntryTTL: cfg.Offline.EntryTTL})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open offline queue")
		}
		defer func() {
			if err := queue.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing offline queue")
			}
		}()
		replayer = offline.NewReplayer(queue, checkins, auditor, cfg.Offline.ReplayInterval, cfg.Offline.EntryTTL)
		logging.Info().Str("dir", cfg.Offline.Dir).Msg("Offline queue enabled")
	} else {
		logging.Info().Msg("Offline queue disabled (OFFLINE_ENABLED=false)")
	}

	deps := api.Deps{
		Checkins:       checkins,
		Pickups:        pickups,
		Auth:           authSvc,
		KioskTokens:    tokens,
		Authorizations: db,
		Analytics:      db,
		Auditor:        auditor,
		Reprinter:      reprinter,
		Health:         db,
		Limiter:        limiter,
		Keys:           keys,
		Hub:            hub,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
	if queue != nil {
		deps.OfflineQueue = queue
	}
	handler := api.NewHandler(deps)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(cfg, handler, authmw),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervision tree. The slog adapter bridges zerolog to sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	tree.AddMaintenanceService(services.NewAuditRetentionService(auditor))
	tree.AddMaintenanceService(services.NewLoginSweepService(authSvc.Limiter(), time.Minute))
	if cfg.RateLimit.Enabled {
		tree.AddMaintenanceService(services.NewPickupSweepService(limiter))
	}
	if replayer != nil {
		tree.AddMaintenanceService(replayer)
	}

	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddMessagingService(forwarder)

	if cfg.NATS.Enabled {
		bridge, err := events.NewNATSBridge(bus, cfg.NATS)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize NATS bridge")
		}
		defer func() {
			if err := bridge.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing NATS bridge")
			}
		}()
		tree.AddMessagingService(bridge)
		logging.Info().Str("url", cfg.NATS.URL).Msg("NATS bridge enabled")
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Gatehouse stopped")
}
