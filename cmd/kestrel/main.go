// Kestrel - Transaction limit and fraud evaluation pipeline.
// Copyright (c) 2026 kestrelhq
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelhq/kestrel/internal/aggregate"
	"github.com/kestrelhq/kestrel/internal/api"
	"github.com/kestrelhq/kestrel/internal/bus"
	"github.com/kestrelhq/kestrel/internal/cache"
	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/limits"
	"github.com/kestrelhq/kestrel/internal/normalize"
	"github.com/kestrelhq/kestrel/internal/pipeline"
	"github.com/kestrelhq/kestrel/internal/repository"
	"github.com/kestrelhq/kestrel/internal/scoring"
	"github.com/kestrelhq/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// GlobalTenantID is used for limits that apply to all tenants.
const GlobalTenantID = "*"

func main() {
	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	if url := os.Getenv("KESTREL_PREDICT_URL"); url != "" {
		cfg.Scoring.PredictURL = url
	}
	if os.Getenv("KESTREL_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}

	setupLogger(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Store
	store, err := repository.New(cfg.Store)
	if err != nil {
		slog.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("store initialized", "driver", cfg.Store.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Limit Evaluator
	evaluator, err := limits.NewEvaluator(limits.Options{
		SeverityRatio:      cfg.Limits.SeverityRatio,
		CircumventionRatio: cfg.Limits.CircumventionRatio,
	})
	if err != nil {
		slog.Error("failed to initialize limit evaluator", "error", err)
		os.Exit(1)
	}

	// Load limit policy (an empty database is seeded with the defaults)
	if err := loadLimitsFromDatabase(ctx, store, evaluator); err != nil {
		slog.Error("failed to load limits", "error", err)
		os.Exit(1)
	}
	slog.Info("limit evaluator initialized", "limits_count", evaluator.LimitCount())

	// Initialize Fraud Scoring Adapter
	scoreAdapter, err := setupScoring(ctx, cfg.Scoring)
	if err != nil {
		slog.Error("failed to initialize scoring", "error", err)
		os.Exit(1)
	}

	// Initialize Aggregation Engine and Pipeline
	engine := aggregate.NewEngine(store, cacheImpl, cfg.Cache.AggregateTTL)
	pipe := pipeline.New(normalize.New(), engine, evaluator, scoreAdapter, store, busImpl)
	slog.Info("evaluation pipeline initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, pipe)

		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = []string{envTenants}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, store, cacheImpl, busImpl, pipe, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		asyncWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadLimitsFromDatabase loads limit configs into the evaluator. An
// empty database is seeded with the default policy first; everything
// is editable via the limits API afterwards.
func loadLimitsFromDatabase(ctx context.Context, store domain.Store, evaluator *limits.Evaluator) error {
	configs, err := store.ListLimitConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list limits from database", "error", err)
		return nil // Start with empty limits - they can be added via API
	}

	if len(configs) == 0 {
		configs = domain.DefaultLimitConfigs()
		slog.Info("no limits in database - seeding default policy", "count", len(configs))
		for _, cfg := range configs {
			if err := store.SaveLimitConfig(ctx, GlobalTenantID, cfg); err != nil {
				return fmt.Errorf("failed to seed default limit %s: %w", cfg.ID, err)
			}
		}
	} else {
		slog.Info("loading limits from database", "count", len(configs))
	}

	return evaluator.Load(configs)
}

// setupScoring builds the fraud scoring adapter. With a PredictURL
// configured the HTTP collaborator is used and its feature schema is
// verified at startup; a mismatch aborts the run before any records
// flow. Without one, the static scorer serves dev and test.
func setupScoring(ctx context.Context, cfg domain.ScoringConfig) (*scoring.Adapter, error) {
	var scorer domain.Scorer
	if cfg.PredictURL != "" {
		scorer = scoring.NewHTTPScorer(cfg.PredictURL, "", cfg.Timeout)
		slog.Info("fraud scoring collaborator configured", "url", cfg.PredictURL)
	} else {
		scorer = scoring.NewStaticScorer(0.0)
		slog.Info("fraud scoring using static scorer")
	}

	adapter := scoring.NewAdapter(scorer, cfg)

	if cfg.PredictURL != "" {
		if err := adapter.ValidateSchema(ctx); err != nil {
			return nil, fmt.Errorf("scoring schema validation failed: %w", err)
		}
		slog.Info("scoring schema validated", "model_version", scorer.ModelVersion())
	}

	return adapter, nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("  |                 KESTREL                    |")
	fmt.Println("  |   Transaction Limit & Fraud Evaluation     |")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate          - Evaluate a transaction record")
	fmt.Println("    POST /batch             - Evaluate a CSV batch")
	fmt.Println("    GET  /evaluations/{id}  - Get evaluation by ID")
	fmt.Println("    GET  /transactions/{id} - Get transaction by ID")
	fmt.Println("    GET  /limits            - List loaded limits")
	fmt.Println("    POST /limits            - Create a new limit")
	fmt.Println("    POST /limits/reload     - Hot-reload limits from database")
	fmt.Println("    GET  /summary           - Tenant account statistics")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
