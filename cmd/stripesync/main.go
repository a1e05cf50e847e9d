package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tx-stripe/stripe-sync-engine/internal/adminapi"
	"github.com/tx-stripe/stripe-sync-engine/internal/audit"
	"github.com/tx-stripe/stripe-sync-engine/internal/config"
	"github.com/tx-stripe/stripe-sync-engine/internal/platform"
	"github.com/tx-stripe/stripe-sync-engine/internal/telemetry"
	"github.com/tx-stripe/stripe-sync-engine/pkg/syncengine"
)

func main() {
	mode := flag.String("mode", "", "run mode: api or worker (overrides STRIPE_SYNC_MODE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := platform.NewPostgresPool(ctx, platform.PoolConfig{
		ConnectionString: cfg.DatabaseURL,
		Max:              cfg.PoolMax,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := platform.RunMigrations(ctx, pool, cfg.DatabaseURL, cfg.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()
	}

	engine := syncengine.New(pool, redisClient, syncengine.Config{
		Schema:                  cfg.Schema,
		StripeSecretKey:         cfg.StripeSecretKey,
		StripeAPIVersion:        cfg.StripeAPIVersion,
		WebhookSecret:           cfg.WebhookSecret,
		AutoExpandLists:         cfg.AutoExpandLists,
		BackfillRelatedEntities: cfg.BackfillRelatedEntities,
		MaxConcurrent:           cfg.MaxConcurrent,
		PageSize:                cfg.PageSize,
		SlackBotToken:           cfg.SlackBotToken,
		SlackChannel:            cfg.SlackChannel,
	}, logger)
	defer engine.Close()

	auditWriter := audit.NewWriter(engine.Store(), logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	switch cfg.Mode {
	case "worker":
		return runWorker(ctx, engine, cfg, logger)
	default:
		return runAPI(ctx, engine, cfg, logger, auditWriter)
	}
}

func runAPI(ctx context.Context, engine *syncengine.Engine, cfg *config.Config, logger *slog.Logger, auditWriter *audit.Writer) error {
	reg := telemetry.NewRegistry()
	server := adminapi.NewServer(engine, logger, auditWriter, reg, cfg.AdminAPIKey, cfg.CORSAllowedOrigins)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", "addr", cfg.ListenAddr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceMs)*time.Millisecond)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker periodically drives every account kind to completion instead of
// exposing the admin HTTP surface — for deployments that want a headless
// poller rather than an operator-triggered API (spec §6, cmd/stripesync
// worker mode).
func runWorker(ctx context.Context, engine *syncengine.Engine, cfg *config.Config, logger *slog.Logger) error {
	ticker := time.NewTicker(time.Duration(cfg.PollIntervalSeconds) * time.Second)
	defer ticker.Stop()

	runOnce := func() {
		results, err := engine.ProcessUntilDone(ctx, "worker_poll")
		if err != nil {
			logger.Error("worker backfill run failed", "error", err)
			return
		}
		logger.Info("worker backfill run complete", "kinds", len(results))
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}
