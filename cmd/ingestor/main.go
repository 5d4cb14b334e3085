// Command ingestor runs the order audit trail ingestion pipeline: the
// Consumer Loop, Dispatcher, Metrics Recorder, and the admin replay surface,
// wired together and supervised until shutdown (spec.md §5, §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JoshuaWink/tcg-order-audit-trail/internal/admin"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/bus"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/config"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/dispatch"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/event"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/logging"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/messaging"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/metrics"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/schema"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/storage"
	"github.com/JoshuaWink/tcg-order-audit-trail/internal/validate"
)

// Exit codes (spec.md §6).
const (
	exitOK            = 0
	exitConfigInvalid = 1
	exitStoreDown     = 2
	exitBusDown       = 3
)

// shutdownGrace bounds how long in-flight work gets to drain once a shutdown
// signal arrives before the process exits anyway (spec.md §5).
const shutdownGrace = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet — configuration failed before we know the service name.
		fmt.Fprintln(os.Stderr, "config error:", err.Error())
		return exitConfigInvalid
	}

	logger := logging.New(cfg.ServiceName)
	defer logger.Sync()

	logger.Info("starting service", map[string]any{
		"service_name": cfg.ServiceName,
		"cursor_mode":  cfg.CursorMode,
	})

	registry, err := schema.Load(cfg.TopicRegistryFile)
	if err != nil {
		logger.Error("failed to load topic registry", map[string]any{"error": err.Error()})
		return exitConfigInvalid
	}
	logger.Info("topic registry loaded", map[string]any{"topics": len(registry.Topics())})

	// ── Store ──────────────────────────────────────────────────
	store, err := storage.Open(cfg.DSN(), cfg.DBMinPoolSize, cfg.DBMaxPoolSize, cfg.DBConnectTimeout, storage.BreakerConfig{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		OpenTimeout:      cfg.CircuitBreakerOpenTimeout,
	})
	if err != nil {
		logger.Error("failed to connect to store", map[string]any{"error": err.Error()})
		return exitStoreDown
	}
	defer store.Close()
	logger.Info("connected to store", map[string]any{})

	if err := storage.Migrate(store.DB()); err != nil {
		logger.Error("migration failed", map[string]any{"error": err.Error()})
		return exitStoreDown
	}
	logger.Info("migrations applied", map[string]any{})

	// ── Metrics Recorder ───────────────────────────────────────
	recorder := metrics.New(store, logger, cfg.MetricsQueueCapacity, cfg.MetricsFlushInterval)

	// ── Validator, Dispatcher ──────────────────────────────────
	validator := validate.New(validate.SkewConfig{
		MaxPast:   time.Duration(cfg.TimestampSkewPastDays) * 24 * time.Hour,
		MaxFuture: time.Duration(cfg.TimestampSkewFutureSeconds) * time.Second,
	})

	retryCfg := messaging.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	retryCfg.BaseDelay = cfg.BackoffInitial
	retryCfg.MaxDelay = cfg.BackoffMax

	dispatcher := dispatch.New(registry, validator, store, recorder, logger, retryCfg, cfg.CursorMode, cfg.ConsumerGroupID)

	// ── Admin HTTP surface ─────────────────────────────────────
	replayer := admin.NewReplayer(store, func(ctx context.Context, raw []byte, coords event.BusCoordinates) (bool, bool, string) {
		outcome := dispatcher.Dispatch(ctx, raw, coords)
		return outcome.Committed, outcome.DeadLettered, outcome.Kind
	})
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: admin.NewRouter(replayer, logger),
	}

	// ── Consumer Loop ──────────────────────────────────────────
	consumer, err := bus.New(bus.Config{
		BootstrapServers: cfg.BootstrapServers,
		ConsumerGroupID:  cfg.ConsumerGroupID,
		Topics:           registry.Topics(),
		AutoOffsetReset:  cfg.AutoOffsetReset,
		MaxPollInterval:  cfg.MaxPollInterval,
		FetchMaxBytes:    cfg.FetchMaxBytes,
		MaxPollRecords:   cfg.MaxPollRecords,
		CursorMode:       cfg.CursorMode,
	}, store, func(ctx context.Context, raw []byte, coords event.BusCoordinates) bool {
		return dispatcher.Dispatch(ctx, raw, coords).Committed
	}, logger)
	if err != nil {
		logger.Error("failed to start consumer", map[string]any{"error": err.Error()})
		return exitBusDown
	}
	defer consumer.Close()

	// ── Shutdown wiring ────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown signal received", map[string]any{"signal": sig.String()})
		cancel()

		timer := time.NewTimer(shutdownGrace)
		defer timer.Stop()
		<-timer.C
		logger.Warn("shutdown grace period elapsed, forcing exit", map[string]any{})
		os.Exit(exitOK)
	}()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		recorder.Run(gctx)
		return nil
	})

	group.Go(func() error {
		if err := consumer.Run(gctx); err != nil {
			logger.Error("consumer loop stopped", map[string]any{"error": err.Error()})
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.Info("admin server listening", map[string]any{"addr": cfg.AdminAddr})
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		return adminServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("service exited with error", map[string]any{"error": err.Error()})
		return exitBusDown
	}

	logger.Info("service stopped", map[string]any{})
	return exitOK
}
