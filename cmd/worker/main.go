package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maximegiguere1one/chiroflow/internal/app"
	"github.com/maximegiguere1one/chiroflow/pkg/config"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
)

// maxOutboxLag is how stale the oldest pending event may get before the
// worker reports itself degraded.
const maxOutboxLag = 5 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := observability.LogLevel(cfg.LogLevel)
	if cfg.IsDevelopment() {
		level = observability.LogLevelDebug
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:          level,
		Format:         observability.LogFormat(cfg.LogFormat),
		Output:         os.Stdout,
		ServiceName:    "chiroflow-worker",
		ServiceVersion: cfg.ServiceVersion,
		Production:     cfg.IsProduction(),
	})
	logger.Info("starting chiroflow worker")

	c, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	processor := c.OutboxProcessor
	if cfg.OutboxProcessorEnabled {
		logger.Info("starting outbox processor",
			"poll_interval", cfg.OutboxPollInterval,
			"batch_size", cfg.OutboxBatchSize,
			"max_retries", cfg.OutboxMaxRetries,
		)
		if err := processor.Start(ctx); err != nil {
			logger.Error("failed to start outbox processor", "error", err)
			os.Exit(1)
		}
	}

	c.Health.Register("outbox", observability.OutboxLagChecker(func() float64 {
		return processor.GetStats().LagSeconds
	}, maxOutboxLag))

	go func() {
		if err := c.OfferExpiryWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("offer expiry worker stopped", "error", err)
		}
	}()

	consumer, err := c.NotificationConsumer()
	if err != nil {
		logger.Error("failed to start notification consumer", "error", err)
		os.Exit(1)
	}
	if consumer != nil {
		defer consumer.Close()
		c.Health.Register("rabbitmq_consumer", observability.RabbitMQHealthChecker(consumer.Check))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification consumer stopped", "error", err)
			}
		}()
	}

	go every(ctx, cfg.OutboxCleanupInterval, func() {
		deleted, err := processor.Cleanup(ctx, cfg.OutboxRetentionDays)
		if err != nil {
			logger.Error("outbox cleanup failed", "error", err)
			return
		}
		if deleted > 0 {
			logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
		}
	})

	go every(ctx, cfg.OutboxStatsInterval, func() {
		stats := processor.GetStats()
		logger.Info("outbox stats",
			"running", stats.IsRunning,
			"published", stats.PublishedCount,
			"failed", stats.FailedCount,
			"dead", stats.DeadCount,
			"lag_seconds", stats.LagSeconds,
			"last_error", stats.LastError,
		)
	})

	if cfg.WorkerHealthAddr != "" {
		startHealthServer(ctx, cfg.WorkerHealthAddr, c, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func startHealthServer(ctx context.Context, addr string, c *app.Container, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := c.OutboxProcessor.GetStats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":            "ok",
			"outbox_running":    stats.IsRunning,
			"offer_sweeper":     c.OfferExpiryWorker.IsRunning(),
			"published":         stats.PublishedCount,
			"failed":            stats.FailedCount,
			"dead":              stats.DeadCount,
			"last_processed_at": stats.LastProcessedAt,
			"last_error":        stats.LastError,
		})
	})
	mux.Handle("/readyz", c.Health.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("health server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()
}
