// Package workers runs the waitlist's background loops.
package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/maximegiguere1one/chiroflow/internal/waitlist/application/commands"
)

// DefaultSweepInterval is the default interval between expiry sweeps.
const DefaultSweepInterval = time.Minute

// Sweeper runs one expiry sweep.
type Sweeper interface {
	Handle(ctx context.Context, cmd commands.ExpireOffersCommand) (*commands.ExpireOffersResult, error)
}

// OfferExpiryWorkerConfig configures the expiry worker.
type OfferExpiryWorkerConfig struct {
	Interval time.Duration
	Limit    int
}

// DefaultOfferExpiryWorkerConfig returns the default configuration.
func DefaultOfferExpiryWorkerConfig() OfferExpiryWorkerConfig {
	return OfferExpiryWorkerConfig{
		Interval: DefaultSweepInterval,
		Limit:    commands.DefaultSweepLimit,
	}
}

// OfferExpiryWorker periodically closes slot offers whose deadline
// passed without an acceptance.
type OfferExpiryWorker struct {
	sweeper Sweeper
	config  OfferExpiryWorkerConfig
	logger  *slog.Logger
	running atomic.Bool
	stopCh  chan struct{}
}

// NewOfferExpiryWorker creates a new offer expiry worker.
func NewOfferExpiryWorker(sweeper Sweeper, config OfferExpiryWorkerConfig, logger *slog.Logger) *OfferExpiryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	return &OfferExpiryWorker{
		sweeper: sweeper,
		config:  config,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled
// or Stop is called.
func (w *OfferExpiryWorker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)
	w.logger.Info("offer expiry worker started", "interval", w.config.Interval)

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("offer expiry worker stopped (context cancelled)")
			return ctx.Err()
		case <-w.stopCh:
			w.logger.Info("offer expiry worker stopped (stop signal)")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop signals the worker to stop gracefully.
func (w *OfferExpiryWorker) Stop() {
	if w.running.CompareAndSwap(true, false) {
		close(w.stopCh)
	}
}

// IsRunning returns true if the worker is currently running.
func (w *OfferExpiryWorker) IsRunning() bool {
	return w.running.Load()
}

// RunOnce performs a single sweep. Failures are logged; the next tick
// retries whatever is still due.
func (w *OfferExpiryWorker) RunOnce(ctx context.Context) *commands.ExpireOffersResult {
	res, err := w.sweeper.Handle(ctx, commands.ExpireOffersCommand{Limit: w.config.Limit})
	if err != nil {
		w.logger.Error("offer expiry sweep failed", "error", err)
		return nil
	}
	if res.Due > 0 {
		w.logger.Info("offer expiry sweep completed",
			"due", res.Due,
			"expired", res.Expired,
			"failed", res.Failed,
		)
	}
	return res
}
