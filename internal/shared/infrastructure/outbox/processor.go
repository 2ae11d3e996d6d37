package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/maximegiguere1one/chiroflow/internal/shared/domain"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/eventbus"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
)

// ProcessorConfig holds configuration for the outbox processor.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultProcessorConfig returns the relay defaults. A booking's
// notification link normally leaves within one poll.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}
}

// Processor relays committed outbox messages to the publisher. Each
// failure reschedules the message with exponential backoff until
// MaxRetries, after which it is dead-lettered and kept for inspection.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	published atomic.Uint64
	failed    atomic.Uint64
	dead      atomic.Uint64

	statsMu         sync.Mutex
	lagSeconds      float64
	lastError       string
	lastErrorAt     *time.Time
	lastProcessedAt *time.Time
	oldestAt        *time.Time
}

// NewProcessor creates a new outbox processor.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		metrics:   observability.NoopMetrics{},
		now:       time.Now,
	}
}

// WithMetrics records publish counters and relay lag on m.
func (p *Processor) WithMetrics(m observability.Metrics) *Processor {
	if m != nil {
		p.metrics = m
	}
	return p
}

// WithClock sets the time source used for retry scheduling and lag.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	if now != nil {
		p.now = now
	}
	return p
}

// Start launches the polling loop. Starting a running processor is a
// no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.stop = make(chan struct{})

	p.wg.Add(1)
	go p.loop(ctx, p.stop)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
	return nil
}

// Stop ends the loop and waits for the current batch.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("outbox processor stopped")
}

// IsRunning returns true if the processor is running.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) loop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch synchronously. Tests and the CLI use it
// to flush pending notifications without a running loop.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	messages, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return err
	}
	p.noteBatch(messages)

	for _, msg := range messages {
		p.relay(ctx, msg)
	}
	return nil
}

func (p *Processor) relay(ctx context.Context, msg *Message) {
	key := observability.T("routing_key", msg.RoutingKey)

	if err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload); err != nil {
		p.metrics.Counter(observability.MetricEventsFailed, 1, key)
		p.fail(ctx, msg, err)
		return
	}

	if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
		// The message is relayed again next poll; consumers dedupe on event_id.
		p.logger.Error("failed to mark message as published",
			"id", msg.ID,
			"event_id", msg.EventID,
			"error", err,
		)
		return
	}
	p.published.Add(1)
	p.metrics.Counter(observability.MetricEventsPublished, 1, key)
}

func (p *Processor) fail(ctx context.Context, msg *Message, err error) {
	meta := decodeMetadata(msg)
	attempt := msg.RetryCount + 1
	deadLetter := p.config.MaxRetries <= 0 || attempt >= p.config.MaxRetries

	p.logger.Warn("failed to publish message",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"correlation_id", meta.CorrelationID,
		"actor_id", meta.ActorID,
		"attempt", attempt,
		"dead_letter", deadLetter,
		"error", err,
	)
	p.noteError(err)

	if deadLetter {
		p.dead.Add(1)
		if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error()); markErr != nil {
			p.logger.Error("failed to dead-letter message", "id", msg.ID, "error", markErr)
		}
		return
	}

	p.failed.Add(1)
	next := p.now().Add(p.retryDelay(attempt))
	if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), next); markErr != nil {
		p.logger.Error("failed to reschedule message", "id", msg.ID, "error", markErr)
	}
}

// retryDelay is the wait before the given attempt number, doubling from
// RetryBackoffBase up to RetryBackoffMax.
func (p *Processor) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.RetryBackoffBase
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	b.MaxInterval = p.config.RetryBackoffMax
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Minute
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func decodeMetadata(msg *Message) domain.EventMetadata {
	var meta domain.EventMetadata
	if len(msg.Metadata) > 0 {
		_ = json.Unmarshal(msg.Metadata, &meta)
	}
	return meta
}

// Cleanup deletes published messages older than retentionDays.
func (p *Processor) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	deleted, err := p.repo.DeleteOld(ctx, retentionDays)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("outbox cleanup", "deleted", deleted, "retention_days", retentionDays)
	}
	return deleted, nil
}

// Stats is a snapshot of the relay's counters.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// GetStats returns current processor statistics.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return Stats{
		IsRunning:       running,
		PublishedCount:  p.published.Load(),
		FailedCount:     p.failed.Load(),
		DeadCount:       p.dead.Load(),
		LagSeconds:      p.lagSeconds,
		LastError:       p.lastError,
		LastErrorAt:     p.lastErrorAt,
		LastProcessedAt: p.lastProcessedAt,
		OldestMessageAt: p.oldestAt,
	}
}

func (p *Processor) noteError(err error) {
	now := p.now()
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.lastError = err.Error()
	p.lastErrorAt = &now
}

// noteBatch updates the relay lag: the age of the oldest message still
// waiting, zero when the outbox is drained.
func (p *Processor) noteBatch(messages []*Message) {
	now := p.now()
	var oldest *time.Time
	for _, msg := range messages {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}
	lag := 0.0
	if oldest != nil {
		lag = now.Sub(*oldest).Seconds()
	}

	p.statsMu.Lock()
	p.lastProcessedAt = &now
	p.oldestAt = oldest
	p.lagSeconds = lag
	p.statsMu.Unlock()

	p.metrics.Gauge(observability.MetricOutboxLag, lag)
}
