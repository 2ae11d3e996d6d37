package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maximegiguere1one/chiroflow/pkg/observability"
)

// recentWindow bounds how many delivered event ids the bus remembers.
const recentWindow = 1024

// InProcessEventBus hands outbox envelopes straight to registered
// consumers. It replaces RabbitMQ when no broker URL is configured, so the
// outbox relay and the notification subscriber run in one process.
//
// The relay may hand over an envelope twice when marking it published
// fails. Recently delivered event ids are skipped.
type InProcessEventBus struct {
	registry *ConsumerRegistry
	logger   *slog.Logger

	mu     sync.Mutex
	seen   map[uuid.UUID]struct{}
	order  []uuid.UUID
	cursor int
}

// NewInProcessEventBus creates an empty bus.
func NewInProcessEventBus(logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessEventBus{
		registry: NewConsumerRegistry(logger),
		logger:   logger,
		seen:     make(map[uuid.UUID]struct{}, recentWindow),
		order:    make([]uuid.UUID, 0, recentWindow),
	}
}

// WithMetrics records dispatch counters on m.
func (b *InProcessEventBus) WithMetrics(m observability.Metrics) *InProcessEventBus {
	b.registry.WithMetrics(m)
	return b
}

func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.registry.Register(consumer)
}

// Publish decodes the envelope and dispatches it. Malformed payloads are
// logged and dropped since a retry cannot fix them. Consumer errors are
// returned so the outbox retries.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	event := &ConsumedEvent{}
	if err := json.Unmarshal(payload, event); err != nil {
		b.logger.Error("dropping undecodable event", "routing_key", routingKey, "error", err)
		return nil
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}
	return b.PublishConsumedEvent(ctx, event)
}

// PublishConsumedEvent dispatches an already decoded event. Deliveries are
// serialized.
func (b *InProcessEventBus) PublishConsumedEvent(ctx context.Context, event *ConsumedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.seen[event.EventID]; dup && event.EventID != uuid.Nil {
		b.logger.Debug("skipping redelivered event", "routing_key", event.RoutingKey, "event_id", event.EventID)
		return nil
	}

	start := time.Now()
	if err := b.registry.Dispatch(ctx, event); err != nil {
		b.logger.Error("event dispatch failed",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return err
	}
	b.remember(event.EventID)

	b.logger.Debug("event dispatched",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// remember records id, evicting the oldest once the window is full.
func (b *InProcessEventBus) remember(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	if len(b.order) < recentWindow {
		b.order = append(b.order, id)
	} else {
		delete(b.seen, b.order[b.cursor])
		b.order[b.cursor] = id
		b.cursor = (b.cursor + 1) % recentWindow
	}
	b.seen[id] = struct{}{}
}

func (b *InProcessEventBus) Close() error { return nil }
