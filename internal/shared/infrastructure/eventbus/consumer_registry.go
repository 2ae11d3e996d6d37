package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/maximegiguere1one/chiroflow/pkg/observability"
)

type binding struct {
	pattern  string
	consumer EventConsumer
}

// ConsumerRegistry keeps topic bindings and dispatches events to every
// consumer whose pattern matches the routing key.
type ConsumerRegistry struct {
	bindings []binding
	mu       sync.RWMutex
	logger   *slog.Logger
	metrics  observability.Metrics
}

// NewConsumerRegistry creates a new consumer registry.
func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{
		logger:  logger,
		metrics: observability.NoopMetrics{},
	}
}

// WithMetrics records consumed and failed events on m.
func (r *ConsumerRegistry) WithMetrics(m observability.Metrics) *ConsumerRegistry {
	if m != nil {
		r.metrics = m
	}
	return r
}

// Register binds a consumer to each of its declared patterns.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pattern := range consumer.EventTypes() {
		r.bindings = append(r.bindings, binding{pattern: pattern, consumer: consumer})
		r.logger.Debug("registered consumer binding", "pattern", pattern)
	}
}

// GetConsumers returns the consumers bound to routingKey, each at most once.
func (r *ConsumerRegistry) GetConsumers(routingKey string) []EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []EventConsumer
	seen := make(map[EventConsumer]struct{})
	for _, b := range r.bindings {
		if !MatchRoutingKey(b.pattern, routingKey) {
			continue
		}
		if _, dup := seen[b.consumer]; dup {
			continue
		}
		seen[b.consumer] = struct{}{}
		out = append(out, b.consumer)
	}
	return out
}

// Patterns returns every distinct binding pattern.
func (r *ConsumerRegistry) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.bindings))
	patterns := make([]string, 0, len(r.bindings))
	for _, b := range r.bindings {
		if _, ok := seen[b.pattern]; ok {
			continue
		}
		seen[b.pattern] = struct{}{}
		patterns = append(patterns, b.pattern)
	}
	return patterns
}

// Dispatch delivers the event to every matching consumer. Failures do not
// stop delivery to the remaining consumers; all errors are joined.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	consumers := r.GetConsumers(event.RoutingKey)
	if len(consumers) == 0 {
		r.logger.Debug("no consumers for routing key", "routing_key", event.RoutingKey)
		return nil
	}

	var errs []error
	for _, consumer := range consumers {
		start := time.Now()
		err := consumer.Handle(ctx, event)
		r.metrics.Timing(observability.MetricOperationDuration, time.Since(start),
			observability.T("operation", "consume"),
			observability.T("routing_key", event.RoutingKey),
		)
		if err != nil {
			r.logger.Error("consumer failed to handle event",
				"routing_key", event.RoutingKey,
				"event_id", event.EventID,
				"error", err,
			)
			r.metrics.Counter(observability.MetricOperationErrors, 1,
				observability.T("operation", "consume"),
				observability.T("routing_key", event.RoutingKey),
			)
			errs = append(errs, err)
			continue
		}
		r.metrics.Counter(observability.MetricEventsConsumed, 1,
			observability.T("routing_key", event.RoutingKey),
		)
	}
	return errors.Join(errs...)
}

// ConsumerCount returns the number of distinct registered consumers.
func (r *ConsumerRegistry) ConsumerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[EventConsumer]struct{})
	for _, b := range r.bindings {
		seen[b.consumer] = struct{}{}
	}
	return len(seen)
}

// MatchRoutingKey reports whether key matches an AMQP topic pattern, where
// "*" matches exactly one word and "#" matches zero or more words.
func MatchRoutingKey(pattern, key string) bool {
	if pattern == key {
		return true
	}
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchWords(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pattern[0] {
				return false
			}
		}
		pattern, key = pattern[1:], key[1:]
	}
	return len(key) == 0
}
