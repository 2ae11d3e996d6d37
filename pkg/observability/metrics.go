package observability

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Metrics provides an interface for recording application metrics.
type Metrics interface {
	// Counter increments a counter metric.
	Counter(name string, value int64, tags ...Tag)

	// Gauge sets a gauge metric to the given value.
	Gauge(name string, value float64, tags ...Tag)

	// Histogram records a value in a histogram.
	Histogram(name string, value float64, tags ...Tag)

	// Timing records a duration.
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag represents a key-value pair for metric labeling.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics is a no-op implementation of Metrics.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics records metrics in maps keyed by name and sorted tags.
// Tests read them back with the Get methods.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
	samples  map[string][]float64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics creates a new in-memory metrics collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		samples:  make(map[string][]float64),
		timings:  make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[formatKey(name, tags)] += value
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[formatKey(name, tags)] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.samples[key] = append(m.samples[key], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.timings[key] = append(m.timings[key], duration)
}

// GetCounter returns the current value of a counter.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// GetGauge returns the current value of a gauge.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[formatKey(name, tags)]
}

// GetHistogram returns the observed values in order.
func (m *InMemoryMetrics) GetHistogram(name string, tags ...Tag) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.samples[formatKey(name, tags)])
}

// GetTimings returns the recorded durations in order.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.timings[formatKey(name, tags)])
}

// CounterTotal sums a counter across every tag combination.
func (m *InMemoryMetrics) CounterTotal(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for key, v := range m.counters {
		if key == name || strings.HasPrefix(key, name+":") {
			total += v
		}
	}
	return total
}

// formatKey renders name:k1=v1:k2=v2 with tags sorted by key so the
// call site's tag order does not matter.
func formatKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := slices.Clone(tags)
	slices.SortFunc(sorted, func(a, b Tag) int { return strings.Compare(a.Key, b.Key) })

	var b strings.Builder
	b.WriteString(name)
	for _, t := range sorted {
		b.WriteString(":" + t.Key + "=" + t.Value)
	}
	return b.String()
}

// Metric names recorded by chiroflow. The Prometheus implementation
// replaces dots with underscores.
const (
	MetricOperationErrors   = "chiroflow.operation.errors"
	MetricOperationDuration = "chiroflow.operation.duration"

	// Ledger
	MetricBookingsTotal      = "chiroflow.bookings.total"
	MetricBookingConflicts   = "chiroflow.bookings.conflicts"
	MetricCancellationsTotal = "chiroflow.cancellations.total"
	MetricReschedulesTotal   = "chiroflow.reschedules.total"
	MetricSlotsComputed      = "chiroflow.availability.slots"

	// Waitlist
	MetricOffersOpened      = "chiroflow.offers.opened"
	MetricInvitationOutcome = "chiroflow.invitations.outcome"
	MetricOffersExpired     = "chiroflow.offers.expired"

	// Token gateway
	MetricTokenActions = "chiroflow.tokens.actions"

	// Read path resilience
	MetricReadRetries     = "chiroflow.reads.retries"
	MetricBreakerState    = "chiroflow.breaker.state"
	MetricBreakerRejected = "chiroflow.breaker.rejected"
	MetricCacheRequests   = "chiroflow.cache.requests"

	// Outbox relay
	MetricEventsPublished = "chiroflow.events.published"
	MetricEventsFailed    = "chiroflow.events.failed"
	MetricEventsConsumed  = "chiroflow.events.consumed"
	MetricOutboxLag       = "chiroflow.outbox.lag_seconds"
)
