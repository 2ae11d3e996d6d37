package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	var m Metrics = NoopMetrics{}
	m.Counter(MetricBookingsTotal, 1)
	m.Gauge(MetricOutboxLag, 1.5)
	m.Histogram(MetricSlotsComputed, 12)
	m.Timing(MetricTokenActions, time.Second)
}

func TestInMemoryMetrics_Counters(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter(MetricCancellationsTotal, 1, T("late", "true"))
	m.Counter(MetricCancellationsTotal, 1, T("late", "false"))
	m.Counter(MetricCancellationsTotal, 1, T("late", "true"))
	m.Counter(MetricBookingsTotal, 1)

	assert.Equal(t, int64(2), m.GetCounter(MetricCancellationsTotal, T("late", "true")))
	assert.Equal(t, int64(1), m.GetCounter(MetricCancellationsTotal, T("late", "false")))
	assert.Equal(t, int64(3), m.CounterTotal(MetricCancellationsTotal))
	assert.Equal(t, int64(1), m.CounterTotal(MetricBookingsTotal))
	assert.Zero(t, m.CounterTotal(MetricReschedulesTotal))
}

func TestInMemoryMetrics_TagOrderDoesNotMatter(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter(MetricTokenActions, 1, T("kind", "invitation"), T("action", "accept"))
	m.Counter(MetricTokenActions, 1, T("action", "accept"), T("kind", "invitation"))

	assert.Equal(t, int64(2), m.GetCounter(MetricTokenActions, T("action", "accept"), T("kind", "invitation")))
}

func TestInMemoryMetrics_GaugeHistogramTiming(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Gauge(MetricOutboxLag, 4)
	m.Gauge(MetricOutboxLag, 2)
	m.Histogram(MetricSlotsComputed, 16)
	m.Histogram(MetricSlotsComputed, 8)
	m.Timing(MetricTokenActions, 20*time.Millisecond)

	assert.Equal(t, 2.0, m.GetGauge(MetricOutboxLag))
	assert.Equal(t, []float64{16, 8}, m.GetHistogram(MetricSlotsComputed))
	assert.Equal(t, []time.Duration{20 * time.Millisecond}, m.GetTimings(MetricTokenActions))

	values := m.GetHistogram(MetricSlotsComputed)
	values[0] = 0
	assert.Equal(t, 16.0, m.GetHistogram(MetricSlotsComputed)[0])
}

func TestFormatKey(t *testing.T) {
	tests := []struct {
		name     string
		tags     []Tag
		expected string
	}{
		{"no tags", nil, "chiroflow.offers.expired"},
		{"single tag", []Tag{T("reason", "timeout")}, "chiroflow.offers.expired:reason=timeout"},
		{"sorted tags", []Tag{T("z", "1"), T("a", "2")}, "chiroflow.offers.expired:a=2:z=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatKey(MetricOffersExpired, tt.tags))
		})
	}
}

func TestMetricNames(t *testing.T) {
	assert.Equal(t, "chiroflow_tokens_actions", promName(MetricTokenActions))
	assert.Equal(t, "chiroflow_outbox_lag_seconds", promName(MetricOutboxLag))
}
