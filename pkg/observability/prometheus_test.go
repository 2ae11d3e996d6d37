package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gathered returns label-joined values for every sample of a metric family.
func gathered(t *testing.T, reg *prometheus.Registry, name string) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			key := ""
			for _, lp := range metric.GetLabel() {
				key += lp.GetName() + "=" + lp.GetValue() + ";"
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestPrometheusMetrics_Counter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.Counter(MetricBookingsTotal, 1, T("result", "booked"))
	m.Counter(MetricBookingsTotal, 2, T("result", "booked"))
	m.Counter(MetricBookingsTotal, 1, T("result", "conflict"))

	values := gathered(t, reg, "chiroflow_bookings_total")
	assert.Equal(t, 3.0, values["result=booked;"])
	assert.Equal(t, 1.0, values["result=conflict;"])
}

func TestPrometheusMetrics_TagOrderDoesNotMatter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.Counter(MetricTokenActions, 1, T("class", "invitation_response"), T("action", "accept"))
	m.Counter(MetricTokenActions, 1, T("action", "accept"), T("class", "invitation_response"))

	values := gathered(t, reg, "chiroflow_tokens_actions")
	assert.Equal(t, 2.0, values["action=accept;class=invitation_response;"])
}

func TestPrometheusMetrics_GaugeAndTiming(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.Gauge(MetricOutboxLag, 4.5)
	m.Gauge(MetricOutboxLag, 1.5)
	m.Timing(MetricOperationDuration, 250*time.Millisecond, T("operation", "book"))
	m.Timing(MetricOperationDuration, time.Second, T("operation", "book"))

	assert.Equal(t, 1.5, gathered(t, reg, "chiroflow_outbox_lag_seconds")[""])
	assert.Equal(t, 2.0, gathered(t, reg, "chiroflow_operation_duration_seconds")["operation=book;"])
}

func TestPrometheusMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPrometheusMetrics(reg)
	second := NewPrometheusMetrics(reg)

	first.Counter(MetricOffersOpened, 1)
	second.Counter(MetricOffersOpened, 1)

	assert.Equal(t, 2.0, gathered(t, reg, "chiroflow_offers_opened")[""])
}

func TestPrometheusMetrics_NilReceiver(t *testing.T) {
	var m *PrometheusMetrics
	assert.NotPanics(t, func() {
		m.Counter("x", 1)
		m.Gauge("x", 1)
		m.Histogram("x", 1)
		m.Timing("x", time.Second)
	})
}
