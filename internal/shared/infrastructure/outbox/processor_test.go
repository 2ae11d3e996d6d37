package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/pkg/observability"
)

// brokerStub records publishes and fails the routing keys in down.
type brokerStub struct {
	mu   sync.Mutex
	sent []string
	down map[string]bool
}

func (b *brokerStub) Publish(_ context.Context, routingKey string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down[routingKey] {
		return errors.New("broker unavailable")
	}
	b.sent = append(b.sent, routingKey)
	return nil
}

func (b *brokerStub) Close() error { return nil }

func (b *brokerStub) Sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func createTestMessage(routingKey string) *outbox.Message {
	payload, _ := json.Marshal(map[string]string{"appointment_id": uuid.NewString()})
	return &outbox.Message{
		AggregateType: "appointment",
		AggregateID:   uuid.New(),
		EventType:     routingKey,
		RoutingKey:    routingKey,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}

func testConfig() outbox.ProcessorConfig {
	cfg := outbox.DefaultProcessorConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MaxRetries = 3
	return cfg
}

func TestProcessor_ProcessOnce(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()
	broker := &brokerStub{}
	metrics := observability.NewInMemoryMetrics()

	require.NoError(t, repo.SaveBatch(ctx, []*outbox.Message{
		createTestMessage("scheduling.appointment.booked"),
		createTestMessage("waitlist.invitation.issued"),
	}))

	p := outbox.NewProcessor(repo, broker, testConfig(), nil).WithMetrics(metrics)
	require.NoError(t, p.ProcessOnce(ctx))

	assert.Equal(t, []string{"scheduling.appointment.booked", "waitlist.invitation.issued"}, broker.Sent())
	for _, msg := range repo.Messages() {
		assert.True(t, msg.IsPublished())
	}
	assert.Equal(t, uint64(2), p.GetStats().PublishedCount)
	assert.Equal(t, int64(2), metrics.CounterTotal(observability.MetricEventsPublished))

	require.NoError(t, p.ProcessOnce(ctx))
	assert.Len(t, broker.Sent(), 2, "published messages are not relayed twice")
}

func TestProcessor_FailureSchedulesRetryWithBackoff(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()
	broker := &brokerStub{down: map[string]bool{"scheduling.appointment.cancelled": true}}
	now := time.Now()

	msg := createTestMessage("scheduling.appointment.cancelled")
	require.NoError(t, repo.Save(ctx, msg))

	p := outbox.NewProcessor(repo, broker, testConfig(), nil).WithClock(func() time.Time { return now })
	require.NoError(t, p.ProcessOnce(ctx))

	require.NotNil(t, msg.NextRetryAt)
	assert.Equal(t, now.Add(time.Second), *msg.NextRetryAt)
	assert.Equal(t, 1, msg.RetryCount)
	require.NotNil(t, msg.LastError)
	assert.Equal(t, "broker unavailable", *msg.LastError)

	// Still waiting for its retry time.
	require.NoError(t, p.ProcessOnce(ctx))
	assert.Equal(t, 1, msg.RetryCount)

	past := now.Add(-time.Hour)
	msg.NextRetryAt = &past
	require.NoError(t, p.ProcessOnce(ctx))
	assert.Equal(t, now.Add(2*time.Second), *msg.NextRetryAt)

	stats := p.GetStats()
	assert.Equal(t, uint64(2), stats.FailedCount)
	assert.Equal(t, "broker unavailable", stats.LastError)
	require.NotNil(t, stats.LastErrorAt)
	assert.Equal(t, now, *stats.LastErrorAt)
}

func TestProcessor_RetryDelayIsCapped(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()
	broker := &brokerStub{down: map[string]bool{"waitlist.offer.opened": true}}
	now := time.Now()

	cfg := testConfig()
	cfg.MaxRetries = 10
	cfg.RetryBackoffBase = time.Second
	cfg.RetryBackoffMax = 3 * time.Second

	msg := createTestMessage("waitlist.offer.opened")
	msg.RetryCount = 5
	require.NoError(t, repo.Save(ctx, msg))

	p := outbox.NewProcessor(repo, broker, cfg, nil).WithClock(func() time.Time { return now })
	require.NoError(t, p.ProcessOnce(ctx))

	require.NotNil(t, msg.NextRetryAt)
	assert.Equal(t, now.Add(3*time.Second), *msg.NextRetryAt)
}

func TestProcessor_DeadLettersAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()
	broker := &brokerStub{down: map[string]bool{"waitlist.invitation.issued": true}}

	msg := createTestMessage("waitlist.invitation.issued")
	msg.RetryCount = 2
	require.NoError(t, repo.Save(ctx, msg))

	p := outbox.NewProcessor(repo, broker, testConfig(), nil)
	require.NoError(t, p.ProcessOnce(ctx))

	require.NotNil(t, msg.DeadLetteredAt)
	require.NotNil(t, msg.DeadLetterReason)
	assert.Equal(t, "broker unavailable", *msg.DeadLetterReason)
	assert.Equal(t, uint64(1), p.GetStats().DeadCount)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessor_ReportsLag(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()
	metrics := observability.NewInMemoryMetrics()
	now := time.Now()

	stale := createTestMessage("scheduling.appointment.rescheduled")
	stale.CreatedAt = now.Add(-30 * time.Second)
	require.NoError(t, repo.Save(ctx, stale))
	require.NoError(t, repo.Save(ctx, createTestMessage("scheduling.appointment.booked")))

	p := outbox.NewProcessor(repo, &brokerStub{}, testConfig(), nil).
		WithMetrics(metrics).
		WithClock(func() time.Time { return now })
	require.NoError(t, p.ProcessOnce(ctx))

	stats := p.GetStats()
	assert.InDelta(t, 30.0, stats.LagSeconds, 0.001)
	require.NotNil(t, stats.OldestMessageAt)
	assert.Equal(t, stale.CreatedAt, *stats.OldestMessageAt)
	assert.InDelta(t, 30.0, metrics.GetGauge(observability.MetricOutboxLag), 0.001)

	require.NoError(t, p.ProcessOnce(ctx))
	assert.Zero(t, p.GetStats().LagSeconds)
	assert.Nil(t, p.GetStats().OldestMessageAt)
}

func TestProcessor_StartStop(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()
	broker := &brokerStub{}
	p := outbox.NewProcessor(repo, broker, testConfig(), nil)

	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())

	require.NoError(t, repo.Save(ctx, createTestMessage("scheduling.appointment.booked")))
	assert.Eventually(t, func() bool { return len(broker.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	assert.False(t, p.IsRunning())
	assert.False(t, p.GetStats().IsRunning)
}

func TestProcessor_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := outbox.NewProcessor(outbox.NewInMemoryRepository(), &brokerStub{}, testConfig(), nil)

	require.NoError(t, p.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop after context cancellation")
	}
}

func TestProcessor_Cleanup(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewInMemoryRepository()

	old := createTestMessage("scheduling.appointment.completed")
	recent := createTestMessage("scheduling.appointment.booked")
	require.NoError(t, repo.SaveBatch(ctx, []*outbox.Message{old, recent}))

	longAgo := time.Now().AddDate(0, 0, -30)
	old.PublishedAt = &longAgo
	require.NoError(t, repo.MarkPublished(ctx, recent.ID))

	p := outbox.NewProcessor(repo, &brokerStub{}, testConfig(), nil)
	deleted, err := p.Cleanup(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, []string{"scheduling.appointment.booked"}, repo.RoutingKeys())
}
