package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/outbox"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/testdb"
)

func newStoredMessage(routingKey string) *outbox.Message {
	msg := createTestMessage(routingKey)
	msg.EventID = uuid.New()
	msg.Metadata = json.RawMessage(`{}`)
	msg.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return msg
}

func TestSQLRepository_SaveAndRelayLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := outbox.NewSQLRepository(testdb.SQLite(t))

	booked := newStoredMessage("scheduling.appointment.booked")
	cancelled := newStoredMessage("scheduling.appointment.cancelled")
	require.NoError(t, repo.SaveBatch(ctx, []*outbox.Message{booked, cancelled}))
	assert.NotZero(t, booked.ID)
	assert.NotEqual(t, booked.ID, cancelled.ID)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, booked.EventID, pending[0].EventID)
	assert.JSONEq(t, string(booked.Payload), string(pending[0].Payload))

	require.NoError(t, repo.MarkPublished(ctx, booked.ID))
	require.NoError(t, repo.MarkFailed(ctx, cancelled.ID, "broker unavailable", time.Now().Add(time.Hour)))

	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "failed message waits for its retry time")

	require.NoError(t, repo.MarkFailed(ctx, cancelled.ID, "broker unavailable", time.Now().Add(-time.Minute)))
	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)

	require.NoError(t, repo.MarkDead(ctx, cancelled.ID, "gave up"))
	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLRepository_SaveJoinsUnitOfWork(t *testing.T) {
	ctx := context.Background()
	conn := testdb.SQLite(t)
	repo := outbox.NewSQLRepository(conn)
	uow := database.NewUnitOfWork(conn)

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.SaveBatch(txCtx, []*outbox.Message{newStoredMessage("waitlist.offer.opened")}))
	require.NoError(t, uow.Rollback(txCtx))

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLRepository_DeleteOld(t *testing.T) {
	ctx := context.Background()
	conn := testdb.SQLite(t)
	repo := outbox.NewSQLRepository(conn)

	msg := newStoredMessage("waitlist.offer.expired")
	require.NoError(t, repo.Save(ctx, msg))

	longAgo := time.Now().UTC().Truncate(time.Second).AddDate(0, 0, -30)
	_, err := conn.Exec(ctx, `UPDATE outbox SET published_at = $1 WHERE id = $2`, longAgo, msg.ID)
	require.NoError(t, err)

	deleted, err := repo.DeleteOld(ctx, 14)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
