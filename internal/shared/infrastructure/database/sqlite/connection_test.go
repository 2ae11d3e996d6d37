package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
)

func openTestConnection(t *testing.T) database.Connection {
	t.Helper()
	conn, err := NewConnection(context.Background(), database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRebind(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM t WHERE id = $1", "SELECT * FROM t WHERE id = ?1"},
		{"INSERT INTO t (a, b) SELECT $1::uuid, $12::timestamptz", "INSERT INTO t (a, b) SELECT ?1, ?12"},
		{"UPDATE t SET a = $2 WHERE a = $2 AND b = $1", "UPDATE t SET a = ?2 WHERE a = ?2 AND b = ?1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, Rebind(tt.in))
	}
}

func TestNewConnection(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)

	assert.NoError(t, conn.Ping(ctx))
	assert.Equal(t, database.DriverSQLite, conn.Driver())
}

func TestConnection_ExecAndQuery(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)

	_, err := conn.Exec(ctx, `CREATE TABLE test (id TEXT PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	result, err := conn.Exec(ctx, `INSERT INTO test (id, name) VALUES ($1, $2)`, "1", "Alice")
	require.NoError(t, err)

	rowsAffected, err := result.RowsAffected()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), rowsAffected)

	var id, name string
	err = conn.QueryRow(ctx, `SELECT id, name FROM test WHERE id = $1`, "1").Scan(&id, &name)
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Equal(t, "Alice", name)

	_, err = conn.Exec(ctx, `INSERT INTO test (id, name) VALUES ($1, $2)`, "2", "Bob")
	require.NoError(t, err)

	rows, err := conn.Query(ctx, `SELECT id, name FROM test ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var results []string
	for rows.Next() {
		var id, name string
		require.NoError(t, rows.Scan(&id, &name))
		results = append(results, name)
	}
	assert.NoError(t, rows.Err())
	assert.Equal(t, []string{"Alice", "Bob"}, results)
}

func TestConnection_TimeRoundTripAndOrdering(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)

	_, err := conn.Exec(ctx, `CREATE TABLE slots (id TEXT PRIMARY KEY, starts_at DATETIME NOT NULL, released_at DATETIME)`)
	require.NoError(t, err)

	base := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		_, err := conn.Exec(ctx, `INSERT INTO slots (id, starts_at) VALUES ($1, $2)`, string(rune('a'+i)), base.Add(offset))
		require.NoError(t, err)
	}

	var count int
	err = conn.QueryRow(ctx, `SELECT COUNT(*) FROM slots WHERE starts_at >= $1`, base.Add(time.Hour)).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var startsAt time.Time
	var releasedAt *time.Time
	err = conn.QueryRow(ctx, `SELECT starts_at, released_at FROM slots ORDER BY starts_at LIMIT 1`).Scan(&startsAt, &releasedAt)
	require.NoError(t, err)
	assert.True(t, base.Equal(startsAt))
	assert.Nil(t, releasedAt)
}

func TestConnection_Transaction(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)

	_, err := conn.Exec(ctx, `CREATE TABLE test (id TEXT PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	tx, err := conn.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO test (id, name) VALUES ($1, $2)`, "1", "Alice")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	var name string
	require.NoError(t, conn.QueryRow(ctx, `SELECT name FROM test WHERE id = $1`, "1").Scan(&name))
	assert.Equal(t, "Alice", name)

	tx2, err := conn.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx2.Exec(ctx, `INSERT INTO test (id, name) VALUES ($1, $2)`, "2", "Bob")
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))

	var count int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(*) FROM test`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUnitOfWork_NestedBeginJoinsOuterTransaction(t *testing.T) {
	ctx := context.Background()
	conn := openTestConnection(t)
	uow := database.NewUnitOfWork(conn)

	_, err := conn.Exec(ctx, `CREATE TABLE test (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	outer, err := uow.Begin(ctx)
	require.NoError(t, err)
	inner, err := uow.Begin(outer)
	require.NoError(t, err)

	_, err = database.ExecutorFromContext(inner, conn).Exec(inner, `INSERT INTO test (id) VALUES ($1)`, "x")
	require.NoError(t, err)

	// Inner commit is a no-op; the outer rollback discards the insert.
	require.NoError(t, uow.Commit(inner))
	require.NoError(t, uow.Rollback(outer))

	var count int
	require.NoError(t, conn.QueryRow(ctx, `SELECT COUNT(*) FROM test`).Scan(&count))
	assert.Equal(t, 0, count)
}
