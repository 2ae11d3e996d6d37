// Package testdb opens migrated SQLite databases for repository tests.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/database/sqlite"
	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/migrations"
)

// SQLite returns a connection to a fresh, fully migrated database file
// that is removed when the test ends.
func SQLite(t testing.TB) database.Connection {
	t.Helper()
	ctx := context.Background()

	conn, err := sqlite.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "chiroflow.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = migrations.Run(ctx, conn, nil)
	require.NoError(t, err)
	return conn
}
