// Package pgtest opens a migrated PostgreSQL pool for repository tests. Tests skip
// unless PG_DSN points at a disposable database.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/portal/internal/platform/db"
)

// migrateLock serializes goose across test binaries sharing one database.
const migrateLock = 0x70727431

// Pool returns a pool on PG_DSN with every migration applied.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, 8)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()
	_, err = conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrateLock)
	require.NoError(t, err)
	defer func() {
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, migrateLock)
	}()
	require.NoError(t, db.Migrate(ctx, pool, "up"))
	return pool
}
