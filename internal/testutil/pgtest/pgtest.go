// Package pgtest connects integration tests to the database named by
// TEST_DATABASE. Tests calling into it are skipped when the variable is unset.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// EnvVar holds the connection string of the integration database.
const EnvVar = "TEST_DATABASE"

// ConnString returns the integration connection string or skips t.
func ConnString(t testing.TB) string {
	t.Helper()
	connString := os.Getenv(EnvVar)
	if connString == "" {
		t.Skip(EnvVar + " not set")
	}
	return connString
}

// ParseConfig returns a connection config that forwards server notices to t.Log.
func ParseConfig(t testing.TB) *pgx.ConnConfig {
	t.Helper()
	config, err := pgx.ParseConfig(ConnString(t))
	require.NoError(t, err)

	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		t.Logf("PostgreSQL %s: %s", n.Severity, n.Message)
	}
	return config
}

// Connect opens a single connection, closed when the test ends.
func Connect(ctx context.Context, t testing.TB) *pgx.Conn {
	t.Helper()
	conn, err := pgx.ConnectConfig(ctx, ParseConfig(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, conn.Close(ctx))
	})
	return conn
}

// Pool opens a pool, closed when the test ends.
func Pool(ctx context.Context, t testing.TB) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(ctx, ConnString(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// Exec runs each statement and registers cleanup statements to run, in
// reverse order, when the test ends.
func Exec(ctx context.Context, t testing.TB, db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}, stmts []string, cleanup ...string) {
	t.Helper()
	t.Cleanup(func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if _, err := db.Exec(context.Background(), cleanup[i]); err != nil {
				t.Logf("cleanup %q: %v", cleanup[i], err)
			}
		}
	})
	for _, stmt := range stmts {
		_, err := db.Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}
}
