package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Conn is the read side of *pgx.Conn, *pgxpool.Conn and *pgxpool.Pool used by
// the catalog loader, so it runs on a single connection or a pool.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow returns at most one row; errors surface on Scan.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pinger reports whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
