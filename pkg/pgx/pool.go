package pgx

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edgeflare/pgview/pkg/secret"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const defaultConnectTimeout = 30 * time.Second

// PoolConfig describes the backend pool.
type PoolConfig struct {
	// ConnString may reference secrets as __NAME__ placeholders, which are
	// expanded before parsing.
	ConnString     string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration // how long startup keeps retrying the first ping
}

// NewPool expands secrets in cfg.ConnString, creates the pool and waits until
// the backend answers a ping. Unreachable backends are retried with
// exponential backoff for at most cfg.ConnectTimeout; authentication and
// other server errors fail immediately.
func NewPool(ctx context.Context, cfg PoolConfig, resolver secret.Resolver, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnString == "" {
		return nil, errors.New("pgx: connection string is empty")
	}

	connString, err := secret.Expand(ctx, cfg.ConnString, resolver)
	if err != nil {
		return nil, fmt.Errorf("pgx: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("pgx: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = min(cfg.MinConns, poolConfig.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cmp.Or(cfg.ConnectTimeout, defaultConnectTimeout)

	if err := pingWithRetry(ctx, pool, b, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping connection: %w", err)
	}

	logger.Info("connected to database",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.Uint16("port", poolConfig.ConnConfig.Port),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)
	return pool, nil
}

func pingWithRetry(ctx context.Context, p Pinger, b backoff.BackOff, logger *zap.Logger) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := p.Ping(ctx)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return backoff.Permanent(err)
		}
		logger.Warn("database not reachable, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
