package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrNoConnString = errors.New("pgx: either Config or ConnString must be provided")

// Pool configures a connection pool.
type Pool struct {
	Config     *pgxpool.Config // Takes precedence over ConnString
	ConnString string
	// Retry keeps pinging until the database answers or MaxElapsed passes.
	// The zero value tries once.
	Retry  Retry
	Logger *zap.Logger
}

// Retry configures exponential backoff while establishing a pool.
type Retry struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

func (r Retry) backOff(ctx context.Context) backoff.BackOff {
	if r.MaxElapsed <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		b.MaxInterval = r.MaxInterval
	}
	b.MaxElapsedTime = r.MaxElapsed
	return backoff.WithContext(b, ctx)
}

// Connect creates a pool and pings the database through it, retrying as
// cfg.Retry allows. The pool is closed again when no ping succeeds.
func Connect(ctx context.Context, cfg Pool) (*pgxpool.Pool, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var pool *pgxpool.Pool
	var err error
	switch {
	case cfg.Config != nil:
		pool, err = pgxpool.NewWithConfig(ctx, cfg.Config)
	case cfg.ConnString != "":
		pool, err = pgxpool.New(ctx, cfg.ConnString)
	default:
		return nil, ErrNoConnString
	}
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	ping := func() error { return pool.Ping(ctx) }
	notify := func(err error, wait time.Duration) {
		logger.Warn("database not ready", zap.Error(err), zap.Duration("retry_in", wait))
	}
	if err := backoff.RetryNotify(ping, cfg.Retry.backOff(ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping: %w", err)
	}

	cc := pool.Config().ConnConfig
	logger.Info("connected to database", zap.String("host", cc.Host), zap.String("database", cc.Database))
	return pool, nil
}
