// Package storage provides the PostgreSQL storage layer for aurum.
//
// It manages connection pooling (via pgxpool), a dedicated connection for
// LISTEN/NOTIFY handoff fan-out, and query methods for conversations,
// guardrail policies, decision logs, chat messages, and the product catalog.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurum-labs/aurum/internal/retry"
)

// DB holds the query pool and, optionally, one long-lived connection that
// LISTENs for handoff events. Query methods retry transient failures.
type DB struct {
	pool       *pgxpool.Pool
	notifyConn *pgx.Conn
	logger     *slog.Logger
	retry      retry.Policy
}

// Options configures the connections behind a DB.
type Options struct {
	// PoolDSN serves every query. A transaction-mode pooler is fine here.
	PoolDSN string
	// NotifyDSN must reach Postgres directly since LISTEN is session state.
	// Empty disables the handoff listener on this instance.
	NotifyDSN string
	// MaxConns caps the pool. Zero keeps the pgxpool default.
	MaxConns int32
}

// New opens the pool, pings it, and opens the LISTEN connection when one is
// configured. Sessions run in UTC so timeline timestamps compare cleanly.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.PoolDSN)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	setSessionParams(poolCfg.ConnConfig)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	db := &DB{
		pool:   pool,
		logger: logger,
		retry: retry.Policy{
			MaxAttempts: 4,
			BaseDelay:   20 * time.Millisecond,
			MaxDelay:    500 * time.Millisecond,
			Jitter:      0.5,
		},
	}

	if opts.NotifyDSN != "" {
		connCfg, err := pgx.ParseConfig(opts.NotifyDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("storage: parse notify DSN: %w", err)
		}
		setSessionParams(connCfg)
		if db.notifyConn, err = pgx.ConnectConfig(ctx, connCfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("storage: connect notify: %w", err)
		}
	}
	return db, nil
}

func setSessionParams(cfg *pgx.ConnConfig) {
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	if _, ok := cfg.RuntimeParams["application_name"]; !ok {
		cfg.RuntimeParams["application_name"] = "aurum"
	}
	cfg.RuntimeParams["timezone"] = "UTC"
}

// Pool exposes the pool to code that runs its own SQL, such as migrations
// registered through WithExtraMigrations.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// HasNotify reports whether this instance can run the handoff broker.
func (db *DB) HasNotify() bool {
	return db.notifyConn != nil
}

// Ping backs the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases both connections.
func (db *DB) Close(ctx context.Context) {
	db.pool.Close()
	if db.notifyConn != nil {
		if err := db.notifyConn.Close(ctx); err != nil {
			db.logger.Warn("storage: close notify connection", "error", err)
		}
	}
}
