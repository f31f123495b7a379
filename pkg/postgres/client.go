// Package postgres wraps database/sql with the lib/pq driver for texsearch's
// two Postgres-backed consumers: internal/ledger (the reconciler's
// per-document outcome rows, each inserted via InTx)
// and internal/analytics/aggregator.Store (periodic stats snapshots, plain
// queries with no transactional requirement). Both are optional — if
// Postgres is unreachable at startup, cmd/index and cmd/analytics log a
// warning and run with reconciliation-ledger/snapshot persistence disabled
// rather than refusing to start.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/texsearch/texsearch/pkg/config"
	_ "github.com/lib/pq"
)

// Client wraps a *sql.DB opened against cfg.
type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens a connection pool against cfg and verifies it with a PING.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn inside a transaction, committing on a nil return and rolling
// back otherwise. internal/ledger.Record uses this for its single-row insert
// so a rollback on a write error never leaves a half-written ledger row.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
