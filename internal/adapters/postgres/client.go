// Package postgres opens the session, memory and knowledge database and
// applies its embedded migrations.
package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"finvisor/internal/adapters/config"
	"finvisor/pkg/errors"
)

type Client struct {
	db *sqlx.DB
}

// NewClient connects with lib/pq and sizes the pool from cfg.MaxConns.
// Half of the pool may stay idle.
func NewClient(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to postgres at %s:%d", cfg.Host, cfg.Port)
	}

	idle := cfg.MaxConns / 2
	if idle < 1 {
		idle = 1
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	return &Client{db: db}, nil
}

func (c *Client) DB() *sqlx.DB { return c.db }

func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error { return c.db.Close() }
