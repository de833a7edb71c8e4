// Package clickhouse opens the optional ClickHouse connection used for AI
// usage analytics.
package clickhouse

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"finvisor/internal/adapters/config"
	"finvisor/pkg/errors"
)

const (
	dialTimeout  = 5 * time.Second
	maxOpenConns = 5
)

type Client struct {
	conn driver.Conn
}

// NewClient connects over the native protocol and pings once
func NewClient(ctx context.Context, cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(options(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "failed to ping clickhouse at %s:%d", cfg.Host, cfg.Port)
	}
	return &Client{conn: conn}, nil
}

func options(cfg config.ClickHouseConfig) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression:  &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout:  dialTimeout,
		MaxOpenConns: maxOpenConns,
	}
}

func (c *Client) Conn() driver.Conn { return c.conn }

func (c *Client) Health(ctx context.Context) error { return c.conn.Ping(ctx) }

func (c *Client) Close() error { return c.conn.Close() }
