package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Client manages a ClickHouse connection pool over database/sql.
type Client struct {
	db *sql.DB
}

// NewClient opens and pings a pool. WithDSN wins over the host options.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := cfg.DSN
	if dsn == "" {
		if cfg.Host == "" {
			return nil, fmt.Errorf("clickhouse: host or dsn is required")
		}
		dsn = buildDSN(*cfg)
	}

	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Client{db: db}, nil
}

// NewClientFromDB wraps an existing pool. Tests pass a sqlmock handle.
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) DB() *sql.DB {
	return c.db
}

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// ExceptionCode returns the server error code carried by err, if any.
func ExceptionCode(err error) (string, bool) {
	var ex *ch.Exception
	if errors.As(err, &ex) {
		return strconv.Itoa(int(ex.Code)), true
	}
	return "", false
}

func buildDSN(cfg ClientConfig) string {
	scheme := "clickhouse://"
	if cfg.UseHTTP {
		scheme = "clickhouse+http://"
	}
	dsn := fmt.Sprintf("%s%s:%s@%s:%d/%s",
		scheme, cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	sep := "?"
	add := func(key string, val any) {
		dsn += fmt.Sprintf("%s%s=%v", sep, key, val)
		sep = "&"
	}
	if cfg.DialTimeout > 0 {
		add("dial_timeout", cfg.DialTimeout)
	}
	if cfg.ReadTimeout > 0 {
		add("read_timeout", cfg.ReadTimeout)
	}
	if cfg.AsyncInsert {
		add("async_insert", 1)
		if cfg.WaitForAsync {
			add("wait_for_async_insert", 1)
		}
	}
	return dsn
}

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Port:            9000,
		Database:        "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
	}
}
