package clickhouse

import "time"

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds ClickHouse connection settings.
type ClientConfig struct {
	DSN             string
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	UseHTTP         bool
	AsyncInsert     bool
	WaitForAsync    bool
}

// WithDSN uses a full connection string and ignores host settings.
func WithDSN(dsn string) ClientOption {
	return func(c *ClientConfig) {
		c.DSN = dsn
	}
}

func WithHost(host string, port int) ClientOption {
	return func(c *ClientConfig) {
		c.Host = host
		if port > 0 {
			c.Port = port
		}
	}
}

func WithDatabase(database string) ClientOption {
	return func(c *ClientConfig) {
		if database != "" {
			c.Database = database
		}
	}
}

func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.User = user
		c.Password = password
	}
}

// WithMaxConnections sets max open and idle connections.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		if maxOpen > 0 {
			c.MaxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			c.MaxIdleConns = maxIdle
		}
	}
}

// WithTimeouts sets dial and read timeouts. Zero keeps the default.
func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if read > 0 {
			c.ReadTimeout = read
		}
	}
}

// WithHTTP enables the HTTP protocol instead of native.
func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) {
		c.UseHTTP = useHTTP
	}
}

// WithAsyncInsert configures async_insert and whether to wait for it.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert = enabled
		c.WaitForAsync = wait
	}
}
