package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"SPXEngine/pkg/logger"
	"SPXEngine/pkg/util"
)

// Store backends for replay rows.
const (
	BackendClickHouse = "clickhouse"
	BackendPostgres   = "postgres"
	BackendKafka      = "kafka"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logger     logger.Config    `yaml:"logger"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Replay     ReplayConfig     `yaml:"replay"`
	MultiTF    MultiTFConfig    `yaml:"multi_tf"`
	Cache      CacheConfig      `yaml:"cache"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Breaker    BreakerConfig    `yaml:"breaker"`
}

type AppConfig struct {
	Name        string `yaml:"name" default:"spxengine"`
	Environment string `yaml:"environment" default:"development" validate:"required"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	// Force-refresh throttling on GET /ops/multi-tf.
	RefreshInterval time.Duration `yaml:"refresh_interval" default:"10s"`
	RefreshBurst    int           `yaml:"refresh_burst" default:"3" validate:"gte=1"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type ReplayConfig struct {
	Enabled       bool          `yaml:"enabled" default:"true"`
	FlushInterval time.Duration `yaml:"flush_interval" default:"60s" validate:"gt=0"`
	Symbol        string        `yaml:"symbol" default:"SPX" validate:"required"`
	Backend       string        `yaml:"backend" default:"clickhouse" validate:"oneof=clickhouse postgres kafka"`
	Table         string        `yaml:"table" default:"replay_snapshots"`
}

type WeightsConfig struct {
	W1h  float64 `yaml:"weight_1h" default:"0.55" validate:"gte=0"`
	W15m float64 `yaml:"weight_15m" default:"0.2" validate:"gte=0"`
	W5m  float64 `yaml:"weight_5m" default:"0.15" validate:"gte=0"`
	W1m  float64 `yaml:"weight_1m" default:"0.1" validate:"gte=0"`
}

type MultiTFConfig struct {
	CacheTTL            time.Duration `yaml:"cache_ttl" default:"45s" validate:"gt=0"`
	EMAFast             int           `yaml:"ema_fast" default:"21" validate:"gte=1"`
	EMASlow             int           `yaml:"ema_slow" default:"55" validate:"gte=1"`
	OneHourLookbackDays int           `yaml:"one_hour_lookback_days" default:"7" validate:"gte=1"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout" default:"10s"`
	BarTable            string        `yaml:"bar_table" default:"spx_bars"`
	PenalizeUnreliable  bool          `yaml:"penalize_unreliable"`
	Weights             WeightsConfig `yaml:"weights"`
}

type CacheConfig struct {
	Type      string        `yaml:"type" default:"memory" validate:"oneof=memory redis layered"`
	MaxSize   int           `yaml:"max_size" default:"1024"`
	MemoryTTL time.Duration `yaml:"memory_ttl" default:"5s"`
	Redis     struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

type ClickHouseConfig struct {
	DSN          string        `yaml:"dsn"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"spx"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	AsyncInsert  bool          `yaml:"async_insert"`
	WaitForAsync bool          `yaml:"wait_for_async_insert"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	InitSchema   bool          `yaml:"init_schema" default:"true"`
}

type PostgresConfig struct {
	DSN        string `yaml:"dsn"`
	MaxConns   int32  `yaml:"max_conns" default:"5"`
	InitSchema bool   `yaml:"init_schema" default:"true"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"spx.replay_snapshots"`
	RequiredAcks int           `yaml:"required_acks" default:"-1"`
	Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`

	// Snapshots is the capture ingest topic consumed by serve.
	Snapshots SnapshotTopicConfig `yaml:"snapshots"`
}

type SnapshotTopicConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Topic           string        `yaml:"topic" default:"spx.snapshots" validate:"required"`
	GroupID         string        `yaml:"group_id" default:"spxengine-replay"`
	AutoOffsetReset string        `yaml:"auto_offset_reset" default:"latest" validate:"oneof=earliest latest"`
	DLQTopic        string        `yaml:"dlq_topic"`
	RetryMax        int           `yaml:"retry_max" default:"3" validate:"gte=0"`
	BackoffMax      time.Duration `yaml:"backoff_max" default:"2s"`
}

type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled" default:"true"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"3"`
	Interval            time.Duration `yaml:"interval" default:"60s"`
	OpenTimeout         time.Duration `yaml:"open_timeout" default:"30s"`
}

var validate = validator.New()

// Load reads path (optional), fills defaults, applies environment
// overrides and validates.
func Load(path string) (*Config, error) {
	// Defaults first so an explicit false or 0 in the file survives.
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.ApplyEnv(os.LookupEnv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv
// outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("REPLAY_SNAPSHOT_ENABLED"); ok {
		if enabled, valid := util.ParseBoolFlag(v); valid {
			c.Replay.Enabled = enabled
		}
	}
	if v, ok := lookup("REPLAY_SNAPSHOT_INTERVAL_MS"); ok {
		if ms, valid := util.ParsePositiveInt(v); valid {
			c.Replay.FlushInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := lookup("SPX_STORE_BACKEND"); ok && v != "" {
		c.Replay.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("CLICKHOUSE_DSN"); ok && v != "" {
		c.ClickHouse.DSN = v
	}
	if v, ok := lookup("POSTGRES_DSN"); ok && v != "" {
		c.Postgres.DSN = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Cache.Redis.Addr = v
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok {
		if brokers := util.SplitCSV(v); len(brokers) > 0 {
			c.Kafka.Brokers = brokers
		}
	}
	if v, ok := lookup("KAFKA_SNAPSHOTS_ENABLED"); ok {
		if enabled, valid := util.ParseBoolFlag(v); valid {
			c.Kafka.Snapshots.Enabled = enabled
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logger.Level = strings.ToLower(v)
	}
}

// Validate runs struct tags plus cross-field backend checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	switch c.Replay.Backend {
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for the postgres backend")
		}
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for the kafka backend")
		}
	}
	if c.Kafka.Snapshots.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required to consume kafka.snapshots")
	}
	return nil
}
