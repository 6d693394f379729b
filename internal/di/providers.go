package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	domrepo "SPXEngine/internal/domain/repository"
	"SPXEngine/internal/handler/api"
	internalrepo "SPXEngine/internal/repository"
	"SPXEngine/internal/service/ratelimit"
	"SPXEngine/internal/services/analytics"
	"SPXEngine/internal/services/features"
	"SPXEngine/internal/usecase"
	"SPXEngine/pkg/cache"
	pkgch "SPXEngine/pkg/clickhouse"
	"SPXEngine/pkg/config"
	xhttp "SPXEngine/pkg/http"
	pkgkafka "SPXEngine/pkg/kafka"
	applogger "SPXEngine/pkg/logger"
	"SPXEngine/pkg/metrics"
	"SPXEngine/pkg/postgres"
	"SPXEngine/pkg/server"
)

const connectTimeout = 10 * time.Second

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("app", cfg.App.Name), applogger.String("env", cfg.App.Environment)), nil
}

// ProvideRegistry creates a private registry with Go and process collectors.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

// ProvideCache builds the context cache selected by cache.type.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	memory := func() *cache.MemoryCache {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MaxSize),
			cache.WithMemoryCleanup(cfg.MultiTF.CacheTTL),
		)
	}
	remote := func() (*cache.RedisCache, error) {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		rc := cfg.Cache.Redis
		return cache.NewRedisCache(ctx,
			cache.WithRedisAddr(rc.Addr),
			cache.WithRedisPassword(rc.Password),
			cache.WithRedisDB(rc.DB),
			cache.WithRedisPool(rc.PoolSize, 0, 0),
			cache.WithRedisPrefix(rc.Prefix),
		)
	}

	var svc cache.Service
	switch cfg.Cache.Type {
	case "redis":
		rc, err := remote()
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
	case "layered":
		rc, err := remote()
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Cache.MaxSize),
			cache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
		)
	default:
		svc = memory()
	}
	l.Info("context cache ready", applogger.String("type", cfg.Cache.Type))

	cleanup := func() {
		if err := svc.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	return svc, cleanup, nil
}

// ProvideClickHouseClient connects and, when configured, applies the DDL.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	cc := cfg.ClickHouse
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithDSN(cc.DSN),
		pkgch.WithHost(cc.Host, cc.Port),
		pkgch.WithDatabase(cc.Database),
		pkgch.WithCredentials(cc.User, cc.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cc.UseHTTP),
		pkgch.WithAsyncInsert(cc.AsyncInsert, cc.WaitForAsync),
		pkgch.WithTimeouts(cc.DialTimeout, cc.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cc.InitSchema {
		if err := client.InitSchema(ctx, pkgch.SchemaStatements(cc.Database)); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	l.Info("clickhouse connected", applogger.String("database", cc.Database))

	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

func ProvideBarStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) domrepo.BarSource {
	return internalrepo.NewClickHouseBarStore(ch, qualify(cfg.ClickHouse.Database, cfg.MultiTF.BarTable), l)
}

// ProvideReplayTable picks the replay sink by replay.backend and wraps it
// in the insert breaker when enabled.
func ProvideReplayTable(cfg *config.Config, ch *pkgch.Client, reg *prometheus.Registry, l *applogger.Logger) (domrepo.ReplaySnapshotTable, func(), error) {
	var (
		table   domrepo.ReplaySnapshotTable
		cleanup = func() {}
	)

	switch cfg.Replay.Backend {
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Postgres.InitSchema {
			if err := pool.InitSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("postgres schema: %w", err)
			}
		}
		table = internalrepo.NewPostgresReplayTable(pool, cfg.Replay.Table)
		cleanup = pool.Close

	case config.BackendKafka:
		kc := cfg.Kafka
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(kc.Brokers),
			pkgkafka.WithTopic(kc.Topic),
			pkgkafka.WithCompression(kc.Compression),
			pkgkafka.WithRequiredAcks(kc.RequiredAcks),
			pkgkafka.WithMaxAttempts(kc.MaxAttempts),
			pkgkafka.WithWriteTimeout(kc.WriteTimeout),
			pkgkafka.WithBatchTimeout(kc.BatchTimeout),
			pkgkafka.WithHashByKey(true),
			pkgkafka.WithRegisterer(reg),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		kt := internalrepo.NewKafkaReplayTable(producer)
		table = kt
		cleanup = func() {
			if err := kt.Close(); err != nil {
				l.Warn("kafka producer close error", applogger.Error(err))
			}
		}

	default:
		// The ClickHouse client is owned by ProvideClickHouseClient.
		table = internalrepo.NewClickHouseReplayTable(ch, qualify(cfg.ClickHouse.Database, cfg.Replay.Table))
	}

	if cfg.Breaker.Enabled {
		table = internalrepo.NewBreakerTable(table, internalrepo.BreakerConfig{
			Name:                "replay_insert_" + cfg.Replay.Backend,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			Interval:            cfg.Breaker.Interval,
			OpenTimeout:         cfg.Breaker.OpenTimeout,
		}, l)
	}
	l.Info("replay table ready",
		applogger.String("backend", cfg.Replay.Backend),
		applogger.Bool("breaker", cfg.Breaker.Enabled),
	)
	return table, cleanup, nil
}

func ProvideMultiTFContext(bars domrepo.BarSource, c cache.Service, l *applogger.Logger, m domrepo.Metrics, cfg *config.Config) *usecase.MultiTFContextUseCase {
	mc := cfg.MultiTF
	return usecase.NewMultiTFContextUseCase(bars, c, l, m, usecase.MultiTFConfig{
		CacheTTL:            mc.CacheTTL,
		OneHourLookbackDays: mc.OneHourLookbackDays,
		FetchTimeout:        mc.FetchTimeout,
		Frame:               features.FrameConfig{EMAFast: mc.EMAFast, EMASlow: mc.EMASlow},
	})
}

func ProvideReplayWriter(table domrepo.ReplaySnapshotTable, l *applogger.Logger, m domrepo.Metrics, cfg *config.Config) *usecase.ReplaySnapshotWriter {
	return usecase.NewReplaySnapshotWriter(table, l, usecase.ReplayWriterConfig{
		Enabled:       cfg.Replay.Enabled,
		FlushInterval: cfg.Replay.FlushInterval,
		Symbol:        cfg.Replay.Symbol,
	}, usecase.WithWriterMetrics(m))
}

func ProvideTradeReplay(bars domrepo.BarSource, l *applogger.Logger) *usecase.TradeReplayUseCase {
	return usecase.NewTradeReplayUseCase(bars, l)
}

func ProvideRefreshLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RefreshInterval, cfg.Server.RefreshBurst)
}

// ScoreOptionsFromConfig maps multi_tf weights onto the confluence scorer.
func ScoreOptionsFromConfig(cfg *config.Config) analytics.ScoreOptions {
	w := cfg.MultiTF.Weights
	return analytics.ScoreOptions{
		Weights:            &analytics.TimeframeWeights{W1h: w.W1h, W15m: w.W15m, W5m: w.W5m, W1m: w.W1m},
		PenalizeUnreliable: cfg.MultiTF.PenalizeUnreliable,
	}
}

func ProvideOpsHandler(
	l *applogger.Logger,
	contexts *usecase.MultiTFContextUseCase,
	writer *usecase.ReplaySnapshotWriter,
	limiter *ratelimit.Limiter,
	ch *pkgch.Client,
	table domrepo.ReplaySnapshotTable,
	cfg *config.Config,
) *api.OpsHandler {
	opts := []api.OpsOption{
		api.WithHealthCheck("clickhouse", ch.Health),
		api.WithScoreOptions(ScoreOptionsFromConfig(cfg)),
	}
	if h, ok := table.(interface{ Health(context.Context) error }); ok {
		opts = append(opts, api.WithHealthCheck("replay_store", h.Health))
	}
	return api.NewOpsHandler(l, contexts, writer, limiter, opts...)
}

func ProvideHTTPServer(cfg *config.Config, h *api.OpsHandler, l *applogger.Logger, reg *prometheus.Registry) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	}
	return xhttp.NewServer(h, l, opts...)
}

// ProvideSnapshotConsumer subscribes the replay writer to the snapshots
// topic. It returns nil when kafka.snapshots is disabled.
func ProvideSnapshotConsumer(cfg *config.Config, writer *usecase.ReplaySnapshotWriter, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, func(), error) {
	sc := cfg.Kafka.Snapshots
	if !sc.Enabled {
		return nil, func() {}, nil
	}
	handler := usecase.NewSnapshotIngestHandler(sc.Topic, writer, l)
	consumer, err := pkgkafka.NewConsumer(handler, l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(sc.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(sc.AutoOffsetReset),
		pkgkafka.WithConsumerRetry(sc.RetryMax, 0, sc.BackoffMax),
		pkgkafka.WithConsumerDLQ(sc.DLQTopic),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot consumer: %w", err)
	}
	l.Info("snapshot consumer ready", applogger.String("topic", sc.Topic), applogger.String("group_id", sc.GroupID))

	// App.Shutdown normally stops it first; Stop is idempotent.
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := consumer.Stop(ctx); err != nil {
			l.Warn("snapshot consumer close error", applogger.Error(err))
		}
	}
	return consumer, cleanup, nil
}

func ProvideApp(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, writer *usecase.ReplaySnapshotWriter, consumer *pkgkafka.Consumer) *server.App {
	var opts []server.Option
	if consumer != nil {
		opts = append(opts, server.WithIngest(consumer))
	}
	return server.New(l, srv, writer, cfg.Server.ShutdownTimeout, opts...)
}

func qualify(db, table string) string {
	if db == "" || table == "" {
		return table
	}
	return db + "." + table
}
