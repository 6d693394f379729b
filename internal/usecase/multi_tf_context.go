package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"SPXEngine/internal/domain/models"
	domrepo "SPXEngine/internal/domain/repository"
	domsvc "SPXEngine/internal/domain/service"
	"SPXEngine/internal/services/features"
	"SPXEngine/pkg/cache"
	"SPXEngine/pkg/logger"
	"SPXEngine/pkg/markethours"
	"SPXEngine/pkg/metrics"
)

const (
	multiTFCachePrefix = "spx_command_center:multi_tf:v2"
	defaultSymbol      = "SPX"
)

// MultiTFConfig tunes the context assembler.
type MultiTFConfig struct {
	CacheTTL            time.Duration
	OneHourLookbackDays int
	FetchTimeout        time.Duration
	Frame               features.FrameConfig
}

// DefaultMultiTFConfig mirrors the production settings.
func DefaultMultiTFConfig() MultiTFConfig {
	return MultiTFConfig{
		CacheTTL:            45 * time.Second,
		OneHourLookbackDays: 7,
		FetchTimeout:        10 * time.Second,
		Frame:               features.DefaultFrameConfig(),
	}
}

// MultiTFContextUseCase builds and caches the four-frame context.
type MultiTFContextUseCase struct {
	bars    domrepo.BarSource
	cache   cache.Service
	log     *logger.Logger
	metrics domrepo.Metrics
	cfg     MultiTFConfig
	now     func() time.Time
}

func NewMultiTFContextUseCase(bars domrepo.BarSource, c cache.Service, log *logger.Logger, m domrepo.Metrics, cfg MultiTFConfig) *MultiTFContextUseCase {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultMultiTFConfig().CacheTTL
	}
	if cfg.OneHourLookbackDays <= 0 {
		cfg.OneHourLookbackDays = DefaultMultiTFConfig().OneHourLookbackDays
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultMultiTFConfig().FetchTimeout
	}
	return &MultiTFContextUseCase{bars: bars, cache: c, log: log, metrics: m, cfg: cfg, now: time.Now}
}

// ContextCacheKey is the cache key for (symbol, trading day of t).
// SPX keeps the bare key for compatibility with existing readers.
func ContextCacheKey(symbol string, t time.Time) string {
	sym := normalizeSymbol(symbol)
	if sym == defaultSymbol {
		sym = ""
	}
	return cache.GenerateKeyWithParams(multiTFCachePrefix, sym, markethours.SessionDate(t))
}

// GetContext never fails: on any fetch error it returns the neutral
// fallback context and logs a warning.
func (uc *MultiTFContextUseCase) GetContext(ctx context.Context, opts domsvc.ContextOptions) models.MultiTFContext {
	start := uc.now()
	symbol := normalizeSymbol(opts.Symbol)
	evalAt := opts.EvaluationTime
	if evalAt.IsZero() {
		evalAt = start
	}
	key := ContextCacheKey(symbol, evalAt)

	if !opts.ForceRefresh && uc.cache != nil {
		var cached models.MultiTFContext
		err := uc.cache.Get(ctx, key, &cached)
		switch {
		case err == nil && validContext(cached):
			cached.Source = models.SourceCached
			uc.metrics.RecordContextSource(string(models.SourceCached))
			return cached
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			uc.log.Debug("multi-tf cache read failed", logger.String("key", key), logger.Error(err))
		}
	}

	out, err := uc.compute(ctx, symbol, evalAt)
	if err != nil {
		uc.log.Warn("failed to compute multi-timeframe confluence context",
			logger.String("symbol", symbol),
			logger.Error(err),
		)
		uc.metrics.RecordContextSource(string(models.SourceFallback))
		return features.NeutralContext(evalAt)
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, out, uc.cfg.CacheTTL); err != nil {
			uc.log.Debug("multi-tf cache write failed", logger.String("key", key), logger.Error(err))
		}
	}
	uc.metrics.RecordContextSource(string(models.SourceComputed))
	uc.metrics.RecordLatency("multi_tf_context", uc.now().Sub(start).Seconds())
	return out
}

func (uc *MultiTFContextUseCase) compute(ctx context.Context, symbol string, evalAt time.Time) (ctxOut models.MultiTFContext, err error) {
	if uc.bars == nil {
		return ctxOut, fmt.Errorf("no bar source configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compute panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.FetchTimeout)
	defer cancel()

	day := markethours.SessionDay(evalAt)
	dayEnd := day.AddDate(0, 0, 1)
	hourFrom := day.AddDate(0, 0, -uc.cfg.OneHourLookbackDays)

	tfs := [4]domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m, domrepo.TF15m, domrepo.TF1h}
	var raw [4][]models.ChartBar

	g, gctx := errgroup.WithContext(ctx)
	for i, tf := range tfs {
		from := day
		if tf == domrepo.TF1h {
			from = hourFrom
		}
		g.Go(func() error {
			bars, err := uc.bars.GetBars(gctx, symbol, tf, from, dayEnd)
			if err != nil && !errors.Is(err, domrepo.ErrNoBars) {
				return fmt.Errorf("fetch %s bars: %w", tf, err)
			}
			raw[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ctxOut, err
	}

	build := func(i int) models.FrameSnapshot {
		return features.BuildFrameSnapshot(string(tfs[i]), features.ToFrameBars(raw[i]), uc.cfg.Frame)
	}
	return models.MultiTFContext{
		AsOf:   features.FormatAsOf(evalAt),
		TF1m:   build(0),
		TF5m:   build(1),
		TF15m:  build(2),
		TF1h:   build(3),
		Source: models.SourceComputed,
	}, nil
}

func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return defaultSymbol
	}
	return s
}

// validContext rejects partially decoded cache entries.
func validContext(c models.MultiTFContext) bool {
	if c.AsOf == "" {
		return false
	}
	for _, f := range c.Frames() {
		if f.Timeframe == "" || f.Trend == "" {
			return false
		}
	}
	return true
}

var _ domsvc.ContextProvider = (*MultiTFContextUseCase)(nil)
