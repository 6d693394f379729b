package api

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"SPXEngine/internal/domain/models"
	domsvc "SPXEngine/internal/domain/service"
	"SPXEngine/internal/service/ratelimit"
	"SPXEngine/internal/services/analytics"
	"SPXEngine/internal/usecase"
	xhttp "SPXEngine/pkg/http"
	xlogger "SPXEngine/pkg/logger"
	"SPXEngine/pkg/util"
)

// ReplayOperator is the slice of the replay writer exposed to operators.
type ReplayOperator interface {
	Capture(ctx context.Context, in models.CaptureInput) bool
	Stats() usecase.ReplayWriterStats
	Flush(ctx context.Context) models.FlushOutcome
}

// HealthCheck pings one backing store.
type HealthCheck func(ctx context.Context) error

// OpsOption configures OpsHandler.
type OpsOption func(*OpsHandler)

// WithHealthCheck adds a named dependency to /healthz.
func WithHealthCheck(name string, check HealthCheck) OpsOption {
	return func(h *OpsHandler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

// WithScoreOptions sets the confluence weighting used by /ops/multi-tf.
func WithScoreOptions(opts analytics.ScoreOptions) OpsOption {
	return func(h *OpsHandler) { h.score = opts }
}

// OpsHandler serves health, replay queue and multi-TF inspection routes.
type OpsHandler struct {
	logger   *xlogger.Logger
	contexts domsvc.ContextProvider
	replay   ReplayOperator
	refresh  *ratelimit.Limiter
	score    analytics.ScoreOptions
	checks   map[string]HealthCheck
	now      func() time.Time
}

func NewOpsHandler(logger *xlogger.Logger, contexts domsvc.ContextProvider, replay ReplayOperator, refresh *ratelimit.Limiter, opts ...OpsOption) *OpsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &OpsHandler{
		logger:   logger,
		contexts: contexts,
		replay:   replay,
		refresh:  refresh,
		checks:   make(map[string]HealthCheck),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ xhttp.Handler = (*OpsHandler)(nil)

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/ops")
	g.GET("/replay/pending", h.ReplayPending)
	g.POST("/replay/capture", h.ReplayCapture)
	g.POST("/replay/flush", h.ReplayFlush)
	g.GET("/multi-tf", h.MultiTF)
}

// Health reports 200 when every registered check passes, 503 otherwise.
func (h *OpsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			healthy = false
			status[name] = err.Error()
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.ServiceUnavailableResponse(c, status)
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *OpsHandler) ReplayPending(c echo.Context) error {
	if h.replay == nil {
		return xhttp.ServiceUnavailableResponse(c, "replay writer not configured")
	}
	return xhttp.SuccessResponse(c, h.replay.Stats())
}

// ReplayCapture queues one snapshot pushed by a producer. A capture the
// writer skips (closed market, writer disabled) is still a 202 with
// queued=false.
func (h *OpsHandler) ReplayCapture(c echo.Context) error {
	if h.replay == nil {
		return xhttp.ServiceUnavailableResponse(c, "replay writer not configured")
	}
	req := &models.CaptureRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	in, err := usecase.CaptureInputFromRequest(*req)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("capturedAt", "capturedAt %q is not a recognised timestamp", req.CapturedAt).WithError(err))
	}

	queued := h.replay.Capture(c.Request().Context(), in)
	return xhttp.AcceptedResponse(c, models.CaptureResponse{
		Queued:  queued,
		Pending: h.replay.Stats().Pending,
	})
}

// ReplayFlush drains the queue now. Failed batches are still discarded
// and show up in the outcome's Discarded count.
func (h *OpsHandler) ReplayFlush(c echo.Context) error {
	if h.replay == nil {
		return xhttp.ServiceUnavailableResponse(c, "replay writer not configured")
	}
	out := h.replay.Flush(c.Request().Context())
	h.logger.Info("manual replay flush",
		xlogger.Int("inserted", out.Inserted),
		xlogger.Int("discarded", out.Discarded),
		xlogger.Int("batches", out.Batches),
	)
	return xhttp.SuccessResponse(c, out)
}

func (h *OpsHandler) MultiTF(c echo.Context) error {
	if h.contexts == nil {
		return xhttp.ServiceUnavailableResponse(c, "context provider not configured")
	}
	req := &models.MultiTFRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)

	evalAt := h.now()
	if req.At != "" {
		t, ok := util.ParseTime(req.At)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("at", "at %q is not a recognised timestamp", req.At))
		}
		evalAt = t
	}

	if req.Refresh && h.refresh != nil && !h.refresh.Allow(symbol) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("refresh throttled for "+symbol).WithParam("symbol", symbol))
	}

	mtf := h.contexts.GetContext(c.Request().Context(), domsvc.ContextOptions{
		Symbol:         symbol,
		EvaluationTime: evalAt,
		ForceRefresh:   req.Refresh,
	})

	price := req.Price
	if price == 0 {
		price = mtf.TF1m.LatestClose
	}
	direction := models.Direction(req.Direction)
	score := analytics.ScoreConfluence(&mtf, direction, price, h.score)

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, models.MultiTFResponse{
		Context:    mtf,
		Confluence: score,
		Direction:  direction,
		Price:      price,
	})
}
