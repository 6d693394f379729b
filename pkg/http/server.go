package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SPXEngine/pkg/http/middleware"
	applogger "SPXEngine/pkg/logger"
)

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowRequest     time.Duration
	MetricsPath     string
	Registerer      prometheus.Registerer
	Gatherer        prometheus.Gatherer
}

// Server wraps an Echo instance with logging, recovery and metrics.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	log    *applogger.Logger
	errCh  chan error
}

// NewServer builds the Echo stack and registers handler routes.
func NewServer(handler Handler, log *applogger.Logger, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SlowRequest:     time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if log == nil {
		log = applogger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover(log))
	e.Use(middleware.RequestLogging(log))
	if cfg.Registerer != nil {
		e.Use(middleware.Metrics(cfg.Registerer, log, cfg.SlowRequest))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}

	if cfg.MetricsPath != "" && cfg.Gatherer != nil {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{echo: e, config: cfg, log: log, errCh: make(chan error, 1)}
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// Start listens in the background. Errors other than a clean shutdown
// are delivered on Errors().
func (s *Server) Start() {
	addr := s.Addr()
	go func() {
		s.log.Info("http server listening", applogger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", applogger.Error(err))
			s.errCh <- err
		}
	}()
}

// Errors reports a fatal listen error.
func (s *Server) Errors() <-chan error { return s.errCh }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) {
		if host != "" {
			c.Host = host
		}
	}
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) {
		if port > 0 {
			c.Port = port
		}
	}
}

// WithTimeouts sets read/write/shutdown timeouts. Zero keeps the default.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
		if shutdown > 0 {
			c.ShutdownTimeout = shutdown
		}
	}
}

// WithMetrics enables request metrics on reg and serves gatherer at path.
func WithMetrics(path string, reg prometheus.Registerer, gatherer prometheus.Gatherer) ServerOption {
	return func(c *ServerConfig) {
		c.MetricsPath = path
		c.Registerer = reg
		c.Gatherer = gatherer
	}
}

// WithSlowRequest sets the latency above which requests are logged as slow.
func WithSlowRequest(d time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.SlowRequest = d
	}
}
