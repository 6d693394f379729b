package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SPXEngine/internal/domain/models"
	xhttp "SPXEngine/pkg/http"
	applogger "SPXEngine/pkg/logger"
)

// ReplayLoop is the background part of the replay writer.
type ReplayLoop interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) models.FlushOutcome
}

// Ingest is a background source of captures, such as the snapshots
// topic consumer.
type Ingest interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// App owns the ops HTTP server, capture ingest and the replay writer loop.
type App struct {
	log             *applogger.Logger
	http            *xhttp.Server
	replay          ReplayLoop
	ingest          []Ingest
	shutdownTimeout time.Duration
}

type Option func(*App)

// WithIngest adds a capture source started after the writer loop and
// stopped before it.
func WithIngest(i Ingest) Option {
	return func(a *App) {
		if i != nil {
			a.ingest = append(a.ingest, i)
		}
	}
}

// New creates a new App instance with all dependencies.
func New(log *applogger.Logger, httpServer *xhttp.Server, replay ReplayLoop, shutdownTimeout time.Duration, opts ...Option) *App {
	if log == nil {
		log = applogger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	a := &App{log: log, http: httpServer, replay: replay, shutdownTimeout: shutdownTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the writer loop and HTTP server, then blocks until ctx is
// cancelled, SIGINT/SIGTERM arrives, or the listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.replay != nil {
		a.replay.Start(ctx)
	}
	for _, in := range a.ingest {
		in.Start(ctx)
	}

	var errCh <-chan error
	if a.http != nil {
		a.http.Start()
		errCh = a.http.Errors()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = err
	}
	return errors.Join(runErr, a.Shutdown(context.WithoutCancel(ctx)))
}

// Shutdown stops HTTP and ingest first so no capture or manual flush races
// the final one, then stops the writer, which flushes whatever is still
// pending.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.shutdownTimeout)
	defer cancel()

	var err error
	if a.http != nil {
		if herr := a.http.Stop(ctx); herr != nil {
			a.log.Error("http shutdown error", applogger.Error(herr))
			err = herr
		}
	}

	for _, in := range a.ingest {
		if ierr := in.Stop(ctx); ierr != nil {
			a.log.Error("ingest shutdown error", applogger.Error(ierr))
			err = errors.Join(err, ierr)
		}
	}

	if a.replay != nil {
		out := a.replay.Stop(ctx)
		a.log.Info("replay writer stopped",
			applogger.Int("inserted", out.Inserted),
			applogger.Int("discarded", out.Discarded),
			applogger.Int("batches", out.Batches),
		)
	}
	return err
}
