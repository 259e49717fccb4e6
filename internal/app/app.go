// Package app wires the gatewatch components into one process: the two
// WebSocket gateways, the dashboard and the optional session store.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vesaa/gatewatch/internal/config"
	"github.com/vesaa/gatewatch/internal/gateway"
	"github.com/vesaa/gatewatch/internal/metrics"
	"github.com/vesaa/gatewatch/internal/models"
	"github.com/vesaa/gatewatch/internal/registry"
	"github.com/vesaa/gatewatch/internal/router"
	"github.com/vesaa/gatewatch/internal/server"
	"github.com/vesaa/gatewatch/internal/store"
	"github.com/vesaa/gatewatch/internal/sysinfo"
)

// App owns every long-lived component of a running server.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registries *registry.Set
	router     *router.Router
	external   *gateway.Server
	internal   *gateway.Server
	dashboard  *http.Server
	sessions   *store.Store
}

type options struct {
	logFiles   []string
	hostSource sysinfo.Source
	started    time.Time
}

// Option customises New.
type Option func(*options)

// WithLogFiles reports the sizes of paths in /metrics.
func WithLogFiles(paths []string) Option {
	return func(o *options) { o.logFiles = paths }
}

// WithHostSource replaces the gopsutil host source used by /sysinfo.
func WithHostSource(src sysinfo.Source) Option {
	return func(o *options) { o.hostSource = src }
}

// WithStartTime sets the instant uptime is measured from.
func WithStartTime(t time.Time) Option {
	return func(o *options) { o.started = t }
}

// New builds an App from cfg. Nothing listens until Run or Serve.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{started: time.Now()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hostSource == nil {
		o.hostSource = sysinfo.NewHostSource()
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		registries: registry.NewSet(models.Servers...),
		router:     router.New(logger.With("component", "router")),
	}

	var recorder gateway.SessionRecorder
	if cfg.SessionStore {
		st, err := store.Open(cfg.DBPath, cfg.SessionQueue, logger)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
		a.sessions = st
		recorder = st
	}

	var err error
	a.external, err = a.newGateway(gateway.Config{
		Server:          models.ServerExternal,
		Addr:            cfg.ExternalAddr(),
		Handler:         a.router,
		Recorder:        recorder,
		MaxMessageBytes: cfg.MaxMessageBytes(),
	})
	if err != nil {
		return nil, a.abort(err)
	}
	a.internal, err = a.newGateway(gateway.Config{
		Server:          models.ServerInternal,
		Addr:            cfg.InternalAddr(),
		Welcome:         cfg.WelcomeMessage,
		Recorder:        recorder,
		MaxMessageBytes: cfg.MaxMessageBytes(),
	})
	if err != nil {
		return nil, a.abort(err)
	}

	snapshots := metrics.NewBuilder(a.registries, o.started,
		metrics.WithLogFiles(o.logFiles),
		metrics.WithProcessStats(),
	)
	api := &server.API{
		Metrics:     snapshots,
		Prometheus:  snapshots.PrometheusHandler(),
		Host:        sysinfo.NewCollector(o.hostSource, cfg.IncludeBattery, logger.With("component", "sysinfo")),
		Connections: a.registries,
		Logger:      logger.With("component", "dashboard"),
		RenderViews: cfg.RenderViews,
	}
	if a.sessions != nil {
		api.Sessions = a.sessions
	}
	engine, err := server.NewEngine(api)
	if err != nil {
		return nil, a.abort(err)
	}
	a.dashboard = &http.Server{
		Addr:              cfg.DashboardAddr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *App) newGateway(cfg gateway.Config) (*gateway.Server, error) {
	reg, err := a.registries.Get(cfg.Server)
	if err != nil {
		return nil, err
	}
	return gateway.New(cfg, reg, a.logger)
}

// abort releases what New opened before failing.
func (a *App) abort(err error) error {
	if a.sessions != nil {
		_ = a.sessions.Close()
	}
	return err
}

// Registries exposes the connection registries, mainly for tests.
func (a *App) Registries() *registry.Set { return a.registries }

// Router returns the external gateway's router so callers can register
// additional actions before serving.
func (a *App) Router() *router.Router { return a.router }

// Run listens on the configured addresses and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	var lns []net.Listener
	closeAll := func() {
		for _, ln := range lns {
			_ = ln.Close()
		}
	}
	for _, addr := range []string{a.cfg.ExternalAddr(), a.cfg.InternalAddr(), a.cfg.DashboardAddr()} {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			closeAll()
			_ = a.abort(nil)
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		lns = append(lns, ln)
	}
	return a.Serve(ctx, lns[0], lns[1], lns[2])
}

// Serve serves the external gateway, internal gateway and dashboard on the
// given listeners until ctx is done or one of them fails, then shuts
// everything down.
func (a *App) Serve(ctx context.Context, external, internal, dashboard net.Listener) error {
	errCh := make(chan error, 3)
	go func() { errCh <- a.external.Serve(external) }()
	go func() { errCh <- a.internal.Serve(internal) }()
	go func() {
		a.logger.Info("dashboard listening", "addr", dashboard.Addr().String())
		if err := a.dashboard.Serve(dashboard); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dashboard: %w", err)
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-errCh:
		a.logger.Error("server failed, shutting down", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace())
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown stops both gateways (closing their connections), then the
// dashboard, then flushes the session store.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.external.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.internal.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.dashboard.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dashboard shutdown: %w", err))
	}
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing session store: %w", err))
		}
	}
	return errors.Join(errs...)
}
