package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/c360/datachannel/component"
	"github.com/c360/datachannel/config"
	"github.com/c360/datachannel/engine"
	"github.com/c360/datachannel/errors"
	"github.com/c360/datachannel/health"
	"github.com/c360/datachannel/metric"
	"github.com/c360/datachannel/natsclient"
	"github.com/c360/datachannel/pipeline"
	"github.com/c360/datachannel/pkg/tlsutil"
	"github.com/c360/datachannel/transport/nats"
)

// app owns the shared dependencies, the central and the host router.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry
	nats    *natsclient.Client
	monitor *health.Monitor
	central *engine.Central
	router  chi.Router
}

func newApp(cfg *config.Config, builders []*pipeline.Builder, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metric.NewMetricsRegistry(),
	}
	a.monitor = health.NewMonitor(health.WithTransitionHook(func(prev, next health.Status) {
		logger.Info("Health transition", "component", next.Component, "from", prev.Status, "to", next.Status)
	}))

	if usesKind(cfg, nats.Kind) {
		client, err := a.newNATSClient()
		if err != nil {
			return nil, err
		}
		a.nats = client
		a.monitor.UpdateDegraded("nats", "Not connected yet")
	}

	a.central = engine.NewCentral(component.Dependencies{
		NATSClient:      a.nats,
		MetricsRegistry: a.metrics,
		Logger:          logger,
		Platform:        component.PlatformMeta{ID: cfg.Platform.ID},
	}, engine.Config{
		RecentExceptions: cfg.Platform.RecentExceptionsToKeep,
		InitWorkers:      cfg.Platform.InitWorkers,
	})
	for _, b := range builders {
		if err := b.Register(a.central); err != nil {
			return nil, err
		}
	}

	a.router = a.newRouter()

	// Build failures are recorded per channel and reported by /healthz.
	if err := a.central.StartBuild(a.router); err != nil {
		logger.Warn("Some channels failed to build", "error", err)
	}
	return a, nil
}

func (a *app) newNATSClient() (*natsclient.Client, error) {
	n := a.cfg.NATS
	name := n.Name
	if name == "" {
		name = appName + "-" + a.cfg.Platform.ID
	}

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithMetrics(a.metrics),
		natsclient.WithName(name),
		natsclient.WithMaxReconnects(n.MaxReconnects),
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				a.monitor.UpdateHealthy("nats", "Connected")
				return
			}
			a.monitor.UpdateUnhealthy("nats", "Disconnected")
		}),
	}
	if n.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(n.ReconnectWait.Std()))
	}
	if n.Username != "" {
		opts = append(opts, natsclient.WithCredentials(n.Username, n.Password))
	}
	if n.Token != "" {
		opts = append(opts, natsclient.WithToken(n.Token))
	}
	if n.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(n.TLS.CertFile, n.TLS.KeyFile, n.TLS.CAFile))
	}

	client, err := natsclient.NewClient(n.URL(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "App", "newNATSClient", "create client")
	}
	return client, nil
}

func usesKind(cfg *config.Config, kind string) bool {
	for _, ch := range cfg.Enabled() {
		if ch.Outer.Kind == kind || (ch.Inner != nil && ch.Inner.Kind == kind) {
			return true
		}
	}
	return false
}

func (a *app) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Handle("/metrics", a.metrics.Handler())
	r.Get("/healthz", a.handleHealth)
	r.Route("/api", a.central.RegisterHTTPHandlers)
	return r
}

// overallHealth combines channel health with tracked connections.
func (a *app) overallHealth() health.Status {
	subs := append([]health.Status{a.central.Health()}, a.monitor.Statuses()...)
	return health.Aggregate(appName, subs)
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	overall := a.overallHealth()

	status := http.StatusOK
	if overall.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(overall); err != nil {
		a.logger.Error("Failed to encode health", "error", err)
	}
}

// listen binds the host listener, wrapping it in TLS when configured.
func (a *app) listen(ctx context.Context) (net.Listener, error) {
	tlsCfg, err := tlsutil.LoadServerConfig(a.cfg.HTTP.TLS)
	if err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return nil, errors.WrapTransient(err, "App", "listen", a.cfg.HTTP.Addr)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	return ln, nil
}

// serve runs the host listener and initializes channels once it accepts
// connections. It returns after ctx ends and everything has shut down.
func (a *app) serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	ready := make(chan struct{})
	g.Go(func() error {
		close(ready)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return errors.WrapFatal(err, "App", "serve", "http server")
		}
		return nil
	})
	a.logger.Info("HTTP listener started", "addr", ln.Addr().String(), "tls", a.cfg.HTTP.TLS.Enabled)

	initDone := a.central.InitializeWhenReady(gctx, ready)

	// gctx ends on the shutdown signal or when the listener fails.
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("Received shutdown signal")
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.shutdown(shutdownCtx, srv, initDone)
	})
	return g.Wait()
}

func (a *app) shutdown(ctx context.Context, srv *http.Server, initDone <-chan struct{}) error {
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "App", "shutdown", "http server"))
	}

	select {
	case <-initDone:
	case <-ctx.Done():
		a.logger.Warn("Channel initialization still running at shutdown")
	}

	if err := a.central.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "App", "shutdown", "nats"))
		}
	}
	return errors.Join(errs...)
}
