package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/opsplug/auth"
	"github.com/jonwraymond/opsplug/config"
	"github.com/jonwraymond/opsplug/errorhandler"
	"github.com/jonwraymond/opsplug/health"
	"github.com/jonwraymond/opsplug/observe"
	"github.com/jonwraymond/opsplug/queuemetrics"
	"github.com/jonwraymond/opsplug/transaction"
)

// Server is an assembled service.
//
// Contract:
// - Concurrency: Router must be populated before Run; Run is called once.
// - Errors: Shutdown returns every component error joined.
type Server struct {
	cfg          config.Config
	obs          observe.Observer
	ownsObserver bool
	logger       observe.Logger

	errors       *errorhandler.Handler
	aggregator   *health.Aggregator
	plugin       *queuemetrics.Plugin
	transactions transaction.Manager
	otel         *transaction.OpenTelemetryManager
	tokens       *auth.Tokens

	router chi.Router
	app    *http.Server
	mon    *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// New assembles a Server from cfg. cfg is expected to be validated.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{cfg: cfg, obs: o.observer}
	if s.obs == nil {
		obs, err := observe.NewObserver(ctx, cfg.Observe)
		if err != nil {
			return nil, fmt.Errorf("server: observer: %w", err)
		}
		s.obs = obs
		s.ownsObserver = true
	}
	s.logger = s.obs.Logger()

	s.errors = errorhandler.New(errorhandler.Config{Reporter: o.reporter, Logger: s.logger})

	if err := s.setupTransactions(); err != nil {
		return nil, s.abort(ctx, err)
	}
	if cfg.Auth.JWT.Secret != "" {
		tokens, err := auth.NewTokens(cfg.Auth.JWT)
		if err != nil {
			return nil, s.abort(ctx, fmt.Errorf("server: auth: %w", err))
		}
		s.tokens = tokens
	}

	if cfg.QueueMetrics.Enabled {
		plugin, err := queuemetrics.NewPlugin(cfg.QueueMetrics, s.obs.Registry(), s.logger, o.queueOpts...)
		if err != nil {
			return nil, s.abort(ctx, fmt.Errorf("server: queue metrics: %w", err))
		}
		s.plugin = plugin
	}

	infoProviders, err := s.setupHealth(o)
	if err != nil {
		return nil, s.abort(ctx, err)
	}

	mw, err := observe.MiddlewareFromObserver(s.obs)
	if err != nil {
		return nil, s.abort(ctx, fmt.Errorf("server: middleware: %w", err))
	}

	r := chi.NewRouter()
	r.Use(observe.RequestID)
	r.Use(middleware.RedirectSlashes)
	r.Use(mw.Handler)
	r.Use(s.errors.Recover)
	if cfg.Server.StripNullChars {
		r.Use(StripNullChars(cfg.Server.MaxBodyBytes, s.errors))
	}

	healthHandler := health.NewHandler(s.aggregator, health.HandlerConfig{
		ResponsePayload:  cfg.Health.ResponsePayload,
		InfoProviders:    infoProviders,
		DisableRootRoute: cfg.Health.DisableRootRoute,
		Logger:           s.logger,
	})
	healthHandler.Mount(r)
	if cfg.Health.Public {
		public := health.NewHandler(s.aggregator, health.HandlerConfig{
			ResponsePayload: cfg.Health.ResponsePayload,
			AggregatedOnly:  true,
			Logger:          s.logger,
		})
		r.Get(cfg.Health.PublicPath, public.Detailed())
	}
	s.router = r

	s.app = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	if cfg.Observe.Metrics.Enabled {
		s.mon = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           s.MetricsHandler(),
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		}
	}
	return s, nil
}

func (s *Server) setupTransactions() error {
	s.otel = transaction.NewOpenTelemetryManager(s.cfg.Transactions.OpenTelemetry, s.obs.TracerProvider())
	managers := []transaction.Manager{s.otel}

	if s.cfg.Transactions.Prometheus.MetricName != "" {
		counter, err := transaction.NewPrometheusCounterManager(s.cfg.Transactions.Prometheus, s.obs.Registry())
		if err != nil {
			return fmt.Errorf("server: transactions: %w", err)
		}
		managers = append(managers, counter)
	}
	s.transactions = transaction.Multi(managers...)
	return nil
}

func (s *Server) setupHealth(o options) ([]health.InfoProvider, error) {
	aggCfg := health.AggregatorConfig{Timeout: s.cfg.Health.Timeout, Parallel: !s.cfg.Health.Sequential}
	s.aggregator = health.NewAggregator(aggCfg)
	s.aggregator.Register(o.checks...)

	infoProviders := append([]health.InfoProvider(nil), o.infoProviders...)
	if m := s.cfg.Health.Memory; m.Enabled {
		mc := health.NewMemoryChecker(health.MemoryCheckerConfig{
			WarningThreshold:  m.WarningThreshold,
			CriticalThreshold: m.CriticalThreshold,
			MaxAlloc:          m.MaxAlloc,
		})
		s.aggregator.Register(health.FromChecker(mc, m.Mandatory))
		infoProviders = append(infoProviders, mc.InfoProvider())
	}
	if s.plugin != nil {
		s.aggregator.Register(s.plugin.Checks()...)
	}

	if s.cfg.Health.Metrics {
		if err := health.RegisterMetrics(s.obs.Registry(), s.aggregator.Checks(), s.aggregator.Config()); err != nil {
			return nil, fmt.Errorf("server: health metrics: %w", err)
		}
	}
	return infoProviders, nil
}

func (s *Server) abort(ctx context.Context, err error) error {
	return errors.Join(err, s.Shutdown(ctx))
}

// Router returns the application router for mounting routes.
func (s *Server) Router() chi.Router { return s.router }

// Handler returns the application handler.
func (s *Server) Handler() http.Handler { return s.router }

// MetricsHandler serves the shared Prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.obs.Registry(), promhttp.HandlerOpts{}))
	return r
}

// Errors returns the error handler used by the router.
func (s *Server) Errors() *errorhandler.Handler { return s.errors }

// Aggregator returns the health aggregator.
func (s *Server) Aggregator() *health.Aggregator { return s.aggregator }

// Transactions returns the combined transaction manager.
func (s *Server) Transactions() transaction.Manager { return s.transactions }

// OpenTelemetry returns the OpenTelemetry transaction manager.
func (s *Server) OpenTelemetry() *transaction.OpenTelemetryManager { return s.otel }

// QueueMetrics returns the queue metrics plugin, or nil when disabled.
func (s *Server) QueueMetrics() *queuemetrics.Plugin { return s.plugin }

// Logger returns the service logger.
func (s *Server) Logger() observe.Logger { return s.logger }

// RequireToken returns middleware verifying bearer JWTs. It rejects every
// request when no JWT secret is configured.
func (s *Server) RequireToken() func(http.Handler) http.Handler {
	if s.tokens == nil {
		return s.rejectAll
	}
	return s.tokens.Middleware(s.errors)
}

// Tokens returns the JWT helpers, or nil when no secret is configured.
func (s *Server) Tokens() *auth.Tokens { return s.tokens }

// RequireStaticToken returns middleware checking the configured static
// bearer token. It rejects every request when none is configured.
func (s *Server) RequireStaticToken() func(http.Handler) http.Handler {
	if s.cfg.Auth.StaticToken == "" {
		return s.rejectAll
	}
	return auth.StaticTokenMiddleware(s.cfg.Auth.StaticToken, s.errors, s.logger)
}

func (s *Server) rejectAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errors.Handle(w, r, errorhandler.AuthFailed())
	})
}

// Run runs startup checks, starts queue metrics collection and serves both
// listeners until ctx is cancelled, a listener fails or Shutdown is called.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Health.StartupChecks {
		if _, err := health.RunStartupChecks(ctx, s.aggregator, s.logger); err != nil {
			return errors.Join(err, s.Shutdown(context.Background()))
		}
	}
	if s.plugin != nil {
		s.plugin.Start(ctx)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	for _, srv := range []*http.Server{s.app, s.mon} {
		if srv == nil {
			continue
		}
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return errors.Join(fmt.Errorf("server: listen %s: %w", srv.Addr, err), s.Shutdown(context.Background()))
		}
		s.logger.Info(ctx, "listening", observe.Field{Key: "addr", Value: ln.Addr().String()})
		g.Go(func() error {
			defer stop()
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the listeners, the queue metrics plugin and the observer.
// Only the first call does any work.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { s.shutdownErr = s.shutdown(ctx) })
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range []*http.Server{s.app, s.mon} {
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
	}
	if s.plugin != nil {
		if err := s.plugin.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("queue metrics close: %w", err))
		}
	}
	if s.ownsObserver && s.obs != nil {
		if err := s.obs.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
