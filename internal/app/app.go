// Package app wires C1-C8 into a single running process: the dispatcher
// behind an http.Server, the periodic health checker, and the rate
// limiter's background sweep. The three run independently; a failure in
// one is logged and does not stop the others.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexbridge/sidecar/internal/adapter/balancer"
	"github.com/nexbridge/sidecar/internal/adapter/breaker"
	"github.com/nexbridge/sidecar/internal/adapter/dispatcher"
	"github.com/nexbridge/sidecar/internal/adapter/health"
	"github.com/nexbridge/sidecar/internal/adapter/metrics"
	"github.com/nexbridge/sidecar/internal/adapter/ratelimit"
	"github.com/nexbridge/sidecar/internal/adapter/selector"
	"github.com/nexbridge/sidecar/internal/config"
	"github.com/nexbridge/sidecar/internal/core/domain"
	"github.com/nexbridge/sidecar/internal/core/ports"
	"github.com/nexbridge/sidecar/internal/logger"
	"github.com/nexbridge/sidecar/internal/router"
	"github.com/nexbridge/sidecar/internal/util"
	"github.com/nexbridge/sidecar/pkg/container"
)

const sweepInterval = 1 * time.Minute

// Application owns the lifetime of every long-running piece: the HTTP
// server, the health checker's probe loop, and the limiter's sweep.
type Application struct {
	cfg       *config.Config
	log       *logger.StyledLogger
	server    *http.Server
	checker   *health.Checker
	limiter   *ratelimit.Limiter
	lb        ports.LoadBalancer
	startTime time.Time
}

func New(cfg *config.Config, startTime time.Time, log *logger.StyledLogger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}

	services := make([]*domain.UpstreamService, 0, len(cfg.Services))
	for i := range cfg.Services {
		s := cfg.Services[i]
		services = append(services, &domain.UpstreamService{
			Name:             s.Name,
			DisplayName:      s.DisplayName,
			Endpoints:        s.Endpoints,
			HealthCheckPath:  s.HealthCheckPath,
			DefaultTimeout:   s.DefaultTimeout,
			MaxRetries:       s.MaxRetries,
			FailureThreshold: s.FailureThreshold,
			PathPattern:      s.PathPattern,
		})
	}

	healthTable := health.NewTable()
	mx := metrics.New()
	breakers := breaker.NewRegistry(func(service, from, to string) {
		log.InfoWithEndpoint("circuit breaker transition", service, "from", from, "to", to)
		mx.RecordCircuitTransition(service, from, to)
	})
	sel := selector.New(healthTable)
	limiter := ratelimit.New(cfg.RateLimit.BurstSize, cfg.RateLimit.RequestsPerSecond)
	checker := health.NewCheckerWithTiming(healthTable, services, log, cfg.HealthCheck.Interval, cfg.HealthCheck.Timeout).
		WithAdaptiveBackoff(cfg.HealthCheck.AdaptiveBackoff, cfg.HealthCheck.BackoffMultiplier)

	// The load balancer is constructed and available but not invoked from
	// the dispatcher's hot path: C5's scorer is authoritative there. It
	// exists as an alternate, swappable strategy a caller can reach via
	// LoadBalancer() instead of being left unconstructed.
	lb, err := balancer.NewFactory().Create(cfg.Balancer.Strategy)
	if err != nil {
		lb, _ = balancer.NewFactory().Create(balancer.DefaultBalancerRoundRobin)
	}

	trustedCIDRs, err := util.ParseTrustedCIDRs(cfg.RateLimit.TrustedCIDRs)
	if err != nil {
		return nil, fmt.Errorf("app: parsing rate_limit.trusted_cidrs: %w", err)
	}

	disp := dispatcher.New(services, breakers, healthTable, sel, mx, limiter, cfg.RateLimit.Enabled,
		cfg.RateLimit.TrustProxyHeaders, trustedCIDRs, log)

	if container.IsContainerised() {
		log.Info("running inside a container", "pid", os.Getpid())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      disp,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:       cfg,
		log:       log,
		server:    server,
		checker:   checker,
		limiter:   limiter,
		lb:        lb,
		startTime: startTime,
	}, nil
}

// LoadBalancer exposes the constructed alternate strategy (C6) for
// callers that want to pick an endpoint outside the dispatcher's own
// C5-scored path.
func (a *Application) LoadBalancer() ports.LoadBalancer {
	return a.lb
}

// Start launches the HTTP server, health checker, and limiter sweep. It
// returns once all three are launched; a server failure after that point
// is only logged. The sweep stops when ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	if err := a.checker.Start(ctx); err != nil {
		return fmt.Errorf("starting health checker: %w", err)
	}

	routes := router.NewRouteRegistry(a.log)
	for _, rt := range router.DefaultRoutes() {
		routes.Register(rt.Path, rt.Method, rt.Description)
	}
	routes.LogRoutesTable()

	go a.sweepLoop(ctx)

	go func() {
		a.log.Info("listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server exited", "error", err)
		}
	}()

	return nil
}

func (a *Application) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.limiter.Sweep()
		}
	}
}

// Stop drains the HTTP server and stops the health checker concurrently,
// both bounded by the configured shutdown timeout; the first error wins.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error { return a.server.Shutdown(gctx) })
	g.Go(func() error { return a.checker.Stop(gctx) })
	return g.Wait()
}
