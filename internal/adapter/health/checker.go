package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nexbridge/sidecar/internal/core/domain"
	"github.com/nexbridge/sidecar/internal/logger"
	"github.com/nexbridge/sidecar/internal/util"
)

const (
	DefaultCheckInterval = 30 * time.Second
	DefaultCheckTimeout  = 10 * time.Second

	StatusCodeHealthy   = 200
	StatusCodeUnhealthy = 503
)

// HTTPClient is the narrow contract the checker needs from an upstream
// client library: send a request, await a response or failure.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Checker spawns the single periodic probe task that iterates every
// (service, endpoint) pair on a fixed cadence (C4).
type Checker struct {
	table    *Table
	client   HTTPClient
	log      *logger.StyledLogger
	interval time.Duration
	timeout  time.Duration
	services []*domain.UpstreamService

	adaptiveBackoff   bool
	backoffMultiplier int

	mu                sync.Mutex
	running           bool
	stopCh            chan struct{}
	wg                sync.WaitGroup
	consecutiveFails  map[string]int
	ticksSinceCheck   map[string]int

	forceGroup singleflight.Group
}

func NewChecker(table *Table, services []*domain.UpstreamService, log *logger.StyledLogger) *Checker {
	return NewCheckerWithTiming(table, services, log, DefaultCheckInterval, DefaultCheckTimeout)
}

// NewCheckerWithTiming is NewChecker with an explicit interval/timeout,
// for callers wiring these in from configuration. Adaptive backoff is off
// by default; use WithAdaptiveBackoff to enable it.
func NewCheckerWithTiming(table *Table, services []*domain.UpstreamService, log *logger.StyledLogger, interval, timeout time.Duration) *Checker {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Checker{
		table:            table,
		client:           &http.Client{Timeout: timeout},
		log:              log,
		interval:         interval,
		timeout:          timeout,
		services:         services,
		consecutiveFails: make(map[string]int),
		ticksSinceCheck:  make(map[string]int),
	}
}

// WithAdaptiveBackoff enables per-endpoint probe backoff: an endpoint with
// consecutive failures is probed less often, up to util.DefaultMaxBackoffSeconds,
// instead of on every tick of the base interval.
func (c *Checker) WithAdaptiveBackoff(enabled bool, multiplier int) *Checker {
	c.adaptiveBackoff = enabled
	c.backoffMultiplier = multiplier
	return c
}

// Start launches the periodic probe loop over the configured services.
// It must not terminate on individual probe failures (spec.md §7).
func (c *Checker) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	services := c.services

	c.wg.Add(1)
	go c.loop(ctx, services)

	c.log.Info("Health checker starting", "interval", c.interval, "services", len(services))
	return nil
}

func (c *Checker) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	close(c.stopCh)
	c.wg.Wait()
	c.running = false
	return nil
}

func (c *Checker) loop(ctx context.Context, services []*domain.UpstreamService) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.checkAll(ctx, services)
		}
	}
}

func (c *Checker) checkAll(ctx context.Context, services []*domain.UpstreamService) {
	for _, svc := range services {
		for _, endpoint := range svc.Endpoints {
			if !c.adaptiveBackoff || c.dueForProbe(endpoint) {
				c.probe(ctx, svc, endpoint)
			}
		}
	}
}

// dueForProbe advances the endpoint's skipped-tick counter and reports
// whether enough ticks have elapsed to honor its backed-off interval,
// which grows with consecutive failures via util.CalculateEndpointBackoff.
func (c *Checker) dueForProbe(endpoint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	backoff := util.CalculateEndpointBackoff(c.interval, c.backoffMultiplier*c.consecutiveFails[endpoint])
	requiredTicks := int(backoff / c.interval)
	if requiredTicks < 1 {
		requiredTicks = 1
	}

	c.ticksSinceCheck[endpoint]++
	if c.ticksSinceCheck[endpoint] < requiredTicks {
		return false
	}
	c.ticksSinceCheck[endpoint] = 0
	return true
}

// probe issues one GET to endpoint+service.HealthCheckPath and classifies
// the outcome, folding it into the shared Table the same way a real
// request outcome would (spec.md §4.3: "a deliberate fusion").
func (c *Checker) probe(ctx context.Context, svc *domain.UpstreamService, endpoint string) {
	start := time.Now()
	url := endpoint + svc.HealthCheckPath

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		c.recordFailure(endpoint, time.Since(start))
		return
	}

	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.recordFailure(endpoint, latency)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.recordSuccess(endpoint, latency)
		return
	}
	c.recordFailure(endpoint, latency)
}

func (c *Checker) recordSuccess(endpoint string, latency time.Duration) {
	ms := float64(latency.Milliseconds())
	c.table.MarkHealthy(endpoint, ms)
	c.table.Record(endpoint, true, ms)

	c.mu.Lock()
	c.consecutiveFails[endpoint] = 0
	c.mu.Unlock()
}

func (c *Checker) recordFailure(endpoint string, latency time.Duration) {
	ms := float64(latency.Milliseconds())
	c.table.MarkUnhealthy(endpoint)
	c.table.Record(endpoint, false, ms)

	c.mu.Lock()
	c.consecutiveFails[endpoint]++
	c.mu.Unlock()
}

// ForceCheck runs one synchronous pass over a single service's endpoints,
// outside the regular cadence. Concurrent callers for the same service
// share a single in-flight pass via singleflight, so a burst of admin
// requests doesn't stampede the upstream with duplicate probes.
func (c *Checker) ForceCheck(ctx context.Context, svc *domain.UpstreamService) error {
	if svc == nil {
		return fmt.Errorf("force check: service is nil")
	}
	_, err, _ := c.forceGroup.Do(svc.Name, func() (any, error) {
		for _, endpoint := range svc.Endpoints {
			c.probe(ctx, svc, endpoint)
		}
		return nil, nil
	})
	return err
}
