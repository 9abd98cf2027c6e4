package ports

import (
	"context"
	"time"

	"github.com/nexbridge/sidecar/internal/core/domain"
)

// HealthTable is the single shared source of truth for endpoint health
// (C3). It is read on every dispatch and written on every outcome and
// every probe.
type HealthTable interface {
	Record(endpointURL string, success bool, latencyMs float64)
	Get(endpointURL string) (domain.EndpointHealth, bool)
	Snapshot() map[string]domain.EndpointHealth
	Status(endpointURL string) (domain.HealthStatus, bool)
	MarkUnhealthy(endpointURL string)
	MarkHealthy(endpointURL string, responseMs float64)
	HealthyEndpoints(candidates []string) []string
}

// RateLimiter is the per-key token-bucket admission gate (C1).
type RateLimiter interface {
	Allow(key string, n float64) bool
	Remaining(key string) float64
	Reset(key string)
	Sweep()
}

// CircuitBreaker is the per-service three-state failure gate (C2).
type CircuitBreaker interface {
	IsOpen() bool
	RecordSuccess()
	RecordFailure()
	State() domain.CircuitStateName
	Snapshot() domain.CircuitSnapshot
}

// CircuitBreakerRegistry resolves or creates the breaker for a service.
type CircuitBreakerRegistry interface {
	For(service string, failureThreshold int) CircuitBreaker
	Snapshot() []domain.CircuitSnapshot
}

// HealthChecker runs the periodic probe loop (C4).
type HealthChecker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ForceCheck(ctx context.Context, service *domain.UpstreamService) error
}

// EndpointSelector scores and chooses an endpoint from a candidate set (C5).
type EndpointSelector interface {
	Select(service string, endpoints []string) domain.AIDecision
	AdaptiveTimeout(endpointURL string) time.Duration
}

// LoadBalancer is the alternate/composable strategy layer (C6).
type LoadBalancer interface {
	Name() string
	Pick(service string, endpoints []string) (string, error)
	IncrementConnections(endpointURL string)
	DecrementConnections(endpointURL string)
}

// MetricsAggregator records Prometheus-shaped counters/histograms and the
// per-endpoint EWMA view (C7).
type MetricsAggregator interface {
	RecordRequest(m domain.RequestMetrics)
	RecordRateLimitRejected(key string)
	RecordCircuitTransition(service, from, to string)
	IncActiveConnections()
	DecActiveConnections()
	Expose() string
}
