// Package metrics implements the metrics aggregator (C7): Prometheus-shaped
// counters and histograms plus a per-endpoint EWMA view appended as raw
// text after the library-emitted block.
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/nexbridge/sidecar/internal/core/domain"
)

// HistogramBuckets are the fixed request-duration buckets spec.md §4.6
// names, in seconds.
var HistogramBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

type endpointStats struct {
	total       int64
	successes   int64
	failures    int64
	ewmaLatency float64
	lastRequest time.Time
}

// Aggregator owns a dedicated Prometheus registry (rather than the global
// default registry) so multiple sidecar instances in one process — as in
// tests — never collide on metric registration.
type Aggregator struct {
	registry *prometheus.Registry

	requestsTotal   prometheus.Counter
	requestDuration prometheus.Histogram
	activeConns     prometheus.Gauge
	rateLimited     *prometheus.CounterVec
	circuitTrans    *prometheus.CounterVec

	mu        sync.Mutex
	endpoints map[string]*endpointStats
	now       func() time.Time
}

func New() *Aggregator {
	registry := prometheus.NewRegistry()

	a := &Aggregator{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sidecar_requests_total",
			Help: "Total number of proxied requests.",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sidecar_request_duration_seconds",
			Help:    "Upstream request duration in seconds.",
			Buckets: HistogramBuckets,
		}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sidecar_active_connections",
			Help: "Number of in-flight upstream connections.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sidecar_ratelimit_rejected_total",
			Help: "Requests rejected by the token-bucket limiter, by key.",
		}, []string{"key"}),
		circuitTrans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sidecar_circuit_transitions_total",
			Help: "Circuit breaker state transitions, by service/from/to.",
		}, []string{"service", "from", "to"}),
		endpoints: make(map[string]*endpointStats),
		now:       time.Now,
	}

	registry.MustRegister(a.requestsTotal, a.requestDuration, a.activeConns, a.rateLimited, a.circuitTrans)
	return a
}

// RecordRequest folds one completed upstream attempt into both the
// Prometheus collectors and the per-endpoint EWMA view.
func (a *Aggregator) RecordRequest(m domain.RequestMetrics) {
	a.requestsTotal.Inc()
	a.requestDuration.Observe(m.LatencyMs / 1000.0)

	a.mu.Lock()
	defer a.mu.Unlock()

	es, ok := a.endpoints[m.Endpoint]
	if !ok {
		es = &endpointStats{}
		a.endpoints[m.Endpoint] = es
	}
	es.total++
	if m.Success {
		es.successes++
	} else {
		es.failures++
	}
	es.ewmaLatency = domain.EWMASmoothing*m.LatencyMs + (1-domain.EWMASmoothing)*es.ewmaLatency
	es.lastRequest = a.now()
}

func (a *Aggregator) RecordRateLimitRejected(key string) {
	a.rateLimited.WithLabelValues(key).Inc()
}

func (a *Aggregator) RecordCircuitTransition(service, from, to string) {
	a.circuitTrans.WithLabelValues(service, from, to).Inc()
}

func (a *Aggregator) IncActiveConnections() { a.activeConns.Inc() }
func (a *Aggregator) DecActiveConnections() { a.activeConns.Dec() }

// Expose renders the library-emitted Prometheus block followed by the
// per-endpoint families, each carrying its own HELP/TYPE preamble per
// spec.md §4.6's documented pragmatic choice.
func (a *Aggregator) Expose() string {
	var sb strings.Builder

	mfs, err := a.registry.Gather()
	if err == nil {
		enc := expfmt.NewEncoder(&sb, expfmt.NewFormat(expfmt.TypeTextPlain))
		for _, mf := range mfs {
			_ = enc.Encode(mf)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for endpoint, es := range a.endpoints {
		successRate := 1.0
		if es.total > 0 {
			successRate = float64(es.successes) / float64(es.total)
		}

		fmt.Fprintf(&sb, "# HELP sidecar_endpoint_requests_total Total requests observed for this endpoint.\n")
		fmt.Fprintf(&sb, "# TYPE sidecar_endpoint_requests_total counter\n")
		fmt.Fprintf(&sb, "sidecar_endpoint_requests_total{endpoint=%q} %d\n", endpoint, es.total)

		fmt.Fprintf(&sb, "# HELP sidecar_endpoint_success_rate Fraction of requests successful for this endpoint.\n")
		fmt.Fprintf(&sb, "# TYPE sidecar_endpoint_success_rate gauge\n")
		fmt.Fprintf(&sb, "sidecar_endpoint_success_rate{endpoint=%q} %f\n", endpoint, successRate)

		fmt.Fprintf(&sb, "# HELP sidecar_endpoint_latency_ewma_ms EWMA latency in milliseconds for this endpoint.\n")
		fmt.Fprintf(&sb, "# TYPE sidecar_endpoint_latency_ewma_ms gauge\n")
		fmt.Fprintf(&sb, "sidecar_endpoint_latency_ewma_ms{endpoint=%q} %f\n", endpoint, es.ewmaLatency)

		fmt.Fprintf(&sb, "# HELP sidecar_endpoint_last_request_timestamp_seconds Unix time of the last request to this endpoint.\n")
		fmt.Fprintf(&sb, "# TYPE sidecar_endpoint_last_request_timestamp_seconds gauge\n")
		fmt.Fprintf(&sb, "sidecar_endpoint_last_request_timestamp_seconds{endpoint=%q} %d\n", endpoint, es.lastRequest.Unix())
	}

	return sb.String()
}

// Handler returns a promhttp handler bound to this aggregator's private
// registry, for callers that want the library's own exposition instead of
// the combined text Expose() produces.
func (a *Aggregator) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}
