// Package dispatcher implements the request dispatcher (C8): the ten-step
// pipeline that resolves a service from the request path, consults the
// circuit breaker and selector, forwards the request, and records the
// outcome before the response is complete.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nexbridge/sidecar/internal/core/domain"
	"github.com/nexbridge/sidecar/internal/core/ports"
	"github.com/nexbridge/sidecar/internal/logger"
	"github.com/nexbridge/sidecar/internal/util"
	"github.com/nexbridge/sidecar/internal/util/pattern"
	"github.com/nexbridge/sidecar/internal/version"
	"github.com/nexbridge/sidecar/pkg/format"
	"github.com/nexbridge/sidecar/pkg/pool"
)

const (
	HeaderProxyEndpoint   = "x-proxy-endpoint"
	HeaderProxyConfidence = "x-proxy-confidence"
	HeaderProxyRequestID  = "x-proxy-request-id"
	HeaderRequestID       = "x-request-id"

	DefaultServiceName = "service-a"
)

var bufferPool = pool.NewLitePool(func() *bytes.Buffer { return new(bytes.Buffer) })

// Dispatcher owns references to C1–C7 and orchestrates them per request.
// It holds no per-request state beyond what is local to ServeHTTP.
type Dispatcher struct {
	services          map[string]*domain.UpstreamService
	breakers          ports.CircuitBreakerRegistry
	health            ports.HealthTable
	selector          ports.EndpointSelector
	metrics           ports.MetricsAggregator
	limiter           ports.RateLimiter
	rlEnabled         bool
	trustProxyHeaders bool
	trustedCIDRs      []*net.IPNet
	log               *logger.StyledLogger
	startTime         time.Time
}

func New(
	services []*domain.UpstreamService,
	breakers ports.CircuitBreakerRegistry,
	health ports.HealthTable,
	sel ports.EndpointSelector,
	mx ports.MetricsAggregator,
	limiter ports.RateLimiter,
	rateLimitEnabled bool,
	trustProxyHeaders bool,
	trustedCIDRs []*net.IPNet,
	log *logger.StyledLogger,
) *Dispatcher {
	byName := make(map[string]*domain.UpstreamService, len(services))
	for _, svc := range services {
		byName[svc.Name] = svc
	}
	return &Dispatcher{
		services:          byName,
		breakers:          breakers,
		health:            health,
		selector:          sel,
		metrics:           mx,
		limiter:           limiter,
		rlEnabled:         rateLimitEnabled,
		trustProxyHeaders: trustProxyHeaders,
		trustedCIDRs:      trustedCIDRs,
		log:               log,
		startTime:         time.Now(),
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("panic while dispatching request", "path", r.URL.Path, "panic", rec)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()

	switch r.URL.Path {
	case "/health":
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	case "/metrics":
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, d.metrics.Expose())
		return
	case "/admin/health":
		writeJSON(w, http.StatusOK, d.health.Snapshot())
		return
	case "/admin/status":
		writeJSON(w, http.StatusOK, d.statusReport())
		return
	case "/admin/circuit-breakers":
		writeJSON(w, http.StatusOK, d.breakers.Snapshot())
		return
	}

	svc, ok := d.resolveService(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if d.rlEnabled {
		key := util.GetClientIP(r, d.trustProxyHeaders, d.trustedCIDRs)
		if !d.limiter.Allow(key, 1) {
			d.metrics.RecordRateLimitRejected(key)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	breaker := d.breakers.For(svc.Name, svc.FailureThreshold)
	if breaker.IsOpen() {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	candidates := d.health.HealthyEndpoints(svc.Endpoints)
	if len(candidates) == 0 {
		candidates = svc.Endpoints
	}

	decision := d.selector.Select(svc.Name, candidates)
	if decision.Endpoint == "" {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	body, err := readBody(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	timeout := d.selector.AdaptiveTimeout(decision.Endpoint)
	start := time.Now()
	resp, upstreamErr := d.forward(r.Context(), decision.Endpoint, r, body, timeout)
	latency := time.Since(start)

	var statusCode int
	var respBody []byte
	var success bool

	if upstreamErr != nil {
		// Upstream transport error: spec.md §4.7 step 8 synthesizes a 503.
		d.log.WarnWithEndpoint("upstream request failed", decision.Endpoint, "service", svc.Name, "request_id", requestID, "error", upstreamErr)
		statusCode = http.StatusServiceUnavailable
		respBody = []byte("Upstream service unavailable")
		success = false
	} else {
		defer resp.Body.Close()
		statusCode = resp.StatusCode
		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			// Body-read failure on an otherwise-received response: still an
			// upstream transport problem from the caller's point of view.
			statusCode = http.StatusServiceUnavailable
			respBody = []byte("Upstream service unavailable")
			success = false
		} else {
			// §9: any 2xx/3xx/4xx counts as success for breaker/metrics
			// attribution; only 5xx or transport failure is a failure.
			success = statusCode < 500
		}
	}

	d.recordOutcome(svc.Name, decision.Endpoint, breaker, success, latency, statusCode)
	d.log.Debug("request dispatched", "request_id", requestID, "service", svc.Name, "endpoint", decision.Endpoint, "status", statusCode, "success", success)

	if resp != nil && upstreamErr == nil {
		copyResponseHeaders(w.Header(), resp.Header)
	}
	w.Header().Set(HeaderProxyEndpoint, decision.Endpoint)
	w.Header().Set(HeaderProxyConfidence, fmt.Sprintf("%.3f", decision.Confidence))
	w.Header().Set(HeaderProxyRequestID, requestID)
	w.WriteHeader(statusCode)
	_, _ = w.Write(respBody)
}

// resolveService implements spec.md §4.7 step 3: `/api/{name}/...` maps to
// `service-{name}`; everything else defaults to service-a. A service
// configured with an explicit PathPattern is matched first, so deployments
// can route on arbitrary path shapes (e.g. "/v1/chat*") instead of the
// default convention.
func (d *Dispatcher) resolveService(path string) (*domain.UpstreamService, bool) {
	for _, svc := range d.services {
		if svc.PathPattern != "" && pattern.MatchesGlob(path, svc.PathPattern) {
			return svc, true
		}
	}

	name := resolveServiceName(path)
	svc, ok := d.services[name]
	return svc, ok
}

// statusReport builds the /admin/status payload: uptime and current heap
// usage, the latter formatted the same human-readable way the teacher's
// table output does (pkg/format.Bytes).
func (d *Dispatcher) statusReport() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"status":     "ok",
		"version":    version.Version,
		"uptime":     time.Since(d.startTime).String(),
		"heap_alloc": format.Bytes(mem.HeapAlloc),
		"sys_memory": format.Bytes(mem.Sys),
	}
}

func resolveServiceName(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) >= 2 && segments[0] == "api" && segments[1] != "" {
		return "service-" + segments[1]
	}
	return DefaultServiceName
}

// allowedMethods forward verbatim; anything else is coerced to GET per
// spec.md §4.7's documented quirk (see spec.md §9).
var allowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodDelete: true, http.MethodHead: true, http.MethodOptions: true,
	http.MethodPatch: true,
}

func coerceMethod(method string) string {
	if allowedMethods[method] {
		return method
	}
	return http.MethodGet
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf := bufferPool.Get()
	defer bufferPool.Put(buf) // Pool.Put resets via bytes.Buffer's own Reset method

	if _, err := io.Copy(buf, r.Body); err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func (d *Dispatcher) forward(ctx context.Context, endpoint string, r *http.Request, body []byte, timeout time.Duration) (*http.Response, error) {
	client := &http.Client{Timeout: timeout}

	url := endpoint + r.URL.Path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	method := coerceMethod(r.Method)

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	copyRequestHeaders(req.Header, r.Header)

	return client.Do(req)
}

func copyRequestHeaders(dst, src http.Header) {
	for k, vs := range src {
		lower := strings.ToLower(k)
		if lower == "host" || lower == "content-length" {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func (d *Dispatcher) recordOutcome(service, endpoint string, breaker ports.CircuitBreaker, success bool, latency time.Duration, statusCode int) {
	latencyMs := float64(latency.Milliseconds())

	d.health.Record(endpoint, success, latencyMs)
	d.metrics.RecordRequest(domain.RequestMetrics{
		Endpoint:   endpoint,
		Service:    service,
		LatencyMs:  latencyMs,
		StatusCode: statusCode,
		Success:    success,
		Timestamp:  time.Now(),
	})

	before := breaker.State()
	if success {
		breaker.RecordSuccess()
	} else {
		breaker.RecordFailure()
	}
	if after := breaker.State(); after != before {
		d.metrics.RecordCircuitTransition(service, before.String(), after.String())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
