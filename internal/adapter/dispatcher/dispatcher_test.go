package dispatcher

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexbridge/sidecar/internal/adapter/breaker"
	"github.com/nexbridge/sidecar/internal/adapter/health"
	"github.com/nexbridge/sidecar/internal/adapter/metrics"
	"github.com/nexbridge/sidecar/internal/adapter/ratelimit"
	"github.com/nexbridge/sidecar/internal/adapter/selector"
	"github.com/nexbridge/sidecar/internal/core/domain"
	"github.com/nexbridge/sidecar/internal/logger"
)

func newTestDispatcher(t *testing.T, upstream *httptest.Server) *Dispatcher {
	t.Helper()
	tbl := health.NewTable()
	svcs := []*domain.UpstreamService{
		{Name: "service-a", Endpoints: []string{upstream.URL}, HealthCheckPath: "/health", FailureThreshold: 3},
		{Name: "service-b", Endpoints: []string{upstream.URL}, HealthCheckPath: "/health", FailureThreshold: 3},
	}
	return New(
		svcs,
		breaker.NewRegistry(nil),
		tbl,
		selector.New(tbl),
		metrics.New(),
		ratelimit.New(10, 1),
		false,
		false,
		nil,
		logger.NewNoop(),
	)
}

func TestDispatcher_S5PathRouting(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	d := newTestDispatcher(t, upstream)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/b/foo", nil)
	d.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/xyz", nil)
	d.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestDispatcher_UnknownServiceIs404(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	d := newTestDispatcher(t, upstream)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/unknown-name-not-configured/foo", nil)
	d.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatcher_InjectsProxyHeadersOnSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	d := newTestDispatcher(t, upstream)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/xyz", nil)
	d.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get(HeaderProxyEndpoint))
	assert.NotEmpty(t, rec.Header().Get(HeaderProxyConfidence))
	assert.NotEmpty(t, rec.Header().Get(HeaderProxyRequestID))
}

func TestDispatcher_TransportFailureReturns503(t *testing.T) {
	tbl := health.NewTable()
	svcs := []*domain.UpstreamService{
		{Name: "service-a", Endpoints: []string{"http://127.0.0.1:1"}, HealthCheckPath: "/health", FailureThreshold: 3},
	}
	d := New(svcs, breaker.NewRegistry(nil), tbl, selector.New(tbl), metrics.New(), ratelimit.New(10, 1), false, false, nil, logger.NewNoop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/xyz", nil)
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Upstream service unavailable", rec.Body.String())
}

func TestDispatcher_HealthEndpoint(t *testing.T) {
	d := newTestDispatcher(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestDispatcher_MetricsEndpointExposesText(t *testing.T) {
	d := newTestDispatcher(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sidecar_requests_total")
}

func TestDispatcher_AdminStatusEndpointReportsFormattedMemory(t *testing.T) {
	d := newTestDispatcher(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["uptime"])
	assert.Regexp(t, `^[\d.]+ (B|KB|MB|GB|TB|PB)$`, body["heap_alloc"])
}

func TestDispatcher_AdminCircuitBreakersEndpoint(t *testing.T) {
	d := newTestDispatcher(t, httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/circuit-breakers", nil)
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestDispatcher_RateLimitRejectsWhenEnabled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	defer upstream.Close()

	tbl := health.NewTable()
	svcs := []*domain.UpstreamService{{Name: "service-a", Endpoints: []string{upstream.URL}, FailureThreshold: 3}}
	d := New(svcs, breaker.NewRegistry(nil), tbl, selector.New(tbl), metrics.New(), ratelimit.New(1, 1), true, false, nil, logger.NewNoop())

	req1 := httptest.NewRequest(http.MethodGet, "/xyz", nil)
	req1.RemoteAddr = "1.2.3.4:5555"
	rec1 := httptest.NewRecorder()
	d.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/xyz", nil)
	req2.RemoteAddr = "1.2.3.4:5555"
	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestDispatcher_RateLimitKeyUsesTrustedForwardedFor(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	defer upstream.Close()

	_, trustedNet, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)

	tbl := health.NewTable()
	svcs := []*domain.UpstreamService{{Name: "service-a", Endpoints: []string{upstream.URL}, FailureThreshold: 3}}
	d := New(svcs, breaker.NewRegistry(nil), tbl, selector.New(tbl), metrics.New(), ratelimit.New(1, 1), true,
		true, []*net.IPNet{trustedNet}, logger.NewNoop())

	// Two requests from distinct trusted-proxy RemoteAddrs but the same
	// forwarded client IP are rate limited as one caller.
	req1 := httptest.NewRequest(http.MethodGet, "/xyz", nil)
	req1.RemoteAddr = "10.0.0.1:5555"
	req1.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec1 := httptest.NewRecorder()
	d.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/xyz", nil)
	req2.RemoteAddr = "10.0.0.2:6666"
	req2.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestResolveServiceName(t *testing.T) {
	assert.Equal(t, "service-b", resolveServiceName("/api/b/foo"))
	assert.Equal(t, DefaultServiceName, resolveServiceName("/xyz"))
}

func TestDispatcher_ResolveServiceByPathPattern(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	defer upstream.Close()

	d := newTestDispatcher(t, upstream)
	d.services["service-custom"] = &domain.UpstreamService{
		Name: "service-custom", Endpoints: []string{upstream.URL}, FailureThreshold: 3, PathPattern: "/v1/chat*",
	}

	svc, ok := d.resolveService("/v1/chat/completions")
	require.True(t, ok)
	assert.Equal(t, "service-custom", svc.Name)
}

func TestCoerceMethod(t *testing.T) {
	assert.Equal(t, http.MethodPost, coerceMethod(http.MethodPost))
	assert.Equal(t, http.MethodGet, coerceMethod("TRACE"))
}
