package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexbridge/sidecar/internal/core/domain"
	"github.com/nexbridge/sidecar/internal/logger"
)

func TestChecker_ForceCheckHealthy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	tbl := NewTable()
	svc := &domain.UpstreamService{
		Name:            "svc-a",
		Endpoints:       []string{upstream.URL},
		HealthCheckPath: "/healthz",
	}
	c := NewChecker(tbl, []*domain.UpstreamService{svc}, logger.NewNoop())

	require.NoError(t, c.ForceCheck(context.Background(), svc))

	assert.True(t, tbl.IsHealthy(upstream.URL))
	h, ok := tbl.Get(upstream.URL)
	require.True(t, ok)
	assert.Equal(t, int64(0), h.Errors)
}

func TestChecker_ForceCheckUnhealthyOnNon2xx(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	tbl := NewTable()
	svc := &domain.UpstreamService{
		Name:            "svc-a",
		Endpoints:       []string{upstream.URL},
		HealthCheckPath: "/healthz",
	}
	c := NewChecker(tbl, []*domain.UpstreamService{svc}, logger.NewNoop())

	require.NoError(t, c.ForceCheck(context.Background(), svc))

	assert.False(t, tbl.IsHealthy(upstream.URL))
	h, ok := tbl.Get(upstream.URL)
	require.True(t, ok)
	assert.Equal(t, int64(1), h.Errors)
}

func TestChecker_ForceCheckTransportFailure(t *testing.T) {
	tbl := NewTable()
	svc := &domain.UpstreamService{
		Name:            "svc-a",
		Endpoints:       []string{"http://127.0.0.1:1"}, // nothing listens here
		HealthCheckPath: "/healthz",
	}
	c := NewChecker(tbl, []*domain.UpstreamService{svc}, logger.NewNoop())
	c.timeout = 500 * time.Millisecond

	require.NoError(t, c.ForceCheck(context.Background(), svc))
	assert.False(t, tbl.IsHealthy("http://127.0.0.1:1"))
}

func TestChecker_AdaptiveBackoffSkipsTicksAfterFailures(t *testing.T) {
	tbl := NewTable()
	c := NewChecker(tbl, nil, logger.NewNoop()).WithAdaptiveBackoff(true, 2)
	c.interval = time.Second

	endpoint := "http://fails.example"
	c.consecutiveFails[endpoint] = 2 // backoff = interval * (2*2) = 4 ticks required

	assert.False(t, c.dueForProbe(endpoint))
	assert.False(t, c.dueForProbe(endpoint))
	assert.False(t, c.dueForProbe(endpoint))
	assert.True(t, c.dueForProbe(endpoint))
}

func TestChecker_NoAdaptiveBackoffAlwaysDue(t *testing.T) {
	tbl := NewTable()
	c := NewChecker(tbl, nil, logger.NewNoop())
	assert.True(t, c.dueForProbe("http://always.example"))
	assert.True(t, c.dueForProbe("http://always.example"))
}

func TestChecker_StartStopIsIdempotent(t *testing.T) {
	tbl := NewTable()
	c := NewChecker(tbl, nil, logger.NewNoop())
	c.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx)) // second call is a no-op, not an error
	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}
