package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_RateLimitAndBackoffAreOff(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.RateLimit.Enabled, "rate limiting must default off to preserve the spec's default dispatch path")
	assert.False(t, cfg.HealthCheck.AdaptiveBackoff, "probe backoff must default off to preserve the fixed 30s cadence")
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	require.Len(t, cfg.Services, 1)
	assert.Equal(t, "service-a", cfg.Services[0].Name)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/sidecar.yaml", nil)
	assert.Error(t, err)
}
