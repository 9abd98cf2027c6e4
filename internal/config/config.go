package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8080

	EnvPrefix = "SIDECAR"
)

// DefaultConfig returns a configuration with sensible defaults: one sample
// service pointed at a local Ollama instance, rate limiting and adaptive
// probe backoff both off (per §11.3/§11.5, so default dispatch behavior
// matches spec.md byte-for-byte).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Services: []ServiceConfig{
			{
				Name:             "service-a",
				DisplayName:      "Default Upstream",
				Endpoints:        []string{"http://localhost:11434"},
				HealthCheckPath:  "/health",
				DefaultTimeout:   5 * time.Second,
				MaxRetries:       0,
				FailureThreshold: 5,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			LogDir:     "logs",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
			FileOutput: false,
			PrettyLogs: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			BurstSize:         100,
			RequestsPerSecond: 50,
			TrustProxyHeaders: false,
			TrustedCIDRs:      nil,
		},
		HealthCheck: HealthCheckConfig{
			Interval:          30 * time.Second,
			Timeout:           10 * time.Second,
			AdaptiveBackoff:   false,
			BackoffMultiplier: 2,
		},
		Balancer: BalancerConfig{
			Strategy: "round-robin",
		},
	}
}

// Load reads configuration from an optional file, environment variables
// prefixed SIDECAR_, and CLI flags (highest precedence), in that order —
// the same layering the teacher's viper setup uses.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	v.SetDefault("services", defaults.Services)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.theme", defaults.Logging.Theme)
	v.SetDefault("logging.log_dir", defaults.Logging.LogDir)
	v.SetDefault("logging.max_size", defaults.Logging.MaxSize)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.max_age", defaults.Logging.MaxAge)
	v.SetDefault("logging.file_output", defaults.Logging.FileOutput)
	v.SetDefault("logging.pretty_logs", defaults.Logging.PrettyLogs)
	v.SetDefault("rate_limit.enabled", defaults.RateLimit.Enabled)
	v.SetDefault("rate_limit.burst_size", defaults.RateLimit.BurstSize)
	v.SetDefault("rate_limit.requests_per_second", defaults.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.trust_proxy_headers", defaults.RateLimit.TrustProxyHeaders)
	v.SetDefault("rate_limit.trusted_cidrs", defaults.RateLimit.TrustedCIDRs)
	v.SetDefault("health_check.interval", defaults.HealthCheck.Interval)
	v.SetDefault("health_check.timeout", defaults.HealthCheck.Timeout)
	v.SetDefault("health_check.adaptive_backoff", defaults.HealthCheck.AdaptiveBackoff)
	v.SetDefault("health_check.backoff_multiplier", defaults.HealthCheck.BackoffMultiplier)
	v.SetDefault("balancer.strategy", defaults.Balancer.Strategy)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if len(cfg.Services) == 0 {
		cfg.Services = defaults.Services
	}

	return &cfg, nil
}
