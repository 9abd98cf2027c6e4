package config

import "time"

// Config is the full static configuration for one sidecar process. It is
// loaded once at startup (viper) and never hot-reloaded: the upstream table
// is fixed for the lifetime of the process.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Services    []ServiceConfig   `mapstructure:"services"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Balancer    BalancerConfig    `mapstructure:"balancer"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ServiceConfig is the on-disk shape of one domain.UpstreamService.
type ServiceConfig struct {
	Name             string        `mapstructure:"name"`
	DisplayName      string        `mapstructure:"display_name"`
	Endpoints        []string      `mapstructure:"endpoints"`
	HealthCheckPath  string        `mapstructure:"health_check_path"`
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	PathPattern      string        `mapstructure:"path_pattern"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Theme      string `mapstructure:"theme"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	FileOutput bool   `mapstructure:"file_output"`
	PrettyLogs bool   `mapstructure:"pretty_logs"`
}

// RateLimitConfig gates the supplemented admission feature (§11.3). It
// defaults to disabled so the default dispatcher pipeline matches spec.md
// §4.7 byte-for-byte.
type RateLimitConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	BurstSize         int      `mapstructure:"burst_size"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	TrustProxyHeaders bool     `mapstructure:"trust_proxy_headers"`
	TrustedCIDRs      []string `mapstructure:"trusted_cidrs"`
}

// HealthCheckConfig gates the supplemented adaptive-backoff feature (§11.5).
// AdaptiveBackoff defaults to disabled so the checker's cadence matches
// spec.md §4.3's fixed 30s/10s default.
type HealthCheckConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	Timeout           time.Duration `mapstructure:"timeout"`
	AdaptiveBackoff   bool          `mapstructure:"adaptive_backoff"`
	BackoffMultiplier int           `mapstructure:"backoff_multiplier"`
}

type BalancerConfig struct {
	Strategy string `mapstructure:"strategy"`
}
