package domain

import "time"

// UpstreamService is the static record for a named upstream, configured once
// at startup. It never changes shape at runtime (no hot reload of the
// upstream table).
type UpstreamService struct {
	Name             string
	DisplayName      string
	Endpoints        []string
	HealthCheckPath  string
	DefaultTimeout   time.Duration
	MaxRetries       int
	FailureThreshold int

	// PathPattern optionally overrides the default /api/{name}/... routing
	// convention with a glob (e.g. "/v1/chat*") matched against the request
	// path. Empty means the default convention applies.
	PathPattern string
}
