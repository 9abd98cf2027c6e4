package domain

import "errors"

// These sentinel errors name the dispatch failure cases. The dispatcher,
// selector, breaker and limiter do not return them: they report the same
// cases through HTTP status codes, an empty AIDecision, IsOpen and Allow's
// boolean result.
var (
	// ErrNoService: a request path does not resolve to a configured
	// upstream service.
	ErrNoService = errors.New("no service matches the request path")
	// ErrCircuitOpen: the breaker for a service rejects dispatch.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrNoEndpoints: the selector has nothing to choose from.
	ErrNoEndpoints = errors.New("no available endpoints")
	// ErrRateLimited: a key has exhausted its bucket.
	ErrRateLimited = errors.New("rate limit exceeded")
)
