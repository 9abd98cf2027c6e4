package domain

import "time"

// CircuitStateName is the tagged enum for the breaker's three states.
type CircuitStateName string

const (
	CircuitClosed   CircuitStateName = "closed"
	CircuitOpen     CircuitStateName = "open"
	CircuitHalfOpen CircuitStateName = "half_open"
)

func (s CircuitStateName) String() string { return string(s) }

// CircuitSnapshot is a point-in-time, read-only view of one service's
// breaker state, used by admin introspection.
type CircuitSnapshot struct {
	Service        string           `json:"service"`
	State          CircuitStateName `json:"state"`
	FailureCount   int64            `json:"failure_count"`
	SuccessCount   int64            `json:"success_count"`
	LastFailure    time.Time        `json:"last_failure"`
}
