package domain

import "time"

// EWMASmoothing is the smoothing factor alpha used for every latency
// observation, probe or real outcome alike.
const EWMASmoothing = 0.1

// EndpointHealth is the mutable, shared record keyed by endpoint URL. It is
// written on every real outcome and every probe and read on every dispatch.
//
// Invariants: Total >= Errors; SuccessRate == 1-Errors/Total when Total > 0,
// else 1.0. AvgLatencyMs follows new = alpha*sample + (1-alpha)*prev.
type EndpointHealth struct {
	EndpointURL  string
	SuccessRate  float64
	AvgLatencyMs float64
	Errors       int64
	Total        int64
	LastUpdate   time.Time
}

// Observe folds one outcome (probe or live request) into the record,
// maintaining both invariants in a single pass. Callers hold the table's
// write lock around this call.
func (h *EndpointHealth) Observe(success bool, latencyMs float64, now time.Time) {
	h.Total++
	if !success {
		h.Errors++
	}
	h.SuccessRate = 1.0
	if h.Total > 0 {
		h.SuccessRate = 1.0 - float64(h.Errors)/float64(h.Total)
	}

	h.AvgLatencyMs = EWMASmoothing*latencyMs + (1-EWMASmoothing)*h.AvgLatencyMs
	h.LastUpdate = now
}

// HealthStatus is the active-probe view held alongside EndpointHealth.
//
// Invariant: at most one of ConsecutiveFailures / ConsecutiveSuccesses is
// nonzero at any moment.
type HealthStatus struct {
	EndpointURL         string
	Healthy             bool
	LastCheck           time.Time
	LastResponseMs      float64
	ConsecutiveFailures int
	ConsecutiveSuccesses int
}

// RecordSuccess bumps the success run and zeroes the failure run.
func (s *HealthStatus) RecordSuccess(responseMs float64, now time.Time) {
	s.Healthy = true
	s.LastCheck = now
	s.LastResponseMs = responseMs
	s.ConsecutiveSuccesses++
	s.ConsecutiveFailures = 0
}

// RecordFailure bumps the failure run and zeroes the success run.
func (s *HealthStatus) RecordFailure(responseMs float64, now time.Time) {
	s.Healthy = false
	s.LastCheck = now
	s.LastResponseMs = responseMs
	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
}

// RequestMetrics is emitted per completed upstream attempt. It is not
// persisted; the dispatcher hands it to the health table and the metrics
// aggregator and then discards it.
type RequestMetrics struct {
	Endpoint   string
	Service    string
	LatencyMs  float64
	StatusCode int
	Success    bool
	Timestamp  time.Time
}

// AIDecision is the selector's output for one dispatch.
type AIDecision struct {
	Endpoint   string
	Confidence float64
	Reasoning  string
	Fallbacks  []string
}
