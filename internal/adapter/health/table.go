// Package health implements the shared per-endpoint health record (C3) and
// the active health checker that probes endpoints on a fixed cadence and
// feeds the same record real traffic does (C4).
package health

import (
	"sync"
	"time"

	"github.com/nexbridge/sidecar/internal/core/domain"
)

// Table is the single source of truth for endpoint health, read on every
// dispatch and written on every outcome and every probe. A reader/writer
// lock is adequate: per-record updates are O(1) and short (spec.md §9).
type Table struct {
	mu       sync.RWMutex
	health   map[string]*domain.EndpointHealth
	status   map[string]*domain.HealthStatus
	now      func() time.Time
}

func NewTable() *Table {
	return &Table{
		health: make(map[string]*domain.EndpointHealth),
		status: make(map[string]*domain.HealthStatus),
		now:    time.Now,
	}
}

// Record folds one outcome — probe or live traffic alike — into the
// endpoint's EndpointHealth using the same EWMA/success-rate formula
// either way, per spec.md §9's "deliberate fusion".
func (t *Table) Record(endpointURL string, success bool, latencyMs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.health[endpointURL]
	if !ok {
		h = &domain.EndpointHealth{EndpointURL: endpointURL, SuccessRate: 1.0}
		t.health[endpointURL] = h
	}
	h.Observe(success, latencyMs, t.now())
}

// Get returns a copy of the current EndpointHealth record for endpointURL.
func (t *Table) Get(endpointURL string) (domain.EndpointHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.health[endpointURL]
	if !ok {
		return domain.EndpointHealth{}, false
	}
	return *h, true
}

// Snapshot returns a point-in-time copy of every known EndpointHealth
// record, used by /admin/health and by the selector.
func (t *Table) Snapshot() map[string]domain.EndpointHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]domain.EndpointHealth, len(t.health))
	for url, h := range t.health {
		out[url] = *h
	}
	return out
}

// Status returns the active-probe view for endpointURL.
func (t *Table) Status(endpointURL string) (domain.HealthStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.status[endpointURL]
	if !ok {
		return domain.HealthStatus{}, false
	}
	return *s, true
}

func (t *Table) statusFor(endpointURL string) *domain.HealthStatus {
	s, ok := t.status[endpointURL]
	if !ok {
		s = &domain.HealthStatus{EndpointURL: endpointURL, Healthy: true}
		t.status[endpointURL] = s
	}
	return s
}

// MarkHealthy records a successful probe/check outcome in the active-probe
// view, independent of the EndpointHealth EWMA record.
func (t *Table) MarkHealthy(endpointURL string, responseMs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusFor(endpointURL).RecordSuccess(responseMs, t.now())
}

// MarkUnhealthy manually flips the active-probe flag and bumps the failure
// run, per spec.md §4.3's mark_unhealthy operation.
func (t *Table) MarkUnhealthy(endpointURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusFor(endpointURL).RecordFailure(0, t.now())
}

// IsHealthy reports the active-probe view for endpointURL. Endpoints
// absent from the table are presumed healthy: fail-open on cold start
// (spec.md §4.3).
func (t *Table) IsHealthy(endpointURL string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.status[endpointURL]
	if !ok {
		return true
	}
	return s.Healthy
}

// HealthyEndpoints filters candidates by IsHealthy.
func (t *Table) HealthyEndpoints(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if t.IsHealthy(c) {
			out = append(out, c)
		}
	}
	return out
}
