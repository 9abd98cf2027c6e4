package breaker

import (
	"sync"

	"github.com/nexbridge/sidecar/internal/core/domain"
	"github.com/nexbridge/sidecar/internal/core/ports"
)

// Registry resolves or lazily creates the breaker for a service name.
type Registry struct {
	mu           sync.RWMutex
	breakers     map[string]*Breaker
	onTransition func(service, from, to string)
}

func NewRegistry(onTransition func(service, from, to string)) *Registry {
	return &Registry{
		breakers:     make(map[string]*Breaker),
		onTransition: onTransition,
	}
}

func (r *Registry) For(service string, failureThreshold int) ports.CircuitBreaker {
	r.mu.RLock()
	b, ok := r.breakers[service]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	b = New(service, failureThreshold, r.onTransition)
	r.breakers[service] = b
	return b
}

func (r *Registry) Snapshot() []domain.CircuitSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.CircuitSnapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}
