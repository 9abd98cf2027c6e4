// Package balancer implements the alternate/composable strategy layer (C6).
// The dispatcher routes primarily through the endpoint selector (C5); these
// strategies exist so an operator can swap in simple tie-break policies
// instead, per spec.md §4.5/§9.
package balancer

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	DefaultBalancerRoundRobin         = "round-robin"
	DefaultBalancerWeightedRoundRobin = "weighted-round-robin"
	DefaultBalancerLeastConnections   = "least-connections"
	DefaultBalancerRandom             = "random"
)

// RoundRobinSelector picks endpoints in rotation, per service.
type RoundRobinSelector struct {
	counters map[string]*uint64
	mu       sync.Mutex
}

func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{counters: make(map[string]*uint64)}
}

func (r *RoundRobinSelector) Name() string { return DefaultBalancerRoundRobin }

func (r *RoundRobinSelector) counterFor(service string) *uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[service]; ok {
		return c
	}
	c := new(uint64)
	r.counters[service] = c
	return c
}

func (r *RoundRobinSelector) Pick(service string, endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no endpoints available")
	}

	counter := r.counterFor(service)
	current := atomic.AddUint64(counter, 1) - 1
	index := current % uint64(len(endpoints))
	return endpoints[index], nil
}

func (r *RoundRobinSelector) IncrementConnections(string) {}
func (r *RoundRobinSelector) DecrementConnections(string) {}

// WeightedRoundRobinSelector is, in the present core, equivalent to
// RoundRobinSelector: explicit per-endpoint weights are a documented open
// item (spec.md §9 "Weighted round-robin") with nothing in configuration
// to source them from today.
type WeightedRoundRobinSelector struct {
	*RoundRobinSelector
}

func NewWeightedRoundRobinSelector() *WeightedRoundRobinSelector {
	return &WeightedRoundRobinSelector{RoundRobinSelector: NewRoundRobinSelector()}
}

func (w *WeightedRoundRobinSelector) Name() string { return DefaultBalancerWeightedRoundRobin }
