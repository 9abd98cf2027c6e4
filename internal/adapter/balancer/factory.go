package balancer

import (
	"fmt"
	"sync"

	"github.com/nexbridge/sidecar/internal/core/ports"
)

type Factory struct {
	creators map[string]func() ports.LoadBalancer
	mu       sync.RWMutex
}

func NewFactory() *Factory {
	factory := &Factory{
		creators: make(map[string]func() ports.LoadBalancer),
	}

	factory.Register(DefaultBalancerRoundRobin, func() ports.LoadBalancer {
		return NewRoundRobinSelector()
	})
	factory.Register(DefaultBalancerWeightedRoundRobin, func() ports.LoadBalancer {
		return NewWeightedRoundRobinSelector()
	})
	factory.Register(DefaultBalancerLeastConnections, func() ports.LoadBalancer {
		return NewLeastConnectionsSelector()
	})
	factory.Register(DefaultBalancerRandom, func() ports.LoadBalancer {
		return NewRandomSelector()
	})

	return factory
}

func (f *Factory) Register(name string, creator func() ports.LoadBalancer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[name] = creator
}

func (f *Factory) Create(name string) (ports.LoadBalancer, error) {
	f.mu.RLock()
	creator, exists := f.creators[name]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown load balancer strategy: %s", name)
	}

	return creator(), nil
}

func (f *Factory) GetAvailableStrategies() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	strategies := make([]string, 0, len(f.creators))
	for name := range f.creators {
		strategies = append(strategies, name)
	}
	return strategies
}
