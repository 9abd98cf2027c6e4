package balancer

import (
	"fmt"
	"sync"
)

// LeastConnectionsSelector picks the endpoint with the fewest active
// connections, as tracked via IncrementConnections/DecrementConnections.
// Ties break by input order.
type LeastConnectionsSelector struct {
	connections map[string]int64
	mu          sync.RWMutex
}

func NewLeastConnectionsSelector() *LeastConnectionsSelector {
	return &LeastConnectionsSelector{
		connections: make(map[string]int64),
	}
}

func (l *LeastConnectionsSelector) Name() string {
	return DefaultBalancerLeastConnections
}

func (l *LeastConnectionsSelector) Pick(_ string, endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no endpoints available")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	selected := ""
	minConnections := int64(-1)

	for _, endpoint := range endpoints {
		connections := l.connections[endpoint]
		if minConnections == -1 || connections < minConnections {
			minConnections = connections
			selected = endpoint
		}
	}

	return selected, nil
}

func (l *LeastConnectionsSelector) IncrementConnections(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connections[endpoint]++
}

func (l *LeastConnectionsSelector) DecrementConnections(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if count, exists := l.connections[endpoint]; exists && count > 0 {
		l.connections[endpoint]--
	}
}

func (l *LeastConnectionsSelector) GetConnectionCount(endpoint string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connections[endpoint]
}

func (l *LeastConnectionsSelector) GetConnectionStats() map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]int64, len(l.connections))
	for endpoint, count := range l.connections {
		stats[endpoint] = count
	}
	return stats
}
