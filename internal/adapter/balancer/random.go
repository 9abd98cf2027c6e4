package balancer

import (
	"fmt"
	"time"
)

// RandomSelector picks an index derived from a nanosecond-granularity
// clock hash. Fairness is opportunistic, not guaranteed, per spec.md §4.5.
type RandomSelector struct{}

func NewRandomSelector() *RandomSelector { return &RandomSelector{} }

func (r *RandomSelector) Name() string { return DefaultBalancerRandom }

func (r *RandomSelector) Pick(_ string, endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no endpoints available")
	}

	index := uint64(time.Now().UnixNano()) % uint64(len(endpoints))
	return endpoints[index], nil
}

func (r *RandomSelector) IncrementConnections(string) {}
func (r *RandomSelector) DecrementConnections(string) {}
