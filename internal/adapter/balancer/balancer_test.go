package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinSelector_CyclesInOrder(t *testing.T) {
	r := NewRoundRobinSelector()
	endpoints := []string{"a", "b", "c"}

	var picks []string
	for i := 0; i < 6; i++ {
		p, err := r.Pick("svc", endpoints)
		require.NoError(t, err)
		picks = append(picks, p)
	}

	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, picks)
}

func TestRoundRobinSelector_NoEndpoints(t *testing.T) {
	r := NewRoundRobinSelector()
	_, err := r.Pick("svc", nil)
	assert.Error(t, err)
}

func TestRoundRobinSelector_IndependentPerService(t *testing.T) {
	r := NewRoundRobinSelector()
	endpoints := []string{"a", "b"}

	p1, _ := r.Pick("svc-a", endpoints)
	p2, _ := r.Pick("svc-b", endpoints)
	assert.Equal(t, p1, p2, "fresh counters for each service both start at index 0")
}

func TestLeastConnectionsSelector_PicksFewest(t *testing.T) {
	l := NewLeastConnectionsSelector()
	l.IncrementConnections("a")
	l.IncrementConnections("a")
	l.IncrementConnections("b")

	picked, err := l.Pick("svc", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "c", picked, "untouched endpoint has zero connections")
}

func TestLeastConnectionsSelector_DecrementFloorsAtZero(t *testing.T) {
	l := NewLeastConnectionsSelector()
	l.DecrementConnections("a")
	assert.Equal(t, int64(0), l.GetConnectionCount("a"))
}

func TestRandomSelector_AlwaysReturnsMember(t *testing.T) {
	r := NewRandomSelector()
	endpoints := []string{"a", "b", "c"}

	for i := 0; i < 20; i++ {
		p, err := r.Pick("svc", endpoints)
		require.NoError(t, err)
		assert.Contains(t, endpoints, p)
	}
}

func TestFactory_CreateKnownStrategies(t *testing.T) {
	f := NewFactory()

	for _, name := range []string{
		DefaultBalancerRoundRobin,
		DefaultBalancerWeightedRoundRobin,
		DefaultBalancerLeastConnections,
		DefaultBalancerRandom,
	} {
		lb, err := f.Create(name)
		require.NoError(t, err)
		assert.Equal(t, name, lb.Name())
	}
}

func TestFactory_UnknownStrategy(t *testing.T) {
	f := NewFactory()
	_, err := f.Create("nonexistent")
	assert.Error(t, err)
}
