package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance the limiter's notion of "now" deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(burst int, rate float64) (*Limiter, *fakeClock) {
	l := New(burst, rate)
	clk := &fakeClock{t: time.Unix(0, 0)}
	l.now = clk.now
	return l, clk
}

func TestLimiter_S4TokenBucketScenario(t *testing.T) {
	l, clk := newTestLimiter(5, 2)

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("k", 1), "call %d should be admitted", i)
	}
	assert.False(t, l.Allow("k", 1), "sixth call should be rejected")

	clk.advance(600 * time.Millisecond) // 0.6s * 2/s = 1.2 tokens
	assert.True(t, l.Allow("k", 1))
	assert.False(t, l.Allow("k", 1))
}

func TestLimiter_AllowZeroNeverDecreases(t *testing.T) {
	l, _ := newTestLimiter(5, 2)

	before := l.Remaining("k")
	assert.True(t, l.Allow("k", 0))
	assert.Equal(t, before, l.Remaining("k"))
}

func TestLimiter_RemainingMissingKeyIsFull(t *testing.T) {
	l, _ := newTestLimiter(5, 2)
	assert.Equal(t, float64(5), l.Remaining("missing"))
}

func TestLimiter_TokensStayWithinCapacity(t *testing.T) {
	l, clk := newTestLimiter(3, 10)

	require.True(t, l.Allow("k", 1))
	clk.advance(10 * time.Second) // would overflow without clamping
	assert.True(t, l.Remaining("k") <= 3)
	assert.True(t, l.Remaining("k") >= 0)
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(2, 1)

	require.True(t, l.Allow("k", 2))
	assert.False(t, l.Allow("k", 1))

	l.Reset("k")
	assert.Equal(t, float64(2), l.Remaining("k"))
}

func TestLimiter_Sweep(t *testing.T) {
	l, clk := newTestLimiter(2, 1)

	require.True(t, l.Allow("stale", 1))
	clk.advance(DefaultSweepAge + time.Second)
	require.True(t, l.Allow("fresh", 1))

	l.Sweep()

	assert.Equal(t, float64(2), l.Remaining("stale"), "stale bucket should have been evicted and recreated full")
}
