package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexbridge/sidecar/internal/adapter/health"
)

func TestSelector_S1PrefersLowerLatency(t *testing.T) {
	tbl := health.NewTable()
	tbl.Record("http://a", true, 1000) // first EWMA observation: avg = 0.1*1000 = 100
	tbl.Record("http://b", true, 5000) // avg = 500

	s := New(tbl)
	d := s.Select("svc", []string{"http://a", "http://b"})

	assert.Equal(t, "http://a", d.Endpoint)
	assert.InDelta(t, 0.964, d.Confidence, 0.01)
	assert.Equal(t, []string{"http://b"}, d.Fallbacks)
}

func TestSelector_S2PrefersHigherSuccessRate(t *testing.T) {
	tbl := health.NewTable()
	tbl.Record("http://a", true, 500)
	tbl.Record("http://a", false, 50)  // avg = 0.1*50 + 0.9*50 = 50, success 0.5
	tbl.Record("http://b", true, 5000) // avg = 500, success 1.0

	s := New(tbl)
	d := s.Select("svc", []string{"http://a", "http://b"})

	assert.Equal(t, "http://b", d.Endpoint)
	assert.InDelta(t, 0.867, d.Confidence, 0.01)
}

func TestSelector_S6ColdStartBeatsProvenBad(t *testing.T) {
	tbl := health.NewTable()
	tbl.Record("http://bad", true, 2000)
	for i := 0; i < 9; i++ {
		tbl.Record("http://bad", false, 2000)
	}

	s := New(tbl)
	d := s.Select("svc", []string{"http://a", "http://bad"})

	assert.Equal(t, "http://a", d.Endpoint, "unknown endpoint defaults to 0.5 and should beat a worse-than-0.5 known endpoint")
}

func TestSelector_EmptyEndpointsReturnsZeroConfidence(t *testing.T) {
	s := New(health.NewTable())
	d := s.Select("svc", nil)

	assert.Equal(t, "", d.Endpoint)
	assert.Equal(t, 0.0, d.Confidence)
	assert.Equal(t, "No available endpoints", d.Reasoning)
}

func TestSelector_ChosenEndpointIsMemberAndFallbacksArePermutation(t *testing.T) {
	tbl := health.NewTable()
	tbl.Record("http://a", true, 10)
	tbl.Record("http://b", false, 900)
	tbl.Record("http://c", true, 300)

	s := New(tbl)
	endpoints := []string{"http://a", "http://b", "http://c"}
	d := s.Select("svc", endpoints)

	require.Contains(t, endpoints, d.Endpoint)
	assert.ElementsMatch(t, remove(endpoints, d.Endpoint), d.Fallbacks)
}

func TestSelector_SelectIsPureAcrossConsecutiveCalls(t *testing.T) {
	tbl := health.NewTable()
	tbl.Record("http://a", true, 20)
	tbl.Record("http://b", true, 400)

	s := New(tbl)
	endpoints := []string{"http://a", "http://b"}

	first := s.Select("svc", endpoints)
	second := s.Select("svc", endpoints)
	assert.Equal(t, first.Endpoint, second.Endpoint)
}

func TestSelector_AdaptiveTimeoutClamps(t *testing.T) {
	tbl := health.NewTable()
	tbl.Record("http://cold", true, 1) // not enough history yet, but has one
	tbl.Record("http://slow", true, 200000)
	tbl.Record("http://fast", true, 100)

	s := New(tbl)
	assert.Equal(t, DefaultAdaptiveTimeout, s.AdaptiveTimeout("http://unknown"))
	assert.Equal(t, MaxAdaptiveTimeout, s.AdaptiveTimeout("http://slow"))
	assert.Equal(t, MinAdaptiveTimeout, s.AdaptiveTimeout("http://fast"))
}

func remove(in []string, v string) []string {
	out := make([]string, 0, len(in)-1)
	for _, s := range in {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
