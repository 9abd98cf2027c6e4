// Package selector implements the adaptive endpoint selector (C5): it scores
// candidate endpoints from the shared health table and returns a decision
// plus an ordered fallback list.
package selector

import (
	"fmt"
	"sort"
	"time"

	"github.com/nexbridge/sidecar/internal/core/domain"
	"github.com/nexbridge/sidecar/internal/core/ports"
)

const (
	SuccessWeight = 0.6
	LatencyWeight = 0.4

	ColdStartScore = 0.5

	MinAdaptiveTimeout     = 5 * time.Second
	MaxAdaptiveTimeout     = 30 * time.Second
	DefaultAdaptiveTimeout = 5 * time.Second
)

// Selector reads the shared health table to score and rank endpoints. It
// holds no mutable state of its own: every call is a pure function of the
// table's current snapshot.
type Selector struct {
	table ports.HealthTable
}

func New(table ports.HealthTable) *Selector {
	return &Selector{table: table}
}

type scored struct {
	endpoint string
	score    float64
}

// Select implements spec.md §4.4's five-step algorithm.
func (s *Selector) Select(_ string, endpoints []string) domain.AIDecision {
	if len(endpoints) == 0 {
		return domain.AIDecision{Reasoning: "No available endpoints"}
	}

	scores := make([]scored, len(endpoints))
	for i, ep := range endpoints {
		scores[i] = scored{endpoint: ep, score: s.score(ep)}
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].score > scores[best].score {
			best = i
		}
	}

	fallbacks := make([]scored, 0, len(scores)-1)
	for i, sc := range scores {
		if i != best {
			fallbacks = append(fallbacks, sc)
		}
	}
	sort.SliceStable(fallbacks, func(i, j int) bool { return fallbacks[i].score > fallbacks[j].score })

	fallbackURLs := make([]string, len(fallbacks))
	for i, sc := range fallbacks {
		fallbackURLs[i] = sc.endpoint
	}

	chosen := scores[best]
	return domain.AIDecision{
		Endpoint:   chosen.endpoint,
		Confidence: chosen.score,
		Reasoning:  fmt.Sprintf("selected %s with score %.3f", chosen.endpoint, chosen.score),
		Fallbacks:  fallbackURLs,
	}
}

// score computes the blended success/latency score for one endpoint. An
// endpoint with no recorded history defaults to ColdStartScore, which beats
// a proven-bad endpoint but never a proven-good one.
func (s *Selector) score(endpoint string) float64 {
	h, ok := s.table.Get(endpoint)
	if !ok {
		return ColdStartScore
	}

	successScore := h.SuccessRate

	latencyScore := 1.0
	if h.AvgLatencyMs > 0 {
		latencyScore = 1.0 / (1.0 + h.AvgLatencyMs/1000.0)
	}

	score := SuccessWeight*successScore + LatencyWeight*latencyScore
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// AdaptiveTimeout returns clamp(2*avg_latency_ms, 5s, 30s) when history
// exists for endpoint, else the fixed default.
func (s *Selector) AdaptiveTimeout(endpointURL string) time.Duration {
	h, ok := s.table.Get(endpointURL)
	if !ok || h.AvgLatencyMs <= 0 {
		return DefaultAdaptiveTimeout
	}

	d := time.Duration(2*h.AvgLatencyMs) * time.Millisecond
	if d < MinAdaptiveTimeout {
		return MinAdaptiveTimeout
	}
	if d > MaxAdaptiveTimeout {
		return MaxAdaptiveTimeout
	}
	return d
}
