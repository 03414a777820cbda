package agent

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const shortTermCapacity = 50

// Observation is one short-term memory entry.
type Observation struct {
	Content   map[string]any
	RecordedAt time.Time
}

// Episode is a long-term memory entry keyed by a pattern-match signature.
type Episode struct {
	Signature string
	Input     map[string]any
	Outcome   map[string]any
	RecordedAt time.Time
}

// Memory holds an agent's short-term ring buffer and long-term episodic
// store keyed by a feature-extraction signature, per spec.md §4.G.
type Memory struct {
	mu sync.RWMutex

	shortTerm []Observation
	longTerm  map[string][]Episode
}

func newMemory() *Memory {
	return &Memory{longTerm: make(map[string][]Episode)}
}

// Observe appends to the short-term ring buffer, evicting the oldest entry
// once shortTermCapacity is exceeded.
func (m *Memory) Observe(content map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortTerm = append(m.shortTerm, Observation{Content: content, RecordedAt: time.Now()})
	if len(m.shortTerm) > shortTermCapacity {
		m.shortTerm = m.shortTerm[len(m.shortTerm)-shortTermCapacity:]
	}
}

// RecentObservations returns a snapshot of the short-term buffer, most
// recent last.
func (m *Memory) RecentObservations() []Observation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Observation(nil), m.shortTerm...)
}

// Remember stores an episode under its pattern-matching signature.
func (m *Memory) Remember(input, outcome map[string]any) {
	sig := extractFeaturesForPatternMatching(input)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.longTerm[sig] = append(m.longTerm[sig], Episode{
		Signature: sig,
		Input:     input,
		Outcome:   outcome,
		RecordedAt: time.Now(),
	})
}

// Recall returns prior episodes sharing the given input's pattern signature,
// most recent first.
func (m *Memory) Recall(input map[string]any) []Episode {
	sig := extractFeaturesForPatternMatching(input)
	m.mu.RLock()
	defer m.mu.RUnlock()
	episodes := append([]Episode(nil), m.longTerm[sig]...)
	sort.Slice(episodes, func(i, j int) bool { return episodes[i].RecordedAt.After(episodes[j].RecordedAt) })
	return episodes
}

// extractFeaturesForPatternMatching derives a stable signature from an
// input's domain-relevant keys so similar situations recall similar
// episodes. Keys are sorted for determinism; values are stringified
// coarsely (numbers reduced to a magnitude band) so near-identical inputs collapse to the
// same bucket rather than fragmenting on exact value.
func extractFeaturesForPatternMatching(input map[string]any) string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sig := ""
	for _, k := range keys {
		sig += fmt.Sprintf("%s=%s;", k, coarseValue(input[k]))
	}
	return sig
}

func coarseValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return fmt.Sprintf("%t", val)
	case float64:
		return bucketNumber(val)
	case int:
		return bucketNumber(float64(val))
	default:
		return "other"
	}
}

// bucketNumber coarsens a number into one of a handful of magnitude bands so
// e.g. riskScore 62 and riskScore 84 land in the same signature bucket.
func bucketNumber(v float64) string {
	switch {
	case v < 0:
		return "neg"
	case v == 0:
		return "zero"
	case v <= 30:
		return "low"
	case v <= 60:
		return "medium"
	case v <= 85:
		return "high"
	default:
		return "critical"
	}
}
