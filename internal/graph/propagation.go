package graph

import "sort"

// PropagationResult is one node's derived score from risk propagation.
type PropagationResult struct {
	NodeID string
	Hop    int
	Score  float64
}

// hopDecay is the per-hop dampening factor applied while propagating risk
// outward from a source node.
const hopDecay = 0.7

// PropagateRisk computes score(v) = sourceRisk * product(edge.weight along
// the path) * decay(hop) via BFS with per-hop dampening, breaking ties by
// nearest hop then larger weight. Each node keeps its best (highest) score
// across all discovered paths.
func (g *Graph) PropagateRisk(sourceID string, sourceRisk float64, maxHops int) []PropagationResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[sourceID]; !ok {
		return nil
	}

	type state struct {
		hop   int
		score float64
	}
	best := map[string]state{sourceID: {hop: 0, score: sourceRisk}}

	type frontierEntry struct {
		nodeID string
		score  float64
		weight float64 // product of edge weights along the path so far
	}
	frontier := []frontierEntry{{nodeID: sourceID, score: sourceRisk, weight: 1}}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []frontierEntry
		for _, cur := range frontier {
			for edgeID := range g.adjacency[cur.nodeID] {
				e := g.edges[edgeID]
				other := e.Source
				if other == cur.nodeID {
					other = e.Target
				}
				pathWeight := cur.weight * e.Weight
				score := sourceRisk * pathWeight * decay(hop)
				if prev, ok := best[other]; !ok || score > prev.score {
					best[other] = state{hop: hop, score: score}
					next = append(next, frontierEntry{nodeID: other, score: score, weight: pathWeight})
				}
			}
		}
		frontier = next
	}

	out := make([]PropagationResult, 0, len(best))
	for id, s := range best {
		if id == sourceID {
			continue
		}
		out = append(out, PropagationResult{NodeID: id, Hop: s.hop, Score: s.score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hop != out[j].Hop {
			return out[i].Hop < out[j].Hop
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func decay(hop int) float64 {
	d := 1.0
	for i := 0; i < hop; i++ {
		d *= hopDecay
	}
	return d
}
