package graph

const (
	pageRankDamping    = 0.85
	pageRankIterations = 30
)

// PageRank computes standard iterative PageRank with uniform teleport, a
// centrality score per node.
func (g *Graph) PageRank() map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	n := len(ids)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	for _, id := range ids {
		rank[id] = 1.0 / float64(n)
	}

	outDegree := make(map[string]int, n)
	for _, id := range ids {
		outDegree[id] = len(g.adjacency[id])
	}

	for iter := 0; iter < pageRankIterations; iter++ {
		next := make(map[string]float64, n)
		for _, id := range ids {
			next[id] = (1 - pageRankDamping) / float64(n)
		}

		var dangling float64
		for _, id := range ids {
			if outDegree[id] == 0 {
				dangling += rank[id]
			}
		}
		danglingShare := pageRankDamping * dangling / float64(n)

		for _, id := range ids {
			next[id] += danglingShare
		}

		for _, id := range ids {
			if outDegree[id] == 0 {
				continue
			}
			share := pageRankDamping * rank[id] / float64(outDegree[id])
			for edgeID := range g.adjacency[id] {
				e := g.edges[edgeID]
				other := e.Source
				if other == id {
					other = e.Target
				}
				next[other] += share
			}
		}

		rank = next
	}

	return rank
}
