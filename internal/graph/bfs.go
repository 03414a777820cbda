package graph

// Subgraph is the induced subgraph returned by a bounded BFS.
type Subgraph struct {
	Nodes []*Node
	Edges []*Edge
}

// GetNeighbors returns the induced subgraph reachable from id within depth
// hops, optionally filtered to edgeTypes, via standard FIFO BFS with a
// visited-node set.
func (g *Graph) GetNeighbors(id string, depth int, edgeTypes []string) Subgraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return Subgraph{}
	}

	allowed := toSet(edgeTypes)
	visited := map[string]struct{}{id: {}}
	queue := []string{id}
	edgeSet := make(map[string]struct{})

	for d := 0; d < depth && len(queue) > 0; d++ {
		var next []string
		for _, cur := range queue {
			for edgeID := range g.adjacency[cur] {
				e := g.edges[edgeID]
				if len(allowed) > 0 {
					if _, ok := allowed[e.Type]; !ok {
						continue
					}
				}
				edgeSet[edgeID] = struct{}{}
				other := e.Source
				if other == cur {
					other = e.Target
				}
				if _, seen := visited[other]; !seen {
					visited[other] = struct{}{}
					next = append(next, other)
				}
			}
		}
		queue = next
	}

	// Edges between two nodes of the last BFS level are never traversed
	// above; add them so the result is the full induced subgraph.
	for nodeID := range visited {
		for edgeID := range g.adjacency[nodeID] {
			e := g.edges[edgeID]
			if len(allowed) > 0 {
				if _, ok := allowed[e.Type]; !ok {
					continue
				}
			}
			_, srcIn := visited[e.Source]
			_, tgtIn := visited[e.Target]
			if srcIn && tgtIn {
				edgeSet[edgeID] = struct{}{}
			}
		}
	}

	out := Subgraph{}
	for nodeID := range visited {
		out.Nodes = append(out.Nodes, g.nodes[nodeID])
	}
	for edgeID := range edgeSet {
		out.Edges = append(out.Edges, g.edges[edgeID])
	}
	return out
}

func toSet(ss []string) map[string]struct{} {
	if len(ss) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		out[s] = struct{}{}
	}
	return out
}
