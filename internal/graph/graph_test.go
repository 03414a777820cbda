package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddNodeIsIdempotentOnStructure(t *testing.T) {
	g := New()
	g.AddNode("n1", "seller", map[string]any{"email": "x@y"})
	g.AddNode("n1", "seller", map[string]any{"email": "x@y"})

	require.Len(t, g.nodes, 1)
	n := g.GetNode("n1")
	require.Equal(t, "x@y", n.Properties["email"])
}

func TestNoDuplicateEdgesForSamePairAndType(t *testing.T) {
	g := New()
	e1 := g.AddEdge("a", "b", "SHARED_EMAIL", 0.9, nil)
	e2 := g.AddEdge("b", "a", "SHARED_EMAIL", 0.9, nil)
	require.Equal(t, e1.ID, e2.ID)
	require.Len(t, g.edges, 1)
}

func TestRingDiscoveryScenario(t *testing.T) {
	g := New()

	g.AddSeller("S3", "seller", map[string]any{"email": "x@y", "phone": "555-0100"})
	g.AddSeller("S4", "seller", map[string]any{"email": "x@y"})

	edges := g.Edges("S3")
	var found *Edge
	for _, e := range edges {
		if e.Type == "SHARED_EMAIL" {
			found = e
		}
	}
	require.NotNil(t, found, "expected SHARED_EMAIL edge between S3 and S4")
	require.InDelta(t, 0.9, found.Weight, 0.0001)

	g.AddSeller("S5", "seller", map[string]any{"phone": "555-0100"})
	edges = g.Edges("S3")
	var phoneEdge *Edge
	for _, e := range edges {
		if e.Type == "SHARED_PHONE" {
			phoneEdge = e
		}
	}
	require.NotNil(t, phoneEdge)
	require.InDelta(t, 0.85, phoneEdge.Weight, 0.0001)

	sub := g.GetNeighbors("S3", 2, nil)
	ids := make(map[string]bool)
	for _, n := range sub.Nodes {
		ids[n.ID] = true
	}
	require.True(t, ids["S3"])
	require.True(t, ids["S4"])
	require.True(t, ids["S5"])
}

func TestDetectClustersGroupsWeaklyConnectedComponents(t *testing.T) {
	g := New()
	g.AddNode("a", "seller", map[string]any{"riskScore": 80.0})
	g.AddNode("b", "seller", map[string]any{"riskScore": 20.0})
	g.AddNode("c", "seller", map[string]any{"riskScore": 50.0}) // isolated
	g.AddEdge("a", "b", "SHARED_EMAIL", 0.9, nil)

	clusters := g.DetectClusters()
	require.Len(t, clusters, 2)

	var pairCluster *Cluster
	for i := range clusters {
		if clusters[i].Size == 2 {
			pairCluster = &clusters[i]
		}
	}
	require.NotNil(t, pairCluster)
	require.InDelta(t, 50.0, pairCluster.AvgRisk, 0.0001)
}

func TestInvestigateRespectsMinWeightAndSkipsStart(t *testing.T) {
	g := New()
	g.AddNode("start", "seller", nil)
	g.AddNode("strong", "seller", map[string]any{"riskScore": 90.0})
	g.AddNode("weak", "seller", nil)
	g.AddEdge("start", "strong", "SHARED_BANK", 0.95, nil)
	g.AddEdge("start", "weak", "SIMILAR_ADDRESS", 0.6, nil)

	ev := g.Investigate("start", 2, 0.8)
	ids := make(map[string]Evidence)
	for _, e := range ev {
		ids[e.NodeID] = e
	}

	require.Contains(t, ids, "strong")
	require.NotContains(t, ids, "start")
	require.NotContains(t, ids, "weak")
	require.Contains(t, ids["strong"].RiskSignals, "high-risk-score")
}

func TestPageRankSumsToApproximatelyOne(t *testing.T) {
	g := New()
	g.AddNode("a", "seller", nil)
	g.AddNode("b", "seller", nil)
	g.AddEdge("a", "b", "SHARED_EMAIL", 0.9, nil)

	ranks := g.PageRank()
	var sum float64
	for _, r := range ranks {
		sum += r
	}
	require.InDelta(t, 1.0, sum, 0.01)
}

func TestPropagateRiskDecaysByHop(t *testing.T) {
	g := New()
	g.AddNode("src", "seller", nil)
	g.AddNode("n1", "seller", nil)
	g.AddNode("n2", "seller", nil)
	g.AddEdge("src", "n1", "SHARED_EMAIL", 0.9, nil)
	g.AddEdge("n1", "n2", "SHARED_PHONE", 0.85, nil)

	results := g.PropagateRisk("src", 100, 2)
	byID := make(map[string]PropagationResult)
	for _, r := range results {
		byID[r.NodeID] = r
	}

	require.Equal(t, 1, byID["n1"].Hop)
	require.Equal(t, 2, byID["n2"].Hop)
	require.Greater(t, byID["n1"].Score, byID["n2"].Score)
}
