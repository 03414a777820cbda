// Package graph implements the in-memory property graph used to discover
// relationship-based fraud rings: typed nodes/edges, property indexes for
// co-occurrence discovery, BFS, risk propagation, cluster/ring detection and
// PageRank. Generalized from the teacher's map+mutex idiom for Topic.Partitions
// (internal/broker/types.go) to nodes/edges instead of partitions.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Node is a typed vertex with arbitrary string-keyed properties.
type Node struct {
	ID         string
	Type       string
	Properties map[string]any
}

// Edge is an undirected relationship between two nodes. Its canonical id
// deduplicates one edge per (pair, type): "E-<src>-<dst>-<type>" with
// endpoints in lexicographic order.
type Edge struct {
	ID         string
	Source     string
	Target     string
	Type       string
	Properties map[string]any
	Weight     float64
}

// indexedProperties is the fixed set of node properties the engine maintains
// a co-occurrence index over.
var indexedProperties = map[string]struct{}{
	"email": {}, "phone": {}, "ipAddress": {}, "accountNumber": {},
	"taxId": {}, "deviceFingerprint": {}, "address": {},
}

// relationshipForProperty maps an indexed property to the edge type created
// when two nodes share its value.
var relationshipForProperty = map[string]string{
	"email":             "SHARED_EMAIL",
	"phone":             "SHARED_PHONE",
	"ipAddress":         "SHARED_IP",
	"accountNumber":     "SHARED_BANK",
	"taxId":             "SHARED_TAX_ID",
	"deviceFingerprint": "SHARED_DEVICE",
	"address":           "SIMILAR_ADDRESS",
}

// edgeWeight is the fixed weight table for relationship edge types.
var edgeWeight = map[string]float64{
	"SHARED_BANK":     0.95,
	"SHARED_TAX_ID":   0.95,
	"SHARED_EMAIL":    0.90,
	"SHARED_PHONE":    0.85,
	"SHARED_DEVICE":   0.80,
	"SHARED_IP":       0.70,
	"SIMILAR_ADDRESS": 0.60,
}

// Graph is the handle every component reaches the property graph through.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge
	// adjacency[nodeID] = set of edge IDs touching nodeID
	adjacency map[string]map[string]struct{}
	// propIndex[property][normalizedValue] = set of node IDs
	propIndex map[string]map[string]map[string]struct{}
}

func New() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		edges:     make(map[string]*Edge),
		adjacency: make(map[string]map[string]struct{}),
		propIndex: make(map[string]map[string]map[string]struct{}),
	}
}

func normalize(v any) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", v)))
}

func canonicalEdgeID(a, b, edgeType string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("E-%s-%s-%s", a, b, edgeType)
}

// AddNode creates the node if absent, or merges properties into the existing
// node if present (a no-op on the graph structure when called twice with the
// same arguments). Indexes are updated: old property values are de-indexed,
// new ones indexed.
func (g *Graph) AddNode(id, typ string, properties map[string]any) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, exists := g.nodes[id]
	if !exists {
		n = &Node{ID: id, Type: typ, Properties: make(map[string]any)}
		g.nodes[id] = n
	}

	for k, v := range properties {
		if old, had := n.Properties[k]; had && normalize(old) == normalize(v) {
			continue
		}
		if _, indexed := indexedProperties[k]; indexed {
			if old, had := n.Properties[k]; had {
				g.deindex(k, old, id)
			}
			g.index(k, v, id)
		}
		n.Properties[k] = v
	}

	return n
}

func (g *Graph) index(prop string, value any, nodeID string) {
	if g.propIndex[prop] == nil {
		g.propIndex[prop] = make(map[string]map[string]struct{})
	}
	norm := normalize(value)
	if g.propIndex[prop][norm] == nil {
		g.propIndex[prop][norm] = make(map[string]struct{})
	}
	g.propIndex[prop][norm][nodeID] = struct{}{}
}

func (g *Graph) deindex(prop string, value any, nodeID string) {
	norm := normalize(value)
	if set, ok := g.propIndex[prop][norm]; ok {
		delete(set, nodeID)
	}
}

// coOccurring returns node IDs (other than nodeID) indexed under the same
// normalized value for prop.
func (g *Graph) coOccurring(prop string, value any, nodeID string) []string {
	norm := normalize(value)
	set := g.propIndex[prop][norm]
	out := make([]string, 0, len(set))
	for id := range set {
		if id != nodeID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// GetNode returns a shallow copy of the node's current properties, or nil.
func (g *Graph) GetNode(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	cp := &Node{ID: n.ID, Type: n.Type, Properties: make(map[string]any, len(n.Properties))}
	for k, v := range n.Properties {
		cp.Properties[k] = v
	}
	return cp
}

// AddEdge creates (or returns the existing) canonical undirected edge between
// source and target for edgeType, with the given weight.
func (g *Graph) AddEdge(source, target, edgeType string, weight float64, properties map[string]any) *Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addEdgeLocked(source, target, edgeType, weight, properties)
}

func (g *Graph) addEdgeLocked(source, target, edgeType string, weight float64, properties map[string]any) *Edge {
	id := canonicalEdgeID(source, target, edgeType)
	if e, ok := g.edges[id]; ok {
		return e
	}

	a, b := source, target
	if b < a {
		a, b = b, a
	}

	e := &Edge{ID: id, Source: a, Target: b, Type: edgeType, Weight: weight, Properties: properties}
	g.edges[id] = e

	g.linkAdjacency(a, id)
	g.linkAdjacency(b, id)
	return e
}

func (g *Graph) linkAdjacency(nodeID, edgeID string) {
	if g.adjacency[nodeID] == nil {
		g.adjacency[nodeID] = make(map[string]struct{})
	}
	g.adjacency[nodeID][edgeID] = struct{}{}
}

// AddSeller adds (or updates) a node and then runs incremental relationship
// discovery: for each indexed property on the new node, it finds co-occurring
// nodes and creates the corresponding typed edge at the fixed weight.
func (g *Graph) AddSeller(id, typ string, properties map[string]any) *Node {
	g.mu.Lock()
	n, exists := g.nodes[id]
	if !exists {
		n = &Node{ID: id, Type: typ, Properties: make(map[string]any)}
		g.nodes[id] = n
	}

	type discovery struct {
		prop  string
		value any
	}
	var toDiscover []discovery

	for k, v := range properties {
		if old, had := n.Properties[k]; had && normalize(old) == normalize(v) {
			continue
		}
		if _, indexed := indexedProperties[k]; indexed {
			if old, had := n.Properties[k]; had {
				g.deindex(k, old, id)
			}
			g.index(k, v, id)
			toDiscover = append(toDiscover, discovery{prop: k, value: v})
		}
		n.Properties[k] = v
	}

	for _, d := range toDiscover {
		edgeType, ok := relationshipForProperty[d.prop]
		if !ok {
			continue
		}
		weight := edgeWeight[edgeType]
		for _, otherID := range g.coOccurring(d.prop, d.value, id) {
			g.addEdgeLocked(id, otherID, edgeType, weight, map[string]any{"via": d.prop})
		}
	}
	g.mu.Unlock()

	return n
}

// Edges returns every edge incident to nodeID.
func (g *Graph) Edges(nodeID string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.adjacency[nodeID]
	out := make([]*Edge, 0, len(ids))
	for id := range ids {
		out = append(out, g.edges[id])
	}
	return out
}

// AllNodeIDs returns every node id currently in the graph.
func (g *Graph) AllNodeIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	return out
}

// AllEdges returns every edge currently in the graph.
func (g *Graph) AllEdges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	return out
}
