// Package graph builds station adjacency graphs from a catalog snapshot.
//
// Two strategies exist. DistanceThreshold connects stations that are
// geographically close and weights edges by distance; it is keyed by
// station ID. SharedRoute connects station names whose route sets
// intersect with unit weights; it is keyed by display name.
package graph

import "github.com/randytsao24/routeplanner/internal/models"

// Edge is a directed connection to another node
type Edge struct {
	To     string  `json:"to"`
	Route  string  `json:"route,omitempty"`
	Weight float64 `json:"weight"`
}

// Graph is an adjacency list with a fixed node order
type Graph struct {
	keys []string
	adj  map[string][]Edge
}

// New creates an empty graph
func New() *Graph {
	return &Graph{adj: make(map[string][]Edge)}
}

// AddNode registers key with no edges. Adding an existing key is a no-op.
func (g *Graph) AddNode(key string) {
	if _, ok := g.adj[key]; ok {
		return
	}
	g.keys = append(g.keys, key)
	g.adj[key] = nil
}

// AddEdge appends a directed edge, registering both endpoints
func (g *Graph) AddEdge(from string, e Edge) {
	g.AddNode(from)
	g.AddNode(e.To)
	g.adj[from] = append(g.adj[from], e)
}

// Has reports whether key is a node
func (g *Graph) Has(key string) bool {
	_, ok := g.adj[key]
	return ok
}

// Neighbors returns the outgoing edges of key in insertion order
func (g *Graph) Neighbors(key string) []Edge {
	return g.adj[key]
}

// Nodes returns the node keys in insertion order
func (g *Graph) Nodes() []string {
	return g.keys
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.keys)
}

// EdgeCount returns the number of directed edges
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.adj {
		n += len(edges)
	}
	return n
}

// Strategy derives a graph from a catalog snapshot
type Strategy interface {
	// Name identifies the strategy, e.g. in cache keys and responses
	Name() string
	// Key returns the node key a station maps to
	Key(s models.Station) string
	// Weighted reports whether edge weights differ, which decides the search
	Weighted() bool
	// Build must be pure; an empty catalog yields an empty graph
	Build(stations []models.Station) *Graph
}
