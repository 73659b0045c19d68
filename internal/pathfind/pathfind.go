// Package pathfind implements shortest-path searches over station graphs
package pathfind

import (
	"container/heap"
	"math"
	"slices"

	"github.com/randytsao24/routeplanner/internal/graph"
)

// Result is the outcome of a search. Found is false when the destination
// is unreachable; Distance is then +Inf and Path is empty.
type Result struct {
	Path     []string
	Routes   []string
	Distance float64
	Hops     int
	Found    bool
}

// Unreachable is the result for a destination outside the source's component
func Unreachable() Result {
	return Result{Path: []string{}, Distance: math.Inf(1)}
}

func trivial(key string) Result {
	return Result{Path: []string{key}, Routes: []string{""}, Found: true}
}

// Searcher finds a path between two node keys
type Searcher func(g *graph.Graph, source, target string) Result

// For returns the search that matches the strategy's edge weighting
func For(s graph.Strategy) Searcher {
	if s.Weighted() {
		return Weighted
	}
	return Unweighted
}

type frontierItem struct {
	node string
	dist float64
	seq  int
}

// frontier is a min-heap on distance; seq keeps ties in insertion order
type frontier []frontierItem

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].dist != f[j].dist {
		return f[i].dist < f[j].dist
	}
	return f[i].seq < f[j].seq
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(frontierItem)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

type hop struct {
	from  string
	route string
}

// Weighted runs Dijkstra from source and stops when target is settled.
// Stale frontier entries are skipped on extraction rather than removed.
// Routes[i] is the route label of the edge into Path[i]; Routes[0] is empty.
func Weighted(g *graph.Graph, source, target string) Result {
	if source == target {
		return trivial(source)
	}
	if !g.Has(source) || !g.Has(target) {
		return Unreachable()
	}

	dist := map[string]float64{source: 0}
	prev := make(map[string]hop)

	pq := &frontier{}
	seq := 0
	heap.Push(pq, frontierItem{node: source, dist: 0, seq: seq})

	for pq.Len() > 0 {
		curr := heap.Pop(pq).(frontierItem)
		if best, ok := dist[curr.node]; ok && curr.dist > best {
			continue
		}

		if curr.node == target {
			path, routes := reconstructWeighted(prev, source, target)
			return Result{
				Path:     path,
				Routes:   routes,
				Distance: curr.dist,
				Hops:     len(path) - 1,
				Found:    true,
			}
		}

		for _, e := range g.Neighbors(curr.node) {
			next := curr.dist + e.Weight
			if best, ok := dist[e.To]; ok && next >= best {
				continue
			}
			dist[e.To] = next
			prev[e.To] = hop{from: curr.node, route: e.Route}
			seq++
			heap.Push(pq, frontierItem{node: e.To, dist: next, seq: seq})
		}
	}

	return Unreachable()
}

func reconstructWeighted(prev map[string]hop, source, target string) ([]string, []string) {
	var path, routes []string
	for node := target; ; {
		path = append(path, node)
		if node == source {
			routes = append(routes, "")
			break
		}
		h := prev[node]
		routes = append(routes, h.route)
		node = h.from
	}
	slices.Reverse(path)
	slices.Reverse(routes)
	return path, routes
}

// Unweighted runs a breadth-first search and returns the path with the
// fewest hops. A node's parent is the first node that discovered it, which
// gives the same path as expanding whole path prefixes in FIFO order.
func Unweighted(g *graph.Graph, source, target string) Result {
	if source == target {
		return Result{Path: []string{source}, Found: true}
	}

	parent := map[string]string{source: ""}
	queue := []string{source}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node == target {
			path := reconstructUnweighted(parent, source, target)
			return Result{
				Path:     path,
				Distance: float64(len(path) - 1),
				Hops:     len(path) - 1,
				Found:    true,
			}
		}

		for _, e := range g.Neighbors(node) {
			if _, seen := parent[e.To]; seen {
				continue
			}
			parent[e.To] = node
			queue = append(queue, e.To)
		}
	}

	return Unreachable()
}

func reconstructUnweighted(parent map[string]string, source, target string) []string {
	var path []string
	for node := target; node != source; node = parent[node] {
		path = append(path, node)
	}
	path = append(path, source)
	slices.Reverse(path)
	return path
}
