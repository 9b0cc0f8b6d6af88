// Package pathfind enumerates simple paths between nodes of a snapshot.
//
// Two strategies exist. DFS returns every simple path up to a hop ceiling
// and is the default for small graphs. BFS keeps a single global visited
// set and therefore returns at most one path per reached node (the first
// discovered); it is used for large graphs where full enumeration is too
// expensive. The BFS behaviour is kept as-is because callers depend on its
// cost profile, even though it returns an incomplete path set.
package pathfind

import (
	"fmt"
	"strings"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

// Strategy selects the traversal used by FindAllPaths.
type Strategy string

const (
	StrategyAuto Strategy = "auto"
	StrategyBFS  Strategy = "bfs"
	StrategyDFS  Strategy = "dfs"
)

const (
	// DefaultMaxDepth is the DFS hop ceiling.
	DefaultMaxDepth = 3
	// DefaultBFSEdgeThreshold is the edge count above which auto picks BFS.
	DefaultBFSEdgeThreshold = 1000
)

// ParseStrategy converts a user-supplied name. The empty string is auto.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyBFS:
		return StrategyBFS, nil
	case StrategyDFS:
		return StrategyDFS, nil
	}
	return "", fmt.Errorf("pathfind: unknown strategy %q", s)
}

// ChooseStrategy resolves auto for a graph with edgeCount edges: BFS above
// threshold, DFS otherwise. A non-positive threshold means the default.
func ChooseStrategy(edgeCount, threshold int) Strategy {
	if threshold <= 0 {
		threshold = DefaultBFSEdgeThreshold
	}
	if edgeCount > threshold {
		return StrategyBFS
	}
	return StrategyDFS
}

// Path is an ordered walk. Edges[i] joins Nodes[i] and Nodes[i+1]; an
// empty edge id means no concrete edge was found for that step.
type Path struct {
	Nodes []string `json:"nodes"`
	Edges []string `json:"edges"`
}

// Len returns the step count.
func (p Path) Len() int { return len(p.Edges) }

// Signature identifies a path by its node and edge sequences. Every id is
// quoted, so ids containing separators cannot collide.
func (p Path) Signature() string {
	return fmt.Sprintf("%q|%q", p.Nodes, p.Edges)
}

// FindAllPaths enumerates paths from start to end.
//
// maxDepth bounds the number of edges per path. For DFS a non-positive
// value means DefaultMaxDepth; for BFS it means unbounded. StrategyAuto is
// resolved with ChooseStrategy against len(edges).
//
// start == end yields a single degenerate path. An unknown start or end,
// or an unreachable end, yields an empty slice.
func FindAllPaths(start, end string, adj graph.Adjacency, nodes []graph.Node, edges []graph.Edge, strategy Strategy, maxDepth int) []Path {
	if start == end {
		return []Path{{Nodes: []string{start}, Edges: []string{}}}
	}
	if !hasNode(nodes, adj, start) || !hasNode(nodes, adj, end) {
		return []Path{}
	}

	if strategy == StrategyAuto || strategy == "" {
		strategy = ChooseStrategy(len(edges), 0)
	}

	var walks [][]string
	switch strategy {
	case StrategyBFS:
		walks = bfs(start, end, adj, maxDepth)
	default:
		if maxDepth <= 0 {
			maxDepth = DefaultMaxDepth
		}
		walks = dfs(start, end, adj, maxDepth)
	}

	resolve := newEdgeResolver(edges)
	seen := make(map[string]bool, len(walks))
	out := make([]Path, 0, len(walks))
	for _, w := range walks {
		p := Path{Nodes: w, Edges: make([]string, 0, len(w)-1)}
		for i := 0; i+1 < len(w); i++ {
			p.Edges = append(p.Edges, resolve(w[i], w[i+1]))
		}
		sig := p.Signature()
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, p)
	}
	return out
}

func hasNode(nodes []graph.Node, adj graph.Adjacency, id string) bool {
	if _, ok := adj[id]; ok {
		return true
	}
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// ---- traversals ----

// bfs explores layer by layer. Each node is enqueued at most once, so at
// most one path reaches any node.
func bfs(start, end string, adj graph.Adjacency, maxDepth int) [][]string {
	visited := map[string]bool{start: true}
	queue := [][]string{{start}}
	var found [][]string

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]
		last := path[len(path)-1]

		if last == end {
			found = append(found, path)
			continue
		}
		if maxDepth > 0 && len(path)-1 >= maxDepth {
			continue
		}
		for _, next := range adj.Neighbours(last) {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, extend(path, next))
		}
	}
	return found
}

// dfs returns every simple path up to maxDepth edges, in the order a
// recursive backtracking search would find them. An explicit stack keeps
// the Go stack flat regardless of graph shape.
func dfs(start, end string, adj graph.Adjacency, maxDepth int) [][]string {
	stack := [][]string{{start}}
	var found [][]string

	for len(stack) > 0 {
		path := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		last := path[len(path)-1]

		if last == end {
			found = append(found, path)
			continue
		}
		if len(path)-1 >= maxDepth {
			continue
		}
		ns := adj.Neighbours(last)
		// Push in reverse so the first neighbour is explored first.
		for i := len(ns) - 1; i >= 0; i-- {
			if contains(path, ns[i]) {
				continue
			}
			stack = append(stack, extend(path, ns[i]))
		}
	}
	return found
}

func extend(path []string, id string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = id
	return out
}

func contains(path []string, id string) bool {
	for _, v := range path {
		if v == id {
			return true
		}
	}
	return false
}

// newEdgeResolver returns a lookup for the first edge, in input order,
// joining two nodes in either direction. Missing pairs resolve to "".
func newEdgeResolver(edges []graph.Edge) func(a, b string) string {
	first := make(map[graph.Pair]string, len(edges))
	for _, e := range edges {
		k := e.Pair()
		if _, ok := first[k]; !ok {
			first[k] = e.ID
		}
	}
	return func(a, b string) string {
		return first[graph.Edge{Source: a, Target: b}.Pair()]
	}
}
