package graph

// Adjacency maps a node id to the ids of its neighbours. Edges are
// treated as undirected. It is derived from a snapshot and never persisted.
type Adjacency map[string][]string

// BuildAdjacency builds the undirected adjacency of nodes and edges in
// O(|V|+|E|). Every node starts with an empty list. Each edge appends its
// target to the source's list and its source to the target's list, so a
// self-loop adds the node to its own list once per edge and parallel edges
// add repeated entries.
func BuildAdjacency(nodes []Node, edges []Edge) Adjacency {
	adj := make(Adjacency, len(nodes))
	for _, n := range nodes {
		adj[n.ID] = []string{}
	}
	for _, e := range edges {
		if e.IsSelfLoop() {
			adj[e.Source] = append(adj[e.Source], e.Source)
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}
	return adj
}

// Neighbours returns the neighbour list of id, or an empty slice when the
// id is unknown. The returned slice must not be modified.
func (a Adjacency) Neighbours(id string) []string {
	if ns, ok := a[id]; ok {
		return ns
	}
	return []string{}
}

// Degree returns the number of adjacency entries for id.
func (a Adjacency) Degree(id string) int {
	return len(a[id])
}
