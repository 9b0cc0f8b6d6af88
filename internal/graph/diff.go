package graph

// Delta is a set of elements that appear on only one side of a diff.
type Delta struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// IsEmpty reports whether the delta carries no elements.
func (d Delta) IsEmpty() bool {
	return len(d.Nodes) == 0 && len(d.Edges) == 0
}

// DiffResult describes the transition from one snapshot to another.
type DiffResult struct {
	Merged  Snapshot `json:"merged"`
	Added   Delta    `json:"added"`
	Removed Delta    `json:"removed"`
}

// Pushes reports whether the transition warrants a history entry: nodes
// were added or edges were removed.
func (r DiffResult) Pushes() bool {
	return len(r.Added.Nodes) > 0 || len(r.Removed.Edges) > 0
}

// Diff compares old and next by element identity.
//
// Added holds elements of next whose id is absent from old; Removed holds
// elements of old whose id is absent from next. Merged is old minus Removed
// plus Added: elements present on both sides keep the old value (and so
// the old coordinates), followed by added elements in next's order.
//
// Neither input is modified.
func Diff(old, next Snapshot) DiffResult {
	oldNodes := make(map[string]bool, len(old.Nodes))
	for _, n := range old.Nodes {
		oldNodes[n.ID] = true
	}
	oldEdges := make(map[string]bool, len(old.Edges))
	for _, e := range old.Edges {
		oldEdges[e.ID] = true
	}
	nextNodes := make(map[string]bool, len(next.Nodes))
	for _, n := range next.Nodes {
		nextNodes[n.ID] = true
	}
	nextEdges := make(map[string]bool, len(next.Edges))
	for _, e := range next.Edges {
		nextEdges[e.ID] = true
	}

	var res DiffResult
	res.Added = Delta{Nodes: []Node{}, Edges: []Edge{}}
	res.Removed = Delta{Nodes: []Node{}, Edges: []Edge{}}
	res.Merged = Snapshot{
		Nodes: make([]Node, 0, len(next.Nodes)),
		Edges: make([]Edge, 0, len(next.Edges)),
	}

	// ---- nodes ----
	for _, n := range old.Nodes {
		if nextNodes[n.ID] {
			res.Merged.Nodes = append(res.Merged.Nodes, n.Clone())
		} else {
			res.Removed.Nodes = append(res.Removed.Nodes, n.Clone())
		}
	}
	for _, n := range next.Nodes {
		if !oldNodes[n.ID] {
			res.Added.Nodes = append(res.Added.Nodes, n.Clone())
			res.Merged.Nodes = append(res.Merged.Nodes, n.Clone())
		}
	}

	// ---- edges ----
	for _, e := range old.Edges {
		if nextEdges[e.ID] {
			res.Merged.Edges = append(res.Merged.Edges, e.Clone())
		} else {
			res.Removed.Edges = append(res.Removed.Edges, e.Clone())
		}
	}
	for _, e := range next.Edges {
		if !oldEdges[e.ID] {
			res.Added.Edges = append(res.Added.Edges, e.Clone())
			res.Merged.Edges = append(res.Merged.Edges, e.Clone())
		}
	}

	return res
}
