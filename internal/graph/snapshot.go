package graph

import "log/slog"

// Snapshot is a complete node/edge set as supplied by a data source or
// held as live state.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Nodes: make([]Node, len(s.Nodes)),
		Edges: make([]Edge, len(s.Edges)),
	}
	for i, n := range s.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range s.Edges {
		out.Edges[i] = e.Clone()
	}
	return out
}

// IsEmpty reports whether the snapshot has neither nodes nor edges.
func (s Snapshot) IsEmpty() bool {
	return len(s.Nodes) == 0 && len(s.Edges) == 0
}

// Sanitize returns a copy of s that is safe to diff and render:
//   - duplicate node and edge ids keep their first occurrence
//   - edges without an id get one from ComposeEdgeID
//   - edges whose source or target is not a node in s are dropped
//
// The number of dropped dangling edges is returned alongside.
func (s Snapshot) Sanitize() (Snapshot, int) {
	out := Snapshot{
		Nodes: make([]Node, 0, len(s.Nodes)),
		Edges: make([]Edge, 0, len(s.Edges)),
	}
	nodeSet := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" || nodeSet[n.ID] {
			continue
		}
		nodeSet[n.ID] = true
		out.Nodes = append(out.Nodes, n.Clone())
	}

	dropped := 0
	edgeSet := make(map[string]bool, len(s.Edges))
	for _, e := range s.Edges {
		if e.ID == "" {
			e.ID = ComposeEdgeID(e.Source, e.RelationType, e.Target)
		}
		if edgeSet[e.ID] {
			continue
		}
		if !nodeSet[e.Source] || !nodeSet[e.Target] {
			dropped++
			slog.Debug("graph: dropping dangling edge", "edge", e.ID, "source", e.Source, "target", e.Target)
			continue
		}
		edgeSet[e.ID] = true
		out.Edges = append(out.Edges, e.Clone())
	}
	return out, dropped
}

// NodeIndex maps node id to node.
func (s Snapshot) NodeIndex() map[string]Node {
	m := make(map[string]Node, len(s.Nodes))
	for _, n := range s.Nodes {
		m[n.ID] = n
	}
	return m
}

// EdgeIndex maps edge id to edge.
func (s Snapshot) EdgeIndex() map[string]Edge {
	m := make(map[string]Edge, len(s.Edges))
	for _, e := range s.Edges {
		m[e.ID] = e
	}
	return m
}

// NodeIDs returns node ids in snapshot order.
func (s Snapshot) NodeIDs() []string {
	ids := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// EdgeIDs returns edge ids in snapshot order.
func (s Snapshot) EdgeIDs() []string {
	ids := make([]string, len(s.Edges))
	for i, e := range s.Edges {
		ids[i] = e.ID
	}
	return ids
}

// PositionedRatio returns the fraction of nodes carrying both coordinates.
// An empty snapshot has no positioned nodes and reports 0.
func (s Snapshot) PositionedRatio() float64 {
	if len(s.Nodes) == 0 {
		return 0
	}
	positioned := 0
	for _, n := range s.Nodes {
		if n.HasPosition() {
			positioned++
		}
	}
	return float64(positioned) / float64(len(s.Nodes))
}
