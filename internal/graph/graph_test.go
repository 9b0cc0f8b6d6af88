package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string) Node {
	t, raw := ParseNodeID(id)
	return Node{ID: id, Type: t, Name: raw}
}

func placed(id string, x, y float64) Node {
	return node(id).WithPosition(x, y)
}

func edge(src, rel, dst string) Edge {
	return NewEdge(src, rel, dst)
}

// ---- identity ----

func TestComposeParseNodeID_RoundTrip(t *testing.T) {
	id := ComposeNodeID("Disease", "D001")
	assert.Equal(t, "Disease::D001", id)

	typ, raw := ParseNodeID(id)
	assert.Equal(t, "Disease", typ)
	assert.Equal(t, "D001", raw)
}

func TestParseNodeID_SplitsOnFirstDelimiter(t *testing.T) {
	typ, raw := ParseNodeID("Gene::A::B")
	assert.Equal(t, "Gene", typ)
	assert.Equal(t, "A::B", raw)
}

func TestParseNodeID_NoDelimiter(t *testing.T) {
	typ, raw := ParseNodeID("orphan")
	assert.Equal(t, "", typ)
	assert.Equal(t, "orphan", raw)
}

func TestNode_WithPositionDoesNotMutate(t *testing.T) {
	n := node("A::1")
	moved := n.WithPosition(10, 20)

	assert.False(t, n.HasPosition())
	x, y, ok := moved.Position()
	require.True(t, ok)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, y)
}

func TestNode_PinWins(t *testing.T) {
	n := placed("A::1", 1, 1)
	n.FX, n.FY = Float(5), Float(6)
	x, y, ok := n.Position()
	require.True(t, ok)
	assert.Equal(t, 5.0, x)
	assert.Equal(t, 6.0, y)
}

// ---- snapshot ----

func TestSanitize_DropsDanglingEdges(t *testing.T) {
	s := Snapshot{
		Nodes: []Node{node("A::1"), node("B::2")},
		Edges: []Edge{edge("A::1", "rel", "B::2"), edge("A::1", "rel", "C::3")},
	}
	clean, dropped := s.Sanitize()
	assert.Equal(t, 1, dropped)
	require.Len(t, clean.Edges, 1)
	assert.Equal(t, "B::2", clean.Edges[0].Target)
}

func TestSanitize_FillsEdgeIDsAndDedupes(t *testing.T) {
	s := Snapshot{
		Nodes: []Node{node("A::1"), node("A::1"), node("B::2")},
		Edges: []Edge{{Source: "A::1", Target: "B::2", RelationType: "r"}},
	}
	clean, _ := s.Sanitize()
	assert.Len(t, clean.Nodes, 2)
	require.Len(t, clean.Edges, 1)
	assert.Equal(t, ComposeEdgeID("A::1", "r", "B::2"), clean.Edges[0].ID)
}

func TestPositionedRatio(t *testing.T) {
	s := Snapshot{Nodes: []Node{placed("A::1", 0, 0), node("B::2")}}
	assert.InDelta(t, 0.5, s.PositionedRatio(), 1e-9)
	assert.Equal(t, 0.0, Snapshot{}.PositionedRatio())
}

// ---- adjacency ----

func TestBuildAdjacency_Undirected(t *testing.T) {
	nodes := []Node{node("A::1"), node("B::2"), node("C::3")}
	edges := []Edge{edge("A::1", "r", "B::2")}
	adj := BuildAdjacency(nodes, edges)

	assert.Equal(t, []string{"B::2"}, adj.Neighbours("A::1"))
	assert.Equal(t, []string{"A::1"}, adj.Neighbours("B::2"))
	assert.Empty(t, adj.Neighbours("C::3"))
	assert.NotNil(t, adj.Neighbours("C::3"))
}

func TestBuildAdjacency_SelfLoopOncePerEdge(t *testing.T) {
	nodes := []Node{node("A::1")}
	edges := []Edge{edge("A::1", "r", "A::1"), edge("A::1", "s", "A::1")}
	adj := BuildAdjacency(nodes, edges)
	assert.Equal(t, []string{"A::1", "A::1"}, adj.Neighbours("A::1"))
}

func TestAdjacency_UnknownID(t *testing.T) {
	adj := BuildAdjacency(nil, nil)
	ns := adj.Neighbours("missing")
	assert.NotNil(t, ns)
	assert.Empty(t, ns)
}

// ---- diff ----

func TestDiff_Scenario(t *testing.T) {
	old := Snapshot{
		Nodes: []Node{node("A::1"), node("B::2")},
		Edges: []Edge{{ID: "e1", Source: "A::1", Target: "B::2"}},
	}
	next := Snapshot{
		Nodes: []Node{node("A::1"), node("C::3")},
		Edges: []Edge{{ID: "e2", Source: "A::1", Target: "C::3"}},
	}

	res := Diff(old, next)

	assert.Equal(t, []string{"C::3"}, Snapshot{Nodes: res.Added.Nodes}.NodeIDs())
	assert.Equal(t, []string{"e2"}, Snapshot{Edges: res.Added.Edges}.EdgeIDs())
	assert.Equal(t, []string{"B::2"}, Snapshot{Nodes: res.Removed.Nodes}.NodeIDs())
	assert.Equal(t, []string{"e1"}, Snapshot{Edges: res.Removed.Edges}.EdgeIDs())
	assert.Equal(t, []string{"A::1", "C::3"}, res.Merged.NodeIDs())
	assert.Equal(t, []string{"e2"}, res.Merged.EdgeIDs())
	assert.True(t, res.Pushes())
}

func TestDiff_AgainstSelfIsEmpty(t *testing.T) {
	s := Snapshot{
		Nodes: []Node{placed("A::1", 1, 2), node("B::2")},
		Edges: []Edge{edge("A::1", "r", "B::2")},
	}
	res := Diff(s, s)
	assert.True(t, res.Added.IsEmpty())
	assert.True(t, res.Removed.IsEmpty())
	assert.Equal(t, s.NodeIDs(), res.Merged.NodeIDs())
	assert.Equal(t, s.EdgeIDs(), res.Merged.EdgeIDs())
	assert.False(t, res.Pushes())
}

func TestDiff_Correctness(t *testing.T) {
	old := Snapshot{
		Nodes: []Node{node("A::1"), node("B::2"), node("C::3")},
		Edges: []Edge{edge("A::1", "r", "B::2"), edge("B::2", "r", "C::3")},
	}
	next := Snapshot{
		Nodes: []Node{node("B::2"), node("C::3"), node("D::4")},
		Edges: []Edge{edge("B::2", "r", "C::3"), edge("C::3", "r", "D::4")},
	}
	res := Diff(old, next)

	// ids(merged) = (ids(old) - ids(removed)) ∪ ids(added)
	want := map[string]bool{}
	for _, id := range old.NodeIDs() {
		want[id] = true
	}
	for _, n := range res.Removed.Nodes {
		delete(want, n.ID)
	}
	for _, n := range res.Added.Nodes {
		want[n.ID] = true
	}
	got := map[string]bool{}
	for _, id := range res.Merged.NodeIDs() {
		got[id] = true
	}
	assert.Equal(t, want, got)

	oldIDs := old.NodeIndex()
	for _, n := range res.Added.Nodes {
		_, dup := oldIDs[n.ID]
		assert.False(t, dup, "added node %s already in old", n.ID)
	}
	nextIDs := next.NodeIndex()
	for _, n := range res.Removed.Nodes {
		_, dup := nextIDs[n.ID]
		assert.False(t, dup, "removed node %s still in next", n.ID)
	}
}

func TestDiff_OldElementsAuthoritative(t *testing.T) {
	old := Snapshot{Nodes: []Node{placed("A::1", 5, 5)}}
	next := Snapshot{Nodes: []Node{node("A::1")}}
	res := Diff(old, next)
	require.Len(t, res.Merged.Nodes, 1)
	assert.True(t, res.Merged.Nodes[0].HasPosition())
}

func TestDiff_OnlyNodeRemovalDoesNotPush(t *testing.T) {
	old := Snapshot{Nodes: []Node{node("A::1"), node("B::2")}}
	next := Snapshot{Nodes: []Node{node("A::1")}}
	assert.False(t, Diff(old, next).Pushes())
}

// ---- merge ----

func TestParseMergeMode(t *testing.T) {
	tests := []struct {
		in      string
		want    MergeMode
		wantErr bool
	}{
		{"", MergeAppend, false},
		{"append", MergeAppend, false},
		{"Replace", MergeReplace, false},
		{" subtract ", MergeSubtract, false},
		{"union", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMergeMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownMergeMode)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestMerge_AppendNeverRemoves(t *testing.T) {
	live := Snapshot{Nodes: []Node{node("A::1")}}
	incoming := Snapshot{
		Nodes: []Node{node("B::2")},
		Edges: []Edge{edge("A::1", "r", "B::2")},
	}
	res, err := Merge(live, incoming, MergeAppend)
	require.NoError(t, err)
	assert.True(t, res.Removed.IsEmpty())
	assert.Equal(t, []string{"A::1", "B::2"}, res.Merged.NodeIDs())
	// the edge references a live node and an incoming node; both exist in the union
	assert.Len(t, res.Merged.Edges, 1)
}

func TestMerge_Replace(t *testing.T) {
	live := Snapshot{Nodes: []Node{node("A::1"), node("B::2")}}
	incoming := Snapshot{Nodes: []Node{node("C::3")}}
	res, err := Merge(live, incoming, MergeReplace)
	require.NoError(t, err)
	assert.Equal(t, []string{"C::3"}, res.Merged.NodeIDs())
	assert.Len(t, res.Removed.Nodes, 2)
	assert.Len(t, res.Added.Nodes, 1)
}

func TestMerge_SubtractRemovesWeaklyConnectedNodes(t *testing.T) {
	// Hub H connects to A, B, C via "treats". Subtracting H–A and naming A
	// and H: A drops to degree 0 and goes; H keeps two "treats" edges.
	live := Snapshot{
		Nodes: []Node{node("H::h"), node("A::a"), node("B::b"), node("C::c")},
		Edges: []Edge{
			edge("H::h", "treats", "A::a"),
			edge("H::h", "treats", "B::b"),
			edge("H::h", "treats", "C::c"),
		},
	}
	incoming := Snapshot{
		Nodes: []Node{node("H::h"), node("A::a")},
		Edges: []Edge{edge("H::h", "treats", "A::a")},
	}
	res, err := Merge(live, incoming, MergeSubtract)
	require.NoError(t, err)
	assert.Equal(t, []string{"H::h", "B::b", "C::c"}, res.Merged.NodeIDs())
	assert.Len(t, res.Merged.Edges, 2)
	assert.True(t, res.Pushes(), "edge removal must warrant history")
}

func TestMerge_SubtractCountsOnlyIncomingRelationTypes(t *testing.T) {
	live := Snapshot{
		Nodes: []Node{node("H::h"), node("A::a"), node("B::b"), node("C::c")},
		Edges: []Edge{
			edge("H::h", "treats", "A::a"),
			edge("H::h", "treats", "B::b"),
			edge("H::h", "causes", "C::c"),
		},
	}
	incoming := Snapshot{
		Nodes: []Node{node("H::h"), node("A::a")},
		Edges: []Edge{edge("H::h", "treats", "A::a")},
	}
	res, err := Merge(live, incoming, MergeSubtract)
	require.NoError(t, err)
	// H has one remaining "treats" edge; the "causes" edge does not count.
	assert.Equal(t, []string{"B::b", "C::c"}, res.Merged.NodeIDs())
	assert.Empty(t, res.Merged.Edges)
}

func TestMerge_UnknownMode(t *testing.T) {
	_, err := Merge(Snapshot{}, Snapshot{}, MergeMode("xor"))
	assert.ErrorIs(t, err, ErrUnknownMergeMode)
}
