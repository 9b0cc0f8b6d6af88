package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleIndex() *GraphIndex {
	g := NewGraphIndex()
	g.Load(Snapshot{
		Nodes: []Node{placed("A::1", 0, 0), placed("B::2", 10, 0), node("C::3")},
		Edges: []Edge{
			{ID: "ab", Source: "A::1", Target: "B::2", RelationType: "r"},
			{ID: "ab2", Source: "B::2", Target: "A::1", RelationType: "s"},
			{ID: "bc", Source: "B::2", Target: "C::3", RelationType: "r"},
		},
	}, DefaultLayout())
	return g
}

func TestGraphIndex_Load(t *testing.T) {
	g := sampleIndex()
	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())

	stats := g.Stats()
	assert.Equal(t, 2, stats.EdgesByType["r"])
	assert.Equal(t, 2, stats.Positioned)
}

func TestGraphIndex_RemoveNodeRemovesIncidentEdges(t *testing.T) {
	g := sampleIndex()
	require.True(t, g.RemoveElement("B::2"))
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
	assert.False(t, g.RemoveElement("B::2"))
}

func TestGraphIndex_AddEdgeNeedsEndpoints(t *testing.T) {
	g := sampleIndex()
	assert.False(t, g.AddEdge(Edge{ID: "ax", Source: "A::1", Target: "X::9"}))
	assert.True(t, g.AddEdge(Edge{ID: "ac", Source: "A::1", Target: "C::3"}))
	assert.False(t, g.AddEdge(Edge{ID: "ac", Source: "A::1", Target: "C::3"}))
}

func TestGraphIndex_UpdateNodeExistingOnly(t *testing.T) {
	g := sampleIndex()
	assert.False(t, g.UpdateNode(placed("Z::0", 1, 1)))

	require.True(t, g.UpdateNode(Node{ID: "C::3", X: Float(3), Y: Float(4)}))
	x, y, ok := g.NodePosition("C::3")
	require.True(t, ok)
	assert.Equal(t, 3.0, x)
	assert.Equal(t, 4.0, y)

	n, _ := g.GetNode("C::3")
	assert.Equal(t, "3", n.Name, "empty update fields keep current value")
}

func TestGraphIndex_VisibilityAndSelectionPrunedOnChangeData(t *testing.T) {
	g := sampleIndex()
	require.True(t, g.SetVisible("C::3", false))
	g.SetSelection(SelectNodes, []string{"A::1", "C::3", "nope"})
	assert.Equal(t, []string{"A::1", "C::3"}, g.Selection(SelectNodes))
	assert.Equal(t, []string{"C::3"}, g.HiddenIDs())

	g.ChangeData(Snapshot{Nodes: []Node{node("A::1")}})
	assert.Empty(t, g.HiddenIDs())
	assert.Equal(t, []string{"A::1"}, g.Selection(SelectNodes))
}

func TestGraphIndex_MultipleEdges(t *testing.T) {
	g := sampleIndex()
	assert.Equal(t, []string{"ab", "ab2"}, g.MultipleEdges())
}

func TestGraphIndex_MultipleEdges_DelimiterInIDs(t *testing.T) {
	// Joined as text, both pairs would read "t::a~t::b~t::c".
	g := NewGraphIndex()
	g.Load(Snapshot{
		Nodes: []Node{node("t::a"), node("t::b~t::c"), node("t::a~t::b"), node("t::c")},
		Edges: []Edge{
			{ID: "e1", Source: "t::a", Target: "t::b~t::c", RelationType: "rel"},
			{ID: "e2", Source: "t::a~t::b", Target: "t::c", RelationType: "rel"},
		},
	}, DefaultLayout())
	assert.Empty(t, g.MultipleEdges())
}

func TestGraphIndex_CenterFromViewport(t *testing.T) {
	g := NewGraphIndex()
	l := DefaultLayout()
	l.Width, l.Height = 800, 600
	l.Matrix[6], l.Matrix[7] = 100, 50
	g.SetLayout(l)

	x, y := g.Center()
	assert.Equal(t, 300.0, x)
	assert.Equal(t, 250.0, y)
}

func TestGraphIndex_CenterFallsBackToCentroid(t *testing.T) {
	g := sampleIndex()
	x, y := g.Center()
	assert.Equal(t, 5.0, x)
	assert.Equal(t, 0.0, y)
}

func TestGraphIndex_LayoutModeAutoResetsMatrix(t *testing.T) {
	g := NewGraphIndex()
	l := DefaultLayout()
	l.Matrix[0] = 2
	l.Mode = LayoutPreserve
	g.SetLayout(l)

	g.SetLayoutMode(LayoutAuto)
	assert.Equal(t, IdentityMatrix(), g.Layout().Matrix)
}

func TestGraphIndex_ComboParentRejectsCycles(t *testing.T) {
	g := NewGraphIndex()
	g.AddCombo(Combo{ID: "outer"})
	g.AddCombo(Combo{ID: "inner", ParentID: "outer"})

	assert.False(t, g.UpdateComboParent("outer", "inner"))
	assert.False(t, g.UpdateComboParent("ghost", "outer"))
	assert.False(t, g.UpdateComboParent("inner", "ghost"))
	assert.True(t, g.UpdateComboParent("inner", ""))
	assert.Equal(t, "", g.Combos()[1].ParentID)
}

func TestGraphIndex_SnapshotIsACopy(t *testing.T) {
	g := sampleIndex()
	s := g.Snapshot()
	s.Nodes[0].Name = "mutated"
	n, _ := g.GetNode("A::1")
	assert.Equal(t, "1", n.Name)
}
