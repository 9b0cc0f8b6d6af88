package session

import (
	"context"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
)

// NodeView is a node as the renderer should draw it.
type NodeView struct {
	graph.Node
	Hidden   bool `json:"hidden,omitempty"`
	Selected bool `json:"selected,omitempty"`
}

// EdgeView is an edge as the renderer should draw it. Multiple is set when
// another edge joins the same pair of nodes.
type EdgeView struct {
	graph.Edge
	Hidden   bool   `json:"hidden,omitempty"`
	Selected bool   `json:"selected,omitempty"`
	Multiple bool   `json:"multiple,omitempty"`
	Style    string `json:"style,omitempty"`
}

// View is everything a renderer needs to draw the canvas.
type View struct {
	SessionID  string            `json:"session_id"`
	Generation uint64            `json:"generation"`
	Phase      string            `json:"phase"`
	Nodes      []NodeView        `json:"nodes"`
	Edges      []EdgeView        `json:"edges"`
	Combos     []graph.Combo     `json:"combos"`
	Layout     graph.LayoutState `json:"layout"`
	History    history.State     `json:"history"`
	Stats      graph.IndexStats  `json:"stats"`
}

// View renders the canvas. It waits for in-flight mutations so the result
// is consistent.
func (s *Session) View(ctx context.Context) (View, error) {
	if err := s.lock(ctx); err != nil {
		return View{}, err
	}
	defer s.unlock()

	snap := s.index.Snapshot()
	selNodes := toSet(s.index.Selection(graph.SelectNodes))
	selEdges := toSet(s.index.Selection(graph.SelectEdges))
	multiple := toSet(s.index.MultipleEdges())
	styles := s.index.EdgeStyles()

	v := View{
		SessionID:  s.id,
		Generation: s.generation.Load(),
		Phase:      s.Phase().String(),
		Nodes:      make([]NodeView, len(snap.Nodes)),
		Edges:      make([]EdgeView, len(snap.Edges)),
		Combos:     s.index.Combos(),
		Layout:     s.index.Layout(),
		History:    s.stack.State(),
		Stats:      s.index.Stats(),
	}
	for i, n := range snap.Nodes {
		v.Nodes[i] = NodeView{Node: n, Hidden: s.index.IsHidden(n.ID), Selected: selNodes[n.ID]}
	}
	for i, e := range snap.Edges {
		v.Edges[i] = EdgeView{
			Edge:     e,
			Hidden:   s.index.IsHidden(e.ID),
			Selected: selEdges[e.ID],
			Multiple: multiple[e.ID],
			Style:    styles[e.ID],
		}
	}
	return v, nil
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
