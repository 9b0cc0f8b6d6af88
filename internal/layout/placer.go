// Package layout fills in coordinates for nodes that arrive without them.
// It never runs a layout algorithm of its own: positioned nodes are left
// exactly where they are.
package layout

import (
	"math"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
)

// DefaultRadius is the arc radius used around the anchor.
const DefaultRadius = 200.0

// Handle is the read side of the live canvas.
type Handle interface {
	NodePosition(id string) (x, y float64, ok bool)
	Center() (x, y float64)
}

// Position represents a 2D coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Placer spreads new nodes on a half circle around an anchor.
type Placer struct {
	Radius float64
}

// NewPlacer returns a Placer. A non-positive radius means DefaultRadius.
func NewPlacer(radius float64) *Placer {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return &Placer{Radius: radius}
}

// PlacementResult holds copies of the added nodes with coordinates filled
// in, plus the edges to draw with the transient flow style.
type PlacementResult struct {
	Nodes     []graph.Node `json:"nodes"`
	Anchor    Position     `json:"anchor"`
	AnchorID  string       `json:"anchor_id,omitempty"`
	FlowEdges []string     `json:"flow_edges"`
}

// PlaceNewNodes positions the added nodes that lack coordinates.
//
// The anchor is the endpoint occurring most often among addedEdges (ties go
// to the endpoint seen first), at its position on the canvas or, failing
// that, in merged. Without added edges, or when the anchor itself has no
// position, the canvas center is used. Unplaced nodes are spread over a
// 180° arc at angle i*180/(count-1); a single unplaced node sits on the
// anchor. Inputs are not modified.
func (p *Placer) PlaceNewNodes(added []graph.Node, addedEdges []graph.Edge, merged graph.Snapshot, h Handle) PlacementResult {
	res := PlacementResult{
		Nodes:     make([]graph.Node, len(added)),
		FlowEdges: make([]string, 0, len(addedEdges)),
	}
	for _, e := range addedEdges {
		res.FlowEdges = append(res.FlowEdges, e.ID)
	}

	res.AnchorID = modeEndpoint(addedEdges)
	res.Anchor = p.anchorPosition(res.AnchorID, merged, h)

	unplaced := 0
	for _, n := range added {
		if !n.HasPosition() {
			unplaced++
		}
	}

	i := 0
	for k, n := range added {
		if n.HasPosition() {
			res.Nodes[k] = n.Clone()
			continue
		}
		x, y := p.arcPoint(res.Anchor, i, unplaced)
		res.Nodes[k] = n.WithPosition(x, y)
		i++
	}
	return res
}

func (p *Placer) arcPoint(anchor Position, i, count int) (float64, float64) {
	if count <= 1 {
		return anchor.X, anchor.Y
	}
	radius := p.Radius
	if radius <= 0 {
		radius = DefaultRadius
	}
	angle := float64(i) * (180.0 / float64(count-1))
	rad := angle * math.Pi / 180
	return anchor.X + radius*math.Cos(rad), anchor.Y + radius*math.Sin(rad)
}

func (p *Placer) anchorPosition(anchorID string, merged graph.Snapshot, h Handle) Position {
	if anchorID != "" {
		if x, y, ok := h.NodePosition(anchorID); ok {
			return Position{X: x, Y: y}
		}
		for _, n := range merged.Nodes {
			if n.ID != anchorID {
				continue
			}
			if x, y, ok := n.Position(); ok {
				return Position{X: x, Y: y}
			}
			break
		}
	}
	x, y := h.Center()
	return Position{X: x, Y: y}
}

// modeEndpoint returns the node id appearing most often as an endpoint of
// edges. Self-loops count once per end. Ties resolve to first occurrence.
func modeEndpoint(edges []graph.Edge) string {
	counts := make(map[string]int)
	var order []string
	bump := func(id string) {
		if _, ok := counts[id]; !ok {
			order = append(order, id)
		}
		counts[id]++
	}
	for _, e := range edges {
		bump(e.Source)
		bump(e.Target)
	}

	best, bestCount := "", 0
	for _, id := range order {
		if counts[id] > bestCount {
			best, bestCount = id, counts[id]
		}
	}
	return best
}

// Apply substitutes the placed nodes into snap by id and returns the
// result as a new snapshot.
func (r PlacementResult) Apply(snap graph.Snapshot) graph.Snapshot {
	placed := make(map[string]graph.Node, len(r.Nodes))
	for _, n := range r.Nodes {
		placed[n.ID] = n
	}
	out := snap.Clone()
	for i, n := range out.Nodes {
		if pn, ok := placed[n.ID]; ok {
			out.Nodes[i] = pn.Clone()
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Position fixing
// ---------------------------------------------------------------------------

// FixSnapshot returns s with every unplaced node given its current canvas
// position, or (0, 0) when the node is not on the canvas.
func FixSnapshot(s graph.Snapshot, h Handle) graph.Snapshot {
	out := s.Clone()
	for i, n := range out.Nodes {
		if n.HasPosition() {
			continue
		}
		x, y, ok := h.NodePosition(n.ID)
		if !ok {
			x, y = 0, 0
		}
		out.Nodes[i] = n.WithPosition(x, y)
	}
	return out
}

// FixPositions applies FixSnapshot to the snapshot carried by p, if any.
// Other payload kinds are returned unchanged.
func FixPositions(p history.Payload, h Handle) history.Payload {
	if p.Snapshot == nil {
		return p
	}
	fixed := FixSnapshot(*p.Snapshot, h)
	p.Snapshot = &fixed
	return p
}
