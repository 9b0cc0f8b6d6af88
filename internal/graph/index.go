package graph

import (
	"log"
	"slices"
	"sync"
)

// ---------------------------------------------------------------------------
// Layout state
// ---------------------------------------------------------------------------

// LayoutMode tells the renderer whether to keep node coordinates or run its
// own layout pass.
type LayoutMode string

const (
	LayoutAuto     LayoutMode = "auto"
	LayoutPreserve LayoutMode = "preserve"
)

// LayoutState is the viewport and layout configuration of a canvas.
// Matrix is the 3x3 view transform in column-major order; translation
// lives at indices 6 and 7.
type LayoutState struct {
	Width   float64        `json:"width"`
	Height  float64        `json:"height"`
	Matrix  [9]float64     `json:"matrix"`
	Type    string         `json:"type,omitempty"`
	Options map[string]any `json:"options,omitempty"`
	Mode    LayoutMode     `json:"mode"`
}

// IdentityMatrix returns the 3x3 identity transform.
func IdentityMatrix() [9]float64 {
	return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// DefaultLayout returns a layout in auto mode with an identity transform.
func DefaultLayout() LayoutState {
	return LayoutState{Matrix: IdentityMatrix(), Mode: LayoutAuto}
}

// Clone returns a copy that shares nothing with l.
func (l LayoutState) Clone() LayoutState {
	c := l
	c.Options = cloneAttributes(l.Options)
	return c
}

// ---------------------------------------------------------------------------
// Combos and selection
// ---------------------------------------------------------------------------

// Combo is a grouping container on the canvas. Combos nest through ParentID;
// an empty ParentID is the root.
type Combo struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Label    string `json:"label,omitempty"`
}

// ComboChange moves a combo under a new parent.
type ComboChange struct {
	ComboID  string `json:"combo_id"`
	ParentID string `json:"parent_id"`
}

// SelectionKind distinguishes node selection from edge selection.
type SelectionKind string

const (
	SelectNodes SelectionKind = "nodes"
	SelectEdges SelectionKind = "edges"
)

// EdgeStyleFlow marks edges that were just added so the renderer can
// animate them.
const EdgeStyleFlow = "flow"

// ---------------------------------------------------------------------------
// IndexStats
// ---------------------------------------------------------------------------

// IndexStats summarises the contents of the live graph index.
type IndexStats struct {
	TotalNodes    int            `json:"total_nodes"`
	TotalEdges    int            `json:"total_edges"`
	NodesByType   map[string]int `json:"nodes_by_type"`
	EdgesByType   map[string]int `json:"edges_by_type"`
	HiddenCount   int            `json:"hidden_count"`
	SelectedNodes int            `json:"selected_nodes"`
	SelectedEdges int            `json:"selected_edges"`
	Combos        int            `json:"combos"`
	Positioned    int            `json:"positioned"`
}

// ---------------------------------------------------------------------------
// GraphIndex
// ---------------------------------------------------------------------------

// GraphIndex is an in-memory mirror of what the renderer currently shows:
// elements with their coordinates, visibility, selection, combos, edge
// styles and the viewport. The session tells the index everything it tells
// the renderer, so reads from the index answer "what is on screen".
//
// Lookups of missing elements are not errors; they return false.
//
// All public methods are goroutine-safe.
type GraphIndex struct {
	mu         sync.RWMutex
	nodes      map[string]Node     // id → node
	nodeOrder  []string            // insertion order
	edges      map[string]Edge     // id → edge
	edgeOrder  []string            // insertion order
	outEdges   map[string][]string // source_id → []edge_ids
	inEdges    map[string][]string // target_id → []edge_ids
	byType     map[string][]string // type → []node_ids
	hidden     map[string]bool     // element id → hidden
	selNodes   map[string]bool
	selEdges   map[string]bool
	combos     map[string]Combo
	comboOrder []string
	edgeStyles map[string]string // edge id → transient style
	layout     LayoutState
}

// NewGraphIndex returns an empty, initialised GraphIndex ready for use.
func NewGraphIndex() *GraphIndex {
	g := &GraphIndex{layout: DefaultLayout()}
	g.resetElementsLocked()
	g.hidden = make(map[string]bool)
	g.selNodes = make(map[string]bool)
	g.selEdges = make(map[string]bool)
	g.combos = make(map[string]Combo)
	g.edgeStyles = make(map[string]string)
	return g
}

func (g *GraphIndex) resetElementsLocked() {
	g.nodes = make(map[string]Node)
	g.nodeOrder = nil
	g.edges = make(map[string]Edge)
	g.edgeOrder = nil
	g.outEdges = make(map[string][]string)
	g.inEdges = make(map[string][]string)
	g.byType = make(map[string][]string)
}

// ============================= LOADING ====================================

// Load bulk-loads a persisted snapshot and viewport, discarding everything
// the index held before.
func (g *GraphIndex) Load(snap Snapshot, layout LayoutState) {
	snap, _ = snap.Sanitize()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetElementsLocked()
	g.hidden = make(map[string]bool)
	g.selNodes = make(map[string]bool)
	g.selEdges = make(map[string]bool)
	g.edgeStyles = make(map[string]string)
	for _, n := range snap.Nodes {
		g.indexNodeLocked(n)
	}
	for _, e := range snap.Edges {
		g.indexEdgeLocked(e)
	}
	g.layout = layout.Clone()

	log.Printf("graph-index: loaded %d nodes, %d edges", len(snap.Nodes), len(snap.Edges))
}

// ChangeData replaces the whole dataset. Visibility, selection and edge
// styles survive for ids that still exist; combos and the viewport are
// untouched.
func (g *GraphIndex) ChangeData(snap Snapshot) {
	snap, _ = snap.Sanitize()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetElementsLocked()
	for _, n := range snap.Nodes {
		g.indexNodeLocked(n)
	}
	for _, e := range snap.Edges {
		g.indexEdgeLocked(e)
	}
	g.pruneStateLocked()
}

// indexNodeLocked inserts a node into every secondary map.
// Caller MUST hold g.mu write lock.
func (g *GraphIndex) indexNodeLocked(n Node) {
	if _, ok := g.nodes[n.ID]; !ok {
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}
	g.nodes[n.ID] = n.Clone()
	g.byType[n.Type] = append(g.byType[n.Type], n.ID)
}

// indexEdgeLocked inserts an edge into outEdges and inEdges.
// Caller MUST hold g.mu write lock.
func (g *GraphIndex) indexEdgeLocked(e Edge) {
	if _, ok := g.edges[e.ID]; !ok {
		g.edgeOrder = append(g.edgeOrder, e.ID)
	}
	g.edges[e.ID] = e.Clone()
	g.outEdges[e.Source] = append(g.outEdges[e.Source], e.ID)
	g.inEdges[e.Target] = append(g.inEdges[e.Target], e.ID)
}

// pruneStateLocked drops canvas state that refers to elements no longer
// present. Caller MUST hold g.mu write lock.
func (g *GraphIndex) pruneStateLocked() {
	for id := range g.hidden {
		if !g.hasElementLocked(id) {
			delete(g.hidden, id)
		}
	}
	for id := range g.selNodes {
		if _, ok := g.nodes[id]; !ok {
			delete(g.selNodes, id)
		}
	}
	for id := range g.selEdges {
		if _, ok := g.edges[id]; !ok {
			delete(g.selEdges, id)
		}
	}
	for id := range g.edgeStyles {
		if _, ok := g.edges[id]; !ok {
			delete(g.edgeStyles, id)
		}
	}
}

// ============================ MUTATIONS ==================================

// AddNode adds (or replaces) a node in the index.
func (g *GraphIndex) AddNode(n Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.nodes[n.ID]; ok {
		removeIDFromSlice(g.byType, old.Type, old.ID)
	}
	g.indexNodeLocked(n)
}

// AddEdge adds an edge whose endpoints are both present. It returns false
// when an endpoint is missing or the edge already exists.
func (g *GraphIndex) AddEdge(e Edge) bool {
	if e.ID == "" {
		e.ID = ComposeEdgeID(e.Source, e.RelationType, e.Target)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.edges[e.ID]; ok {
		return false
	}
	if _, ok := g.nodes[e.Source]; !ok {
		return false
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return false
	}
	g.indexEdgeLocked(e)
	return true
}

// RemoveElement removes the node or edge with the given id. Removing a node
// also removes its incident edges. It returns false when nothing matched.
func (g *GraphIndex) RemoveElement(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; ok {
		g.removeNodeLocked(id)
		g.pruneStateLocked()
		return true
	}
	if _, ok := g.edges[id]; ok {
		g.removeEdgeLocked(id)
		g.pruneStateLocked()
		return true
	}
	return false
}

func (g *GraphIndex) removeNodeLocked(id string) {
	n := g.nodes[id]
	for _, eid := range slices.Clone(g.outEdges[id]) {
		g.removeEdgeLocked(eid)
	}
	for _, eid := range slices.Clone(g.inEdges[id]) {
		g.removeEdgeLocked(eid)
	}
	removeIDFromSlice(g.byType, n.Type, id)
	delete(g.nodes, id)
	g.nodeOrder = removeID(g.nodeOrder, id)
}

func (g *GraphIndex) removeEdgeLocked(id string) {
	e, ok := g.edges[id]
	if !ok {
		return
	}
	removeIDFromSlice(g.outEdges, e.Source, id)
	removeIDFromSlice(g.inEdges, e.Target, id)
	delete(g.edges, id)
	g.edgeOrder = removeID(g.edgeOrder, id)
}

// UpdateNode applies attributes, name and coordinates from n to the node
// with the same id. Nil coordinates and empty fields leave the current
// value in place. It returns false when the node does not exist.
func (g *GraphIndex) UpdateNode(n Node) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, ok := g.nodes[n.ID]
	if !ok {
		return false
	}
	if n.Name != "" {
		cur.Name = n.Name
	}
	if len(n.Attributes) > 0 {
		if cur.Attributes == nil {
			cur.Attributes = make(map[string]any, len(n.Attributes))
		}
		for k, v := range n.Attributes {
			cur.Attributes[k] = v
		}
	}
	if n.X != nil {
		cur.X = cloneFloat(n.X)
	}
	if n.Y != nil {
		cur.Y = cloneFloat(n.Y)
	}
	if n.FX != nil {
		cur.FX = cloneFloat(n.FX)
	}
	if n.FY != nil {
		cur.FY = cloneFloat(n.FY)
	}
	g.nodes[n.ID] = cur
	return true
}

// UpdateEdge applies attributes from e to the edge with the same id.
// It returns false when the edge does not exist.
func (g *GraphIndex) UpdateEdge(e Edge) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, ok := g.edges[e.ID]
	if !ok {
		return false
	}
	if len(e.Attributes) > 0 {
		if cur.Attributes == nil {
			cur.Attributes = make(map[string]any, len(e.Attributes))
		}
		for k, v := range e.Attributes {
			cur.Attributes[k] = v
		}
	}
	g.edges[e.ID] = cur
	return true
}

// ReplaceNode overwrites the name, attributes and coordinates of the node
// with n's id, including fields n leaves empty. The type is kept. It
// returns false when the node does not exist.
func (g *GraphIndex) ReplaceNode(n Node) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, ok := g.nodes[n.ID]
	if !ok {
		return false
	}
	c := n.Clone()
	c.Type = cur.Type
	g.nodes[n.ID] = c
	return true
}

// ReplaceEdge overwrites the attributes of the edge with e's id. Endpoints
// are part of the id and stay as they are. It returns false when the edge
// does not exist.
func (g *GraphIndex) ReplaceEdge(e Edge) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, ok := g.edges[e.ID]
	if !ok {
		return false
	}
	cur.Attributes = e.Clone().Attributes
	g.edges[e.ID] = cur
	return true
}

// SetVisible shows or hides a node or edge. It returns false when the id is
// not on the canvas.
func (g *GraphIndex) SetVisible(id string, visible bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasElementLocked(id) {
		return false
	}
	if visible {
		delete(g.hidden, id)
	} else {
		g.hidden[id] = true
	}
	return true
}

// SetSelection replaces the selected set of the given kind. Unknown ids are
// ignored.
func (g *GraphIndex) SetSelection(kind SelectionKind, ids []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sel := make(map[string]bool, len(ids))
	for _, id := range ids {
		switch kind {
		case SelectNodes:
			if _, ok := g.nodes[id]; ok {
				sel[id] = true
			}
		case SelectEdges:
			if _, ok := g.edges[id]; ok {
				sel[id] = true
			}
		}
	}
	if kind == SelectEdges {
		g.selEdges = sel
	} else {
		g.selNodes = sel
	}
}

// SetEdgeStyle assigns a transient style to an existing edge.
func (g *GraphIndex) SetEdgeStyle(id, style string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.edges[id]; !ok {
		return false
	}
	g.edgeStyles[id] = style
	return true
}

// ClearEdgeStyles removes every transient edge style.
func (g *GraphIndex) ClearEdgeStyles() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edgeStyles = make(map[string]string)
}

// SetLayout replaces the viewport and layout configuration.
func (g *GraphIndex) SetLayout(l LayoutState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.layout = l.Clone()
}

// SetLayoutMode switches between auto and preserve. Switching to auto
// resets the transform to identity.
func (g *GraphIndex) SetLayoutMode(mode LayoutMode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.layout.Mode = mode
	if mode == LayoutAuto {
		g.layout.Matrix = IdentityMatrix()
	}
}

// AddCombo adds (or replaces) a combo.
func (g *GraphIndex) AddCombo(c Combo) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.combos[c.ID]; !ok {
		g.comboOrder = append(g.comboOrder, c.ID)
	}
	g.combos[c.ID] = c
}

// UpdateComboParent moves comboID under parentID ("" for the root). It
// returns false, changing nothing, when either combo is unknown or the move
// would create a cycle.
func (g *GraphIndex) UpdateComboParent(comboID, parentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.combos[comboID]
	if !ok {
		return false
	}
	if parentID != "" {
		if _, ok := g.combos[parentID]; !ok {
			return false
		}
		// Walk up from the new parent; meeting comboID means a cycle.
		for cur := parentID; cur != ""; cur = g.combos[cur].ParentID {
			if cur == comboID {
				return false
			}
		}
	}
	c.ParentID = parentID
	g.combos[comboID] = c
	return true
}

// ======================== LOOKUPS =========================================

// GetNode returns the node with the given ID and true, or the zero node and
// false if not found.
func (g *GraphIndex) GetNode(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// GetEdge returns the edge with the given ID.
func (g *GraphIndex) GetEdge(id string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	if !ok {
		return Edge{}, false
	}
	return e.Clone(), true
}

// HasElement reports whether a node or edge with id is on the canvas.
func (g *GraphIndex) HasElement(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasElementLocked(id)
}

func (g *GraphIndex) hasElementLocked(id string) bool {
	if _, ok := g.nodes[id]; ok {
		return true
	}
	_, ok := g.edges[id]
	return ok
}

// NodePosition returns the current coordinates of a node. ok is false when
// the node is missing or unplaced.
func (g *GraphIndex) NodePosition(id string) (x, y float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, found := g.nodes[id]
	if !found {
		return 0, 0, false
	}
	return n.Position()
}

// Center returns the graph-space point at the middle of the viewport. When
// the viewport size is unknown the centroid of placed nodes is used, and
// (0, 0) when nothing is placed.
func (g *GraphIndex) Center() (x, y float64) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.layout.Width > 0 && g.layout.Height > 0 {
		m := g.layout.Matrix
		sx, sy := m[0], m[4]
		if sx == 0 {
			sx = 1
		}
		if sy == 0 {
			sy = 1
		}
		return (g.layout.Width/2 - m[6]) / sx, (g.layout.Height/2 - m[7]) / sy
	}

	var sumX, sumY float64
	count := 0
	for _, n := range g.nodes {
		if px, py, ok := n.Position(); ok {
			sumX += px
			sumY += py
			count++
		}
	}
	if count == 0 {
		return 0, 0
	}
	return sumX / float64(count), sumY / float64(count)
}

// IsHidden reports whether id is currently hidden.
func (g *GraphIndex) IsHidden(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hidden[id]
}

// HiddenIDs returns the hidden element ids, sorted.
func (g *GraphIndex) HiddenIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.hidden)
}

// Selection returns the selected ids of the given kind, sorted.
func (g *GraphIndex) Selection(kind SelectionKind) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if kind == SelectEdges {
		return sortedKeys(g.selEdges)
	}
	return sortedKeys(g.selNodes)
}

// EdgeStyles returns a copy of the transient edge styles.
func (g *GraphIndex) EdgeStyles() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.edgeStyles))
	for k, v := range g.edgeStyles {
		out[k] = v
	}
	return out
}

// Layout returns a copy of the current layout state.
func (g *GraphIndex) Layout() LayoutState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.layout.Clone()
}

// Combos returns all combos in insertion order.
func (g *GraphIndex) Combos() []Combo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Combo, 0, len(g.comboOrder))
	for _, id := range g.comboOrder {
		out = append(out, g.combos[id])
	}
	return out
}

// GetEdgesBetween returns all edges where both source and target are in
// nodeIDs.  Uses a set for O(1) membership checks.
func (g *GraphIndex) GetEdgesBetween(nodeIDs []string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		set[id] = true
	}

	var result []Edge
	for _, id := range nodeIDs {
		for _, eid := range g.outEdges[id] {
			e := g.edges[eid]
			if set[e.Target] {
				result = append(result, e.Clone())
			}
		}
	}
	return result
}

// MultipleEdges returns the sorted ids of edges that share their endpoint
// pair with at least one other edge.
func (g *GraphIndex) MultipleEdges() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	byPair := make(map[Pair][]string)
	for id, e := range g.edges {
		byPair[e.Pair()] = append(byPair[e.Pair()], id)
	}
	multi := make(map[string]bool)
	for _, ids := range byPair {
		if len(ids) > 1 {
			for _, id := range ids {
				multi[id] = true
			}
		}
	}
	return sortedKeys(multi)
}

// Snapshot returns a deep copy of the displayed nodes and edges in
// insertion order.
func (g *GraphIndex) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{
		Nodes: make([]Node, 0, len(g.nodeOrder)),
		Edges: make([]Edge, 0, len(g.edgeOrder)),
	}
	for _, id := range g.nodeOrder {
		s.Nodes = append(s.Nodes, g.nodes[id].Clone())
	}
	for _, id := range g.edgeOrder {
		s.Edges = append(s.Edges, g.edges[id].Clone())
	}
	return s
}

// ============================== STATS ====================================

// NodeCount returns the total number of nodes in the index.
func (g *GraphIndex) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the total number of edges in the index.
func (g *GraphIndex) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Stats returns a full IndexStats snapshot.
func (g *GraphIndex) Stats() IndexStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodesByType := make(map[string]int, len(g.byType))
	for t, ids := range g.byType {
		nodesByType[t] = len(ids)
	}

	edgesByType := make(map[string]int)
	for _, e := range g.edges {
		edgesByType[e.RelationType]++
	}

	positioned := 0
	for _, n := range g.nodes {
		if n.HasPosition() {
			positioned++
		}
	}

	return IndexStats{
		TotalNodes:    len(g.nodes),
		TotalEdges:    len(g.edges),
		NodesByType:   nodesByType,
		EdgesByType:   edgesByType,
		HiddenCount:   len(g.hidden),
		SelectedNodes: len(g.selNodes),
		SelectedEdges: len(g.selEdges),
		Combos:        len(g.combos),
		Positioned:    positioned,
	}
}

// ---------------------------------------------------------------------------
// Slice-removal helpers
// ---------------------------------------------------------------------------

func removeIDFromSlice(m map[string][]string, key, id string) {
	ids := removeID(m[key], id)
	if len(ids) == 0 {
		delete(m, key)
		return
	}
	m[key] = ids
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
