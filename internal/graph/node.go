package graph

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

// IDDelimiter separates the node type from the raw id in a composed id.
const IDDelimiter = "::"

// ComposeNodeID returns the canonical identity of a node: "type::id".
// The delimiter is not expected to occur inside either part.
func ComposeNodeID(nodeType, id string) string {
	return nodeType + IDDelimiter + id
}

// ParseNodeID splits a composed id back into its type and raw id.
//
// The split happens on the first delimiter. An id without a delimiter is
// returned whole as the raw id with an empty type; this is a best-effort
// split, not an error.
func ParseNodeID(composed string) (nodeType, id string) {
	i := strings.Index(composed, IDDelimiter)
	if i < 0 {
		return "", composed
	}
	return composed[:i], composed[i+len(IDDelimiter):]
}

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// Node is a vertex of the knowledge graph as the explorer sees it. ID is
// the composed id and never changes for the node's lifetime.
//
// X and Y are the current layout coordinates and FX/FY an optional pin.
// A nil coordinate means the node has not been placed yet.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	X          *float64       `json:"x,omitempty"`
	Y          *float64       `json:"y,omitempty"`
	FX         *float64       `json:"fx,omitempty"`
	FY         *float64       `json:"fy,omitempty"`
}

// NewNode builds a node of the given type, composing its id from rawID.
func NewNode(nodeType, rawID, name string) Node {
	return Node{
		ID:   ComposeNodeID(nodeType, rawID),
		Type: nodeType,
		Name: name,
	}
}

// RawID returns the id part of the composed id.
func (n Node) RawID() string {
	_, id := ParseNodeID(n.ID)
	return id
}

// DisplayName returns the human-readable name, falling back to the
// "name" attribute and finally the raw id.
func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	if v, ok := n.Attributes["name"].(string); ok && v != "" {
		return v
	}
	return n.RawID()
}

// HasPosition reports whether both layout coordinates are set.
func (n Node) HasPosition() bool {
	return n.X != nil && n.Y != nil
}

// Position returns the node's coordinates. Pinned coordinates win over the
// free ones when present.
func (n Node) Position() (x, y float64, ok bool) {
	if n.FX != nil && n.FY != nil {
		return *n.FX, *n.FY, true
	}
	if !n.HasPosition() {
		return 0, 0, false
	}
	return *n.X, *n.Y, true
}

// WithPosition returns a copy of n placed at (x, y). Pins are left alone.
func (n Node) WithPosition(x, y float64) Node {
	c := n.Clone()
	c.X = &x
	c.Y = &y
	return c
}

// Clone returns a deep copy of n so callers never share attribute maps or
// coordinate pointers.
func (n Node) Clone() Node {
	c := n
	c.Attributes = cloneAttributes(n.Attributes)
	c.X = cloneFloat(n.X)
	c.Y = cloneFloat(n.Y)
	c.FX = cloneFloat(n.FX)
	c.FY = cloneFloat(n.FY)
	return c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneAttributes(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Float is a convenience for building coordinate pointers.
func Float(v float64) *float64 { return &v }
