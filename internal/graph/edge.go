package graph

// ---------------------------------------------------------------------------
// Edge
// ---------------------------------------------------------------------------

// Edge is a typed relation between two nodes. The ID is unique per
// (source, relation type, target) triple.
//
// Source and Target are directional labels only: adjacency and path search
// treat edges as undirected.
type Edge struct {
	ID           string         `json:"id"`
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	RelationType string         `json:"relation_type"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// ComposeEdgeID returns the relation id for a (source, relation, target)
// triple.
func ComposeEdgeID(source, relationType, target string) string {
	return source + "|" + relationType + "|" + target
}

// NewEdge creates an edge with its relation id derived from the triple.
func NewEdge(source, relationType, target string) Edge {
	return Edge{
		ID:           ComposeEdgeID(source, relationType, target),
		Source:       source,
		Target:       target,
		RelationType: relationType,
	}
}

// Connects reports whether e joins a and b in either direction.
func (e Edge) Connects(a, b string) bool {
	return (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a)
}

// Other returns the endpoint opposite to id. For a self-loop it returns id.
func (e Edge) Other(id string) string {
	if e.Source == id {
		return e.Target
	}
	return e.Source
}

// IsSelfLoop reports whether both endpoints are the same node.
func (e Edge) IsSelfLoop() bool {
	return e.Source == e.Target
}

// Pair is an unordered endpoint pair with A <= B. It is a map key; ids are
// never joined into a string, so any id text is safe.
type Pair struct {
	A, B string
}

// Pair returns the unordered endpoint pair of e. Edges sharing a Pair are
// rendered as "multiple".
func (e Edge) Pair() Pair {
	if e.Source <= e.Target {
		return Pair{A: e.Source, B: e.Target}
	}
	return Pair{A: e.Target, B: e.Source}
}

// Clone returns a deep copy of e.
func (e Edge) Clone() Edge {
	c := e
	c.Attributes = cloneAttributes(e.Attributes)
	return c
}
