// Package explain turns a path on the canvas into a question for an LLM
// and runs the resulting explanation jobs in the background.
package explain

import (
	"fmt"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/pathfind"
)

// SubgraphNode is a node stripped down to what the responder needs.
type SubgraphNode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// SubgraphEdge is an edge stripped down to what the responder needs.
type SubgraphEdge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	RelationType string  `json:"relation_type"`
	Description  string  `json:"description,omitempty"`
	Score        float64 `json:"score,omitempty"`
}

// Subgraph is the cleaned view of a path sent for explanation. Layout
// coordinates and free-form attributes are dropped.
type Subgraph struct {
	Nodes []SubgraphNode `json:"nodes"`
	Edges []SubgraphEdge `json:"edges"`
}

// BuildSubgraph extracts the nodes and edges of p from snap. Every node of
// the path must exist. Placeholder edge ids are skipped; any other edge id
// must exist.
func BuildSubgraph(p pathfind.Path, snap graph.Snapshot) (Subgraph, error) {
	nodes := snap.NodeIndex()
	edges := snap.EdgeIndex()

	sub := Subgraph{
		Nodes: make([]SubgraphNode, 0, len(p.Nodes)),
		Edges: make([]SubgraphEdge, 0, len(p.Edges)),
	}
	for _, id := range p.Nodes {
		n, ok := nodes[id]
		if !ok {
			return Subgraph{}, fmt.Errorf("explain: %w: %s", graph.ErrNodeNotFound, id)
		}
		sub.Nodes = append(sub.Nodes, SubgraphNode{
			ID:          n.ID,
			Name:        n.DisplayName(),
			Type:        n.Type,
			Description: stringAttr(n.Attributes, "description"),
		})
	}
	for _, id := range p.Edges {
		if id == "" {
			continue
		}
		e, ok := edges[id]
		if !ok {
			return Subgraph{}, fmt.Errorf("explain: %w: %s", graph.ErrEdgeNotFound, id)
		}
		sub.Edges = append(sub.Edges, SubgraphEdge{
			Source:       e.Source,
			Target:       e.Target,
			RelationType: e.RelationType,
			Description:  stringAttr(e.Attributes, "description"),
			Score:        floatAttr(e.Attributes, "score"),
		})
	}
	return sub, nil
}

func stringAttr(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func floatAttr(attrs map[string]any, key string) float64 {
	switch v := attrs[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
