package graph

import "errors"

// Sentinel errors for graph lookups and merges. Missing-element lookups on
// the live index are reported with a boolean, not these errors; they are
// used where a caller asked for a specific element by id.
var (
	ErrNodeNotFound     = errors.New("graph: node not found")
	ErrEdgeNotFound     = errors.New("graph: edge not found")
	ErrComboNotFound    = errors.New("graph: combo not found")
	ErrUnknownMergeMode = errors.New("graph: unknown merge mode")
)
