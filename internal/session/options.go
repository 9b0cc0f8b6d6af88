package session

import (
	"time"

	"github.com/vyuha/vyuha-lens/internal/history"
	"github.com/vyuha/vyuha-lens/internal/layout"
	"github.com/vyuha/vyuha-lens/internal/pathfind"
)

// Options tune a session. Zero values fall back to the defaults below.
type Options struct {
	HistoryDepth     int
	PositionedRatio  float64
	PlacementRadius  float64
	PathMaxDepth     int
	BFSEdgeThreshold int
	SaveDebounce     time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		HistoryDepth:     history.DefaultMaxDepth,
		PositionedRatio:  0.8,
		PlacementRadius:  layout.DefaultRadius,
		PathMaxDepth:     pathfind.DefaultMaxDepth,
		BFSEdgeThreshold: pathfind.DefaultBFSEdgeThreshold,
		SaveDebounce:     2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HistoryDepth <= 0 {
		o.HistoryDepth = d.HistoryDepth
	}
	if o.PositionedRatio <= 0 || o.PositionedRatio > 1 {
		o.PositionedRatio = d.PositionedRatio
	}
	if o.PlacementRadius <= 0 {
		o.PlacementRadius = d.PlacementRadius
	}
	if o.PathMaxDepth <= 0 {
		o.PathMaxDepth = d.PathMaxDepth
	}
	if o.BFSEdgeThreshold <= 0 {
		o.BFSEdgeThreshold = d.BFSEdgeThreshold
	}
	if o.SaveDebounce < 0 {
		o.SaveDebounce = 0
	}
	return o
}
