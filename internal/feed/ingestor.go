package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vyuha/vyuha-lens/internal/metrics"
)

// Handler applies one feed line, typically by reconciling it into a
// session.
type Handler func(ctx context.Context, l Line) error

// Ingestor serializes lines from any number of sources through a Handler
// and counts the ones that were applied.
type Ingestor struct {
	handler Handler
	metrics *metrics.Collector
	mu      sync.Mutex
	count   atomic.Int64
}

// NewIngestor creates an Ingestor that delegates to handler. m may be nil.
func NewIngestor(handler Handler, m *metrics.Collector) *Ingestor {
	return &Ingestor{handler: handler, metrics: m}
}

// Submit applies a line. It is safe for concurrent use.
func (ing *Ingestor) Submit(ctx context.Context, l Line) error {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	err := ing.handler(ctx, l)
	ing.metrics.ObserveFeedSnapshot(err)
	if err != nil {
		return err
	}
	ing.count.Add(1)
	return nil
}

// Applied returns the number of lines applied successfully.
func (ing *Ingestor) Applied() int64 {
	return ing.count.Load()
}
