package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vyuha/vyuha-lens/internal/metrics"
)

var (
	ErrAlreadyRunning = errors.New("feed: already running for session")
	ErrNotRunning     = errors.New("feed: not running for session")
)

// Registry keeps at most one tailer per session.
type Registry struct {
	mu      sync.Mutex
	tailers map[string]*Tailer
	metrics *metrics.Collector
	opts    TailerOptions
}

// NewRegistry returns an empty registry. opts supplies the defaults for
// every tailer it starts; m may be nil.
func NewRegistry(opts TailerOptions, m *metrics.Collector) *Registry {
	return &Registry{tailers: make(map[string]*Tailer), metrics: m, opts: opts}
}

// Start begins tailing path for sessionID, submitting lines to handler.
// The tailer runs until Stop, StopAll or ctx is cancelled.
func (r *Registry) Start(ctx context.Context, sessionID, path string, fromStart bool, handler Handler) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tailers[sessionID]; ok && t.Status().Active {
		return Status{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, sessionID)
	}
	opts := r.opts
	opts.FromStart = fromStart
	t := NewTailer(path, NewIngestor(handler, r.metrics), opts)
	if err := t.Start(ctx); err != nil {
		return Status{}, err
	}
	r.tailers[sessionID] = t
	return t.Status(), nil
}

// Stop stops the tailer of a session.
func (r *Registry) Stop(sessionID string) (Status, error) {
	r.mu.Lock()
	t, ok := r.tailers[sessionID]
	delete(r.tailers, sessionID)
	r.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrNotRunning, sessionID)
	}
	t.Stop()
	return t.Status(), nil
}

// Status reports the tailer of a session.
func (r *Registry) Status(sessionID string) (Status, error) {
	r.mu.Lock()
	t, ok := r.tailers[sessionID]
	r.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrNotRunning, sessionID)
	}
	return t.Status(), nil
}

// StopAll stops every tailer.
func (r *Registry) StopAll() {
	r.mu.Lock()
	all := r.tailers
	r.tailers = make(map[string]*Tailer)
	r.mu.Unlock()
	for _, t := range all {
		t.Stop()
	}
}
