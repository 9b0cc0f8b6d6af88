// Package session owns one exploration canvas: the graph index mirroring
// the renderer, the undo/redo history and the reconciliation state machine
// that folds incoming snapshots into the live graph.
//
// Every mutating operation on a Session is serialized. Reads of the data
// snapshot (path queries, persistence) go through an immutable copy that is
// republished after each mutation and tagged with a generation number.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
	"github.com/vyuha/vyuha-lens/internal/layout"
	"github.com/vyuha/vyuha-lens/internal/metrics"
	"github.com/vyuha/vyuha-lens/internal/storage"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Publisher fans session events out to connected clients.
type Publisher interface {
	Publish(event string, data any)
}

// Store persists session state.
type Store interface {
	SaveSessionState(ctx context.Context, st storage.SessionState) error
	LoadSessionState(ctx context.Context, id string) (*storage.SessionState, error)
	ListSessions(ctx context.Context) ([]storage.SessionSummary, error)
	DeleteSessionState(ctx context.Context, id string) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// Event names published by a session.
const (
	EventGraphChanged     = "graph:changed"
	EventSelectionChanged = "selection:changed"
	EventLayoutChanged    = "layout:changed"
	EventHistoryChanged   = "history:changed"
	EventSessionDeleted   = "session:deleted"
)

// ---------------------------------------------------------------------------
// Phase
// ---------------------------------------------------------------------------

// Phase is the current step of the reconcile state machine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseDiffing
	PhaseHistoryRecording
	PhaseLayoutModeSelect
	PhaseDataApplied
	PhasePositionReconciled
)

func (p Phase) String() string {
	switch p {
	case PhaseDiffing:
		return "diffing"
	case PhaseHistoryRecording:
		return "history_recording"
	case PhaseLayoutModeSelect:
		return "layout_mode_select"
	case PhaseDataApplied:
		return "data_applied"
	case PhasePositionReconciled:
		return "position_reconciled"
	default:
		return "idle"
	}
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// liveData is the immutable data snapshot readers work against.
type liveData struct {
	snap       graph.Snapshot
	generation uint64
}

type pendingEvent struct {
	name string
	data any
}

// ReconcileHook runs at the end of a successful Reconcile, before the
// session is released. Calling back into the same session with the hook's
// context fails with ErrReconcileInFlight.
type ReconcileHook func(ctx context.Context, res ReconcileResult)

// Session is a single canvas with its own history.
type Session struct {
	id        string
	createdAt time.Time
	opts      Options

	index   *graph.GraphIndex
	stack   *history.Stack
	placer  *layout.Placer
	pub     Publisher
	store   Store
	metrics *metrics.Collector

	// sem serializes every mutating operation. A channel rather than a
	// mutex so acquisition can honour context cancellation.
	sem     chan struct{}
	pending []pendingEvent // guarded by sem

	phase       atomic.Int32
	generation  atomic.Uint64
	live        atomic.Pointer[liveData]
	closed      atomic.Bool
	saveMu      sync.Mutex // serializes store writes with Close
	flight      singleflight.Group
	unsubscribe func()

	mu          sync.Mutex // guards the fields below
	hooks       []ReconcileHook
	currentUUID string
	saveTimer   *time.Timer
	lastSaveErr error
}

// New creates an empty session. pub, store and m may be nil.
func New(id string, opts Options, pub Publisher, store Store, m *metrics.Collector) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	opts = opts.withDefaults()
	s := &Session{
		id:          id,
		createdAt:   time.Now().UTC(),
		opts:        opts,
		index:       graph.NewGraphIndex(),
		stack:       history.NewStack(opts.HistoryDepth),
		placer:      layout.NewPlacer(opts.PlacementRadius),
		pub:         pub,
		store:       store,
		metrics:     m,
		sem:         make(chan struct{}, 1),
		currentUUID: uuid.NewString(),
	}
	s.live.Store(&liveData{snap: graph.Snapshot{Nodes: []graph.Node{}, Edges: []graph.Edge{}}})
	s.unsubscribe = s.stack.Subscribe(s.onHistoryChanged)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Phase returns the current reconcile phase.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Generation returns the generation of the current data snapshot.
func (s *Session) Generation() uint64 { return s.generation.Load() }

// Snapshot returns the current data snapshot and its generation. The
// snapshot is shared; callers must not modify it.
func (s *Session) Snapshot() (graph.Snapshot, uint64) {
	l := s.live.Load()
	return l.snap, l.generation
}

// History returns the current undo/redo depths.
func (s *Session) History() history.State { return s.stack.State() }

// HistorySummaries lists the entries of both sequences, oldest first.
func (s *Session) HistorySummaries() (undo, redo []history.Summary) {
	return s.stack.Summaries()
}

// OnReconciled registers a hook run after every successful Reconcile.
func (s *Session) OnReconciled(fn ReconcileHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// ===================== SERIALIZATION ======================================

type inFlightKey struct{}

func markInFlight(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, inFlightKey{}, id)
}

func isInFlight(ctx context.Context, id string) bool {
	v, _ := ctx.Value(inFlightKey{}).(string)
	return v == id
}

// lock acquires the session for a mutating operation.
func (s *Session) lock(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if isInFlight(ctx, s.id) {
		return ErrReconcileInFlight
	}
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.closed.Load() {
		<-s.sem
		return ErrSessionClosed
	}
	return nil
}

// unlock releases the session and then publishes the events queued while
// it was held, so subscribers never observe a half-applied state.
func (s *Session) unlock() {
	events := s.pending
	s.pending = nil
	s.phase.Store(int32(PhaseIdle))
	<-s.sem
	for _, e := range events {
		s.pub.Publish(e.name, e.data)
	}
}

// emit queues an event; the caller must hold the session.
func (s *Session) emit(name string, data any) {
	s.pending = append(s.pending, pendingEvent{name: name, data: data})
}

func (s *Session) setPhase(p Phase) { s.phase.Store(int32(p)) }

// dataChanged republishes the data snapshot under a new generation, rolls
// the canvas uuid and schedules a save. The caller must hold the session.
func (s *Session) dataChanged(reason string) uint64 {
	gen := s.generation.Add(1)
	s.live.Store(&liveData{snap: s.index.Snapshot(), generation: gen})

	s.mu.Lock()
	s.currentUUID = uuid.NewString()
	s.mu.Unlock()

	s.emit(EventGraphChanged, GraphChangedEvent{
		SessionID:  s.id,
		Generation: gen,
		Reason:     reason,
		Nodes:      s.index.NodeCount(),
		Edges:      s.index.EdgeCount(),
	})
	s.scheduleSave()
	return gen
}

func (s *Session) onHistoryChanged(st history.State) {
	s.metrics.SetHistoryDepth(s.id, st.UndoDepth, st.RedoDepth)
	s.emit(EventHistoryChanged, HistoryEvent{SessionID: s.id, State: st})
}

// GraphChangedEvent is the payload of graph:changed.
type GraphChangedEvent struct {
	SessionID  string `json:"session_id"`
	Generation uint64 `json:"generation"`
	Reason     string `json:"reason"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
}

// HistoryEvent is the payload of history:changed.
type HistoryEvent struct {
	SessionID string        `json:"session_id"`
	State     history.State `json:"state"`
}

// SelectionEvent is the payload of selection:changed.
type SelectionEvent struct {
	SessionID string              `json:"session_id"`
	Kind      graph.SelectionKind `json:"kind"`
	IDs       []string            `json:"ids"`
}

// LayoutEvent is the payload of layout:changed.
type LayoutEvent struct {
	SessionID string            `json:"session_id"`
	Layout    graph.LayoutState `json:"layout"`
}

// EventSessionID lets subscribers filter events by session.
func (e GraphChangedEvent) EventSessionID() string { return e.SessionID }
func (e HistoryEvent) EventSessionID() string      { return e.SessionID }
func (e SelectionEvent) EventSessionID() string    { return e.SessionID }
func (e LayoutEvent) EventSessionID() string       { return e.SessionID }

// Close stops the save timer and drops the history. It waits for an
// in-flight operation to finish.
func (s *Session) Close(ctx context.Context) error {
	if err := s.lock(ctx); err != nil {
		if err == ErrSessionClosed {
			return nil
		}
		return err
	}
	s.closed.Store(true)
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()
	// Wait out a save already past its closed check.
	s.saveMu.Lock()
	s.saveMu.Unlock()
	s.unsubscribe()
	s.stack.Clear()
	s.pending = nil
	<-s.sem
	slog.Debug("session closed", "session", s.id)
	return nil
}
