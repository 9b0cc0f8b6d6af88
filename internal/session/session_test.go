package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
	"github.com/vyuha/vyuha-lens/internal/pathfind"
	"github.com/vyuha/vyuha-lens/internal/storage"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(event string, _ any) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

type memStore struct {
	mu    sync.Mutex
	state map[string]storage.SessionState
	saves int
}

func newMemStore() *memStore {
	return &memStore{state: map[string]storage.SessionState{}}
}

func (m *memStore) SaveSessionState(_ context.Context, st storage.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[st.ID] = st
	m.saves++
	return nil
}

func (m *memStore) LoadSessionState(_ context.Context, id string) (*storage.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &st, nil
}

func (m *memStore) ListSessions(_ context.Context) ([]storage.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.SessionSummary
	for id, st := range m.state {
		out = append(out, storage.SessionSummary{ID: id, NodeCount: len(st.Nodes), EdgeCount: len(st.Edges)})
	}
	return out, nil
}

func (m *memStore) DeleteSessionState(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, id)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func n(id string) graph.Node { return graph.Node{ID: id, Type: "T", Name: id} }

func at(id string, x, y float64) graph.Node {
	return graph.Node{ID: id, Type: "T", Name: id, X: graph.Float(x), Y: graph.Float(y)}
}

func ed(src, dst string) graph.Edge { return graph.NewEdge(src, "rel", dst) }

func snapOf(nodes []graph.Node, edges ...graph.Edge) graph.Snapshot {
	if edges == nil {
		edges = []graph.Edge{}
	}
	return graph.Snapshot{Nodes: nodes, Edges: edges}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := New("s1", Options{SaveDebounce: time.Hour}, nil, nil, nil)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func nodeIDs(s *Session) []string {
	snap, _ := s.Snapshot()
	return snap.NodeIDs()
}

// ---------------------------------------------------------------------------
// Reconcile
// ---------------------------------------------------------------------------

func TestReconcile_FirstLoadPlacesNodesAndPicksAuto(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	res, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A"), n("B")}, ed("A", "B")), graph.MergeAppend)
	require.NoError(t, err)

	assert.Equal(t, graph.LayoutAuto, res.LayoutMode)
	assert.True(t, res.Relayout())
	assert.True(t, res.Recorded)
	assert.Equal(t, history.ActionAdd, res.Action)
	assert.Equal(t, []string{"A", "B"}, res.AddedNodes)
	assert.Equal(t, []string{"A|rel|B"}, res.FlowEdges)
	assert.Equal(t, "A", res.AnchorID)
	assert.Equal(t, uint64(1), res.Generation)

	// The first entry is the sentinel and cannot be undone.
	assert.Equal(t, 1, res.History.UndoDepth)
	assert.False(t, res.History.CanUndo)

	snap, _ := s.Snapshot()
	for _, node := range snap.Nodes {
		assert.True(t, node.HasPosition(), node.ID)
	}
	assert.Equal(t, map[string]string{"A|rel|B": graph.EdgeStyleFlow}, s.index.EdgeStyles())
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestReconcile_PositionedCanvasPreservesLayout(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{at("A", 10, 10), at("B", 20, 20)}, ed("A", "B")), graph.MergeAppend)
	require.NoError(t, err)

	res, err := s.Reconcile(ctx, snapOf([]graph.Node{n("C")}, ed("B", "C")), graph.MergeAppend)
	require.NoError(t, err)
	assert.Equal(t, graph.LayoutPreserve, res.LayoutMode)
	assert.Equal(t, "B", res.AnchorID)

	// A single new node sits on the anchor.
	c, ok := s.index.GetNode("C")
	require.True(t, ok)
	x, y, _ := c.Position()
	assert.Equal(t, 20.0, x)
	assert.Equal(t, 20.0, y)

	// Styles from the previous reconcile are cleared.
	assert.Equal(t, map[string]string{"B|rel|C": graph.EdgeStyleFlow}, s.index.EdgeStyles())
}

func TestReconcile_NodeOnlyRemovalIsNotRecorded(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A"), n("B")}), graph.MergeAppend)
	require.NoError(t, err)

	res, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A")}), graph.MergeReplace)
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.Equal(t, []string{"B"}, res.RemovedNodes)
	assert.Equal(t, []string{"A"}, nodeIDs(s))
	assert.Equal(t, 1, s.History().UndoDepth)
}

func TestReconcile_EdgeRemovalRecordsDelete(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A"), n("B")}, ed("A", "B")), graph.MergeAppend)
	require.NoError(t, err)

	res, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A")}), graph.MergeReplace)
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, history.ActionDelete, res.Action)
}

func TestReconcile_UnknownMergeMode(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Reconcile(context.Background(), graph.Snapshot{}, graph.MergeMode("bogus"))
	require.ErrorIs(t, err, graph.ErrUnknownMergeMode)
	assert.Equal(t, uint64(0), s.Generation())
}

func TestReconcile_HookReentryFails(t *testing.T) {
	s := newTestSession(t)
	var hookErr error
	s.OnReconciled(func(ctx context.Context, _ ReconcileResult) {
		_, hookErr = s.Reconcile(ctx, graph.Snapshot{}, graph.MergeAppend)
	})

	_, err := s.Reconcile(context.Background(), snapOf([]graph.Node{n("A")}), graph.MergeAppend)
	require.NoError(t, err)
	assert.ErrorIs(t, hookErr, ErrReconcileInFlight)
}

func TestReconcile_ConcurrentCallsAreSerialized(t *testing.T) {
	s := newTestSession(t)
	g, ctx := errgroup.WithContext(context.Background())
	const workers = 20
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("N%02d", i)
		g.Go(func() error {
			_, err := s.Reconcile(ctx, snapOf([]graph.Node{n(id)}), graph.MergeAppend)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, nodeIDs(s), workers)
	assert.Equal(t, uint64(workers), s.Generation())
	assert.Equal(t, workers, s.History().UndoDepth)
}

func TestReconcile_CancelledWhileQueued(t *testing.T) {
	s := newTestSession(t)
	s.sem <- struct{}{} // hold the session
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A")}), graph.MergeAppend)
	assert.ErrorIs(t, err, context.Canceled)
	<-s.sem
}

func TestReconcile_EventsPublishedAfterRelease(t *testing.T) {
	pub := &recordingPublisher{}
	s := New("s1", Options{}, pub, nil, nil)
	defer s.Close(context.Background())

	_, err := s.Reconcile(context.Background(), snapOf([]graph.Node{n("A")}), graph.MergeAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, pub.count(EventGraphChanged))
	assert.Equal(t, 1, pub.count(EventHistoryChanged))
}

// ---------------------------------------------------------------------------
// History through the session
// ---------------------------------------------------------------------------

func TestUndo_AddAddDeleteRestoresFirstAdd(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("X")}), graph.MergeAppend)
	require.NoError(t, err)
	_, err = s.Reconcile(ctx, snapOf([]graph.Node{n("Y")}), graph.MergeAppend)
	require.NoError(t, err)
	_, err = s.DeleteElements(ctx, []string{"X"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Y"}, nodeIDs(s))

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"X", "Y"}, nodeIDs(s))

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, nodeIDs(s))

	// Only the sentinel is left.
	res, err := s.Undo(ctx)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, []string{"X"}, nodeIDs(s))
}

func TestUndoRedo_InverseLaw(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A")}), graph.MergeAppend)
	require.NoError(t, err)
	_, err = s.Reconcile(ctx, snapOf([]graph.Node{n("B")}, ed("A", "B")), graph.MergeAppend)
	require.NoError(t, err)

	before, _ := s.Snapshot()
	_, err = s.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, nodeIDs(s))

	res, err := s.Redo(ctx)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	after, _ := s.Snapshot()
	assert.Equal(t, before.NodeIDs(), after.NodeIDs())
	assert.Equal(t, before.EdgeIDs(), after.EdgeIDs())
}

func TestUndo_DragRestoresPositions(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{at("A", 1, 1)}), graph.MergeAppend)
	require.NoError(t, err)
	moved, err := s.DragNodes(ctx, []NodeMove{{ID: "A", X: 50, Y: 60}, {ID: "missing", X: 1, Y: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	x, y, ok := s.index.NodePosition("A")
	require.True(t, ok)
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 1.0, y)
}

func TestUndoRedo_RenderRestoresAttributes(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{at("A", 1, 1)}), graph.MergeAppend)
	require.NoError(t, err)
	_, err = s.Reconcile(ctx, snapOf([]graph.Node{at("B", 2, 2)}, ed("A", "B")), graph.MergeAppend)
	require.NoError(t, err)

	styledEdge := ed("A", "B")
	styledEdge.Attributes = map[string]any{"weight": 3.0}
	_, err = s.Render(ctx,
		[]graph.Node{{ID: "A", Name: "Alpha", Attributes: map[string]any{"color": "red"}}},
		[]graph.Edge{styledEdge},
	)
	require.NoError(t, err)

	res, err := s.Undo(ctx)
	require.NoError(t, err)
	require.True(t, res.Applied)
	assert.Equal(t, history.ActionRender, res.Action)

	a, ok := s.index.GetNode("A")
	require.True(t, ok)
	assert.NotContains(t, a.Attributes, "color")
	assert.Equal(t, "A", a.Name)
	assert.Equal(t, "T", a.Type)
	x, y, ok := s.index.NodePosition("A")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 1}, []float64{x, y})
	e, ok := s.index.GetEdge(styledEdge.ID)
	require.True(t, ok)
	assert.NotContains(t, e.Attributes, "weight")

	res, err = s.Redo(ctx)
	require.NoError(t, err)
	require.True(t, res.Applied)
	a, _ = s.index.GetNode("A")
	assert.Equal(t, "red", a.Attributes["color"])
	assert.Equal(t, "Alpha", a.Name)
	e, _ = s.index.GetEdge(styledEdge.ID)
	assert.Equal(t, 3.0, e.Attributes["weight"])
}

func TestSelect_RecordedOnlyWhenChanged(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A"), n("B")}), graph.MergeAppend)
	require.NoError(t, err)

	got, err := s.Select(ctx, graph.SelectNodes, []string{"B", "A", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got)
	assert.Equal(t, 2, s.History().UndoDepth)

	_, err = s.Select(ctx, graph.SelectNodes, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.History().UndoDepth)

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.index.Selection(graph.SelectNodes))
}

func TestSetVisibility_Undo(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A"), n("B")}), graph.MergeAppend)
	require.NoError(t, err)
	changed, err := s.SetVisibility(ctx, map[string]bool{"A": false, "B": true, "ghost": false})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.True(t, s.index.IsHidden("A"))

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	assert.False(t, s.index.IsHidden("A"))

	_, err = s.Redo(ctx)
	require.NoError(t, err)
	assert.True(t, s.index.IsHidden("A"))
}

func TestSetLayout_KeepsRedoBranch(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A")}), graph.MergeAppend)
	require.NoError(t, err)
	_, err = s.Reconcile(ctx, snapOf([]graph.Node{n("B")}), graph.MergeAppend)
	require.NoError(t, err)
	_, err = s.Undo(ctx)
	require.NoError(t, err)
	require.True(t, s.History().CanRedo)

	w := 800.0
	l, err := s.SetLayout(ctx, LayoutChange{Width: &w})
	require.NoError(t, err)
	assert.Equal(t, 800.0, l.Width)
	assert.True(t, s.History().CanRedo)
}

func TestUpdateComboTree_Undo(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.AddCombo(ctx, graph.Combo{ID: "outer"}))
	require.NoError(t, s.AddCombo(ctx, graph.Combo{ID: "inner"}))
	assert.ErrorIs(t, s.AddCombo(ctx, graph.Combo{ID: "x", ParentID: "nope"}), graph.ErrComboNotFound)

	// Seed the sentinel so the move is undoable.
	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A")}), graph.MergeAppend)
	require.NoError(t, err)

	moved, err := s.UpdateComboTree(ctx, []graph.ComboChange{
		{ComboID: "inner", ParentID: "outer"},
		{ComboID: "outer", ParentID: "inner"}, // cycle, skipped
	})
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	for _, c := range s.index.Combos() {
		assert.Empty(t, c.ParentID, c.ID)
	}
}

func TestChangeData_ReplacesWithoutPlacement(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A")}), graph.MergeAppend)
	require.NoError(t, err)
	require.NoError(t, s.ChangeData(ctx, snapOf([]graph.Node{n("Z")})))

	assert.Equal(t, []string{"Z"}, nodeIDs(s))
	_, _, ok := s.index.NodePosition("Z")
	assert.False(t, ok)
	assert.Equal(t, graph.LayoutPreserve, s.index.Layout().Mode)

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, nodeIDs(s))
}

func TestDeleteElements_NothingMatched(t *testing.T) {
	s := newTestSession(t)
	_, err := s.DeleteElements(context.Background(), []string{"ghost"})
	assert.ErrorIs(t, err, ErrNothingToChange)
}

func TestApply_RejectsBookkeepingActions(t *testing.T) {
	s := newTestSession(t)
	assert.ErrorIs(t, s.Apply(history.ActionLayout, history.Payload{}), history.ErrNotDataAction)
	assert.ErrorIs(t, s.Apply(history.ActionSelectNodes, history.Payload{}), history.ErrNotDataAction)
	assert.ErrorIs(t, s.Apply(history.ActionAdd, history.Payload{}), ErrEmptyPayload)
	assert.ErrorIs(t, s.Apply(history.Action("bogus"), history.Payload{}), history.ErrUnknownAction)
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

func TestPaths_FromExplicitIDs(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A"), n("B"), n("C")}, ed("A", "B"), ed("B", "C")), graph.MergeAppend)
	require.NoError(t, err)

	res, err := s.Paths(ctx, PathQuery{IDs: []string{"A", "C"}})
	require.NoError(t, err)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, []string{"A", "B", "C"}, res.Paths[0].Nodes)
	assert.Equal(t, []string{"A -> B -> C"}, res.Names)
	assert.Equal(t, pathfind.StrategyDFS, res.Strategy)
	assert.Equal(t, s.Generation(), res.Generation)
	assert.Empty(t, res.Notice)
}

func TestPaths_UsesSelectionAndReportsNotice(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A"), n("B")}), graph.MergeAppend)
	require.NoError(t, err)
	_, err = s.Select(ctx, graph.SelectNodes, []string{"A", "B"})
	require.NoError(t, err)

	res, err := s.Paths(ctx, PathQuery{})
	require.NoError(t, err)
	assert.Empty(t, res.Paths)
	assert.Equal(t, NoPathNotice, res.Notice)
}

func TestPaths_NeedsTwoNodes(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Paths(context.Background(), PathQuery{IDs: []string{"A"}})
	assert.ErrorIs(t, err, ErrSelectionTooSmall)
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func TestView_FlagsMultipleEdgesAndSelection(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A"), n("B")},
		graph.NewEdge("A", "calls", "B"), graph.NewEdge("B", "reads", "A")), graph.MergeAppend)
	require.NoError(t, err)
	_, err = s.Select(ctx, graph.SelectNodes, []string{"A"})
	require.NoError(t, err)

	v, err := s.View(ctx)
	require.NoError(t, err)
	require.Len(t, v.Edges, 2)
	for _, e := range v.Edges {
		assert.True(t, e.Multiple, e.ID)
		assert.Equal(t, graph.EdgeStyleFlow, e.Style)
	}
	assert.True(t, v.Nodes[0].Selected)
	assert.False(t, v.Nodes[1].Selected)
	assert.Equal(t, "idle", v.Phase)
}

// ---------------------------------------------------------------------------
// Persistence and manager
// ---------------------------------------------------------------------------

func TestFlushAndRestore(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	s := New("persisted", Options{SaveDebounce: time.Hour}, nil, store, nil)
	_, err := s.Reconcile(ctx, snapOf([]graph.Node{at("A", 1, 2), at("B", 3, 4)}, ed("A", "B")), graph.MergeAppend)
	require.NoError(t, err)
	_, err = s.Reconcile(ctx, snapOf([]graph.Node{n("C")}, ed("B", "C")), graph.MergeAppend)
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Close(ctx))

	st := store.state["persisted"]
	assert.True(t, st.IsDirty)
	assert.NotEmpty(t, st.CurrentUUID)
	assert.Len(t, st.Nodes, 3)

	m := NewManager(Options{SaveDebounce: time.Hour}, store, nil, nil)
	restored, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	r, err := m.Get("persisted")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, nodeIDs(r))
	assert.False(t, r.History().CanUndo)
	assert.Equal(t, st.CurrentUUID, r.State().CurrentUUID)
	require.NoError(t, m.Close(ctx))
}

func TestDebouncedSaveCollapsesBursts(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	s := New("burst", Options{SaveDebounce: 50 * time.Millisecond}, nil, store, nil)
	defer s.Close(ctx)

	for i := 0; i < 5; i++ {
		_, err := s.Reconcile(ctx, snapOf([]graph.Node{n(fmt.Sprintf("N%d", i))}), graph.MergeAppend)
		require.NoError(t, err)
	}
	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.saves == 1 && len(store.state["burst"].Nodes) == 5
	}, 2*time.Second, 5*time.Millisecond)
}

// gatedStore blocks every save until release is closed.
type gatedStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) SaveSessionState(ctx context.Context, st storage.SessionState) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.memStore.SaveSessionState(ctx, st)
}

func TestSave_NoWriteAfterClose(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	s := New("closed", Options{SaveDebounce: time.Hour}, nil, store, nil)
	require.NoError(t, s.Close(ctx))

	require.NoError(t, s.save(ctx))
	require.NoError(t, s.Flush(ctx))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.saves)
	assert.NotContains(t, store.state, "closed")
}

func TestManager_DeleteWaitsForRunningSave(t *testing.T) {
	store := &gatedStore{
		memStore: newMemStore(),
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	m := NewManager(Options{SaveDebounce: time.Millisecond}, store, nil, nil)
	ctx := context.Background()

	s := m.Create()
	_, err := s.Reconcile(ctx, snapOf([]graph.Node{n("A")}), graph.MergeAppend)
	require.NoError(t, err)

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced save did not start")
	}

	deleted := make(chan error, 1)
	go func() { deleted <- m.Delete(ctx, s.ID()) }()

	select {
	case <-deleted:
		t.Fatal("delete finished while a save was still writing")
	case <-time.After(50 * time.Millisecond):
	}
	close(store.release)
	require.NoError(t, <-deleted)

	_, err = store.LoadSessionState(ctx, s.ID())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManager_CreateGetDelete(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	m := NewManager(Options{}, store, pub, nil)
	ctx := context.Background()

	s := m.Create()
	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Len(t, m.List(), 1)

	require.NoError(t, m.Delete(ctx, s.ID()))
	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Delete(ctx, s.ID()), ErrSessionNotFound)
	assert.Equal(t, 1, pub.count(EventSessionDeleted))

	_, err = s.Reconcile(ctx, graph.Snapshot{}, graph.MergeAppend)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
