package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "lens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleState() SessionState {
	a := graph.NewNode("Drug", "1", "Aspirin").WithPosition(10, 20)
	a.Attributes = map[string]any{"description": "pain relief"}
	b := graph.NewNode("Disease", "2", "Headache")
	return SessionState{
		ID:      "sess-1",
		Nodes:   []graph.Node{a, b},
		Edges:   []graph.Edge{graph.NewEdge(a.ID, "treats", b.ID)},
		Combos:  []graph.Combo{{ID: "c1", Label: "drugs"}},
		IsDirty: true,
		Layout: PersistedLayout{
			Width: 800, Height: 600,
			Matrix: graph.IdentityMatrix(),
			Type:   "force",
		},
	}
}

func TestStorage_MigrationsApplied(t *testing.T) {
	s := newTestStorage(t)
	v, err := s.AppliedVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestStorage_SaveLoadRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	st := sampleState()

	require.NoError(t, s.SaveSessionState(ctx, st))
	got, err := s.LoadSessionState(ctx, st.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, got.CurrentUUID)
	assert.True(t, got.IsDirty)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "Drug::1", got.Nodes[0].ID)
	assert.Equal(t, "pain relief", got.Nodes[0].Attributes["description"])
	x, y, ok := got.Nodes[0].Position()
	require.True(t, ok)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, y)
	assert.False(t, got.Nodes[1].HasPosition())
	require.Len(t, got.Edges, 1)
	assert.Equal(t, "treats", got.Edges[0].RelationType)
	assert.Equal(t, st.Combos, got.Combos)
	assert.Equal(t, "force", got.Layout.Type)
	assert.Equal(t, graph.LayoutPreserve, got.Layout.ToGraph().Mode)
}

func TestStorage_SaveReplacesElements(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	st := sampleState()
	require.NoError(t, s.SaveSessionState(ctx, st))

	st.Nodes = st.Nodes[:1]
	st.Edges = nil
	require.NoError(t, s.SaveSessionState(ctx, st))

	got, err := s.LoadSessionState(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 1)
	assert.Empty(t, got.Edges)
}

func TestStorage_LoadMissing(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.LoadSessionState(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_ListAndDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.SaveSessionState(ctx, sampleState()))
	require.NoError(t, s.SaveExplanation(ctx, Explanation{SessionID: "sess-1", Path: []string{"Drug::1", "Disease::2"}, Answer: "x"}))

	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].NodeCount)
	assert.Equal(t, 1, list[0].EdgeCount)

	require.NoError(t, s.DeleteSessionState(ctx, "sess-1"))
	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, StoreStats{}, *stats)
}

func TestStorage_Explanations(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, s.SaveExplanation(ctx, Explanation{
		SessionID: "sess-1",
		Path:      []string{"A::1", "B::2"},
		Provider:  "ollama",
		Answer:    "A relates to B",
	}))

	got, err := s.GetExplanations(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"A::1", "B::2"}, got[0].Path)
	assert.NotEmpty(t, got[0].ID)
}

func TestPersistedLayout_ZeroMatrixBecomesIdentity(t *testing.T) {
	assert.Equal(t, graph.IdentityMatrix(), PersistedLayout{}.ToGraph().Matrix)
}
