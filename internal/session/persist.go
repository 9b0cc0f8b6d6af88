package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
	"github.com/vyuha/vyuha-lens/internal/storage"
)

const saveTimeout = 10 * time.Second

// State returns the persistable state of the session. It only reads.
func (s *Session) State() storage.SessionState {
	snap, _ := s.Snapshot()
	s.mu.Lock()
	current := s.currentUUID
	s.mu.Unlock()
	return storage.SessionState{
		ID:          s.id,
		Nodes:       snap.Nodes,
		Edges:       snap.Edges,
		Combos:      s.index.Combos(),
		IsDirty:     s.stack.State().CanUndo,
		CurrentUUID: current,
		Layout:      storage.LayoutFromGraph(s.index.Layout()),
		UpdatedAt:   time.Now().UTC(),
	}
}

// scheduleSave (re)arms the debounced save. Bursts of changes collapse
// into one write after SaveDebounce of quiet.
func (s *Session) scheduleSave() {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.opts.SaveDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := s.save(ctx); err != nil {
			slog.Warn("debounced save failed", "session", s.id, "error", err)
		}
	})
}

// Flush cancels a pending debounced save and writes the state now.
func (s *Session) Flush(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()
	return s.save(ctx)
}

// save writes the state unless the session is closed. A timer that fires
// while Close runs must not write after the manager deleted the state.
func (s *Session) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.closed.Load() {
		return nil
	}
	err := s.store.SaveSessionState(ctx, s.State())
	s.metrics.ObserveSave(err)
	s.mu.Lock()
	s.lastSaveErr = err
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session: save %s: %w", s.id, err)
	}
	return nil
}

// LastSaveError returns the error of the most recent save, if any.
func (s *Session) LastSaveError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaveErr
}

// Restore loads persisted state into an empty session. The restored
// canvas becomes the history sentinel.
func (s *Session) Restore(ctx context.Context, st storage.SessionState) error {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()

	snap, dropped := graph.Snapshot{Nodes: st.Nodes, Edges: st.Edges}.Sanitize()
	if dropped > 0 {
		slog.Warn("restore dropped dangling edges", "session", s.id, "dropped", dropped)
	}
	s.index.Load(snap, st.Layout.ToGraph())
	for _, c := range st.Combos {
		s.index.AddCombo(c)
	}
	s.stack.Clear()
	s.stack.Push(history.NewEntry(history.ActionChangeData,
		history.SnapshotPayload(graph.Snapshot{}), history.SnapshotPayload(snap)))

	gen := s.generation.Add(1)
	s.live.Store(&liveData{snap: s.index.Snapshot(), generation: gen})
	s.mu.Lock()
	if st.CurrentUUID != "" {
		s.currentUUID = st.CurrentUUID
	}
	s.mu.Unlock()
	s.emit(EventGraphChanged, GraphChangedEvent{
		SessionID:  s.id,
		Generation: gen,
		Reason:     "restore",
		Nodes:      s.index.NodeCount(),
		Edges:      s.index.EdgeCount(),
	})
	return nil
}
