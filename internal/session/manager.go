package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyuha/vyuha-lens/internal/metrics"
)

// Summary describes a live session.
type Summary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Generation uint64    `json:"generation"`
	Nodes      int       `json:"nodes"`
	Edges      int       `json:"edges"`
	CanUndo    bool      `json:"can_undo"`
	CanRedo    bool      `json:"can_redo"`
}

// Manager is the registry of live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	opts    Options
	store   Store
	pub     Publisher
	metrics *metrics.Collector
}

// NewManager returns an empty registry. store, pub and m may be nil.
func NewManager(opts Options, store Store, pub Publisher, m *metrics.Collector) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
		store:    store,
		pub:      pub,
		metrics:  m,
	}
}

// Create starts a new, empty session.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.opts, m.pub, m.store, m.metrics)
	m.add(s)
	slog.Info("session created", "session", s.ID())
	return s
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetSessions(n)
}

// Get returns the live session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// List returns a summary of every live session, oldest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(all))
	for _, s := range all {
		snap, gen := s.Snapshot()
		st := s.History()
		out = append(out, Summary{
			ID:         s.ID(),
			CreatedAt:  s.CreatedAt(),
			Generation: gen,
			Nodes:      len(snap.Nodes),
			Edges:      len(snap.Edges),
			CanUndo:    st.CanUndo,
			CanRedo:    st.CanRedo,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete closes a session and removes its persisted state.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.metrics.SetSessions(n)
	m.metrics.ForgetSession(id)

	if err := s.Close(ctx); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.DeleteSessionState(ctx, id); err != nil {
			return fmt.Errorf("session: delete %s: %w", id, err)
		}
	}
	if m.pub != nil {
		m.pub.Publish(EventSessionDeleted, map[string]string{"session_id": id})
	}
	slog.Info("session deleted", "session", id)
	return nil
}

// Restore loads every persisted session into memory. Sessions already
// live are left alone. It returns how many were restored.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	summaries, err := m.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: restore: %w", err)
	}

	restored := 0
	for _, sum := range summaries {
		if _, err := m.Get(sum.ID); err == nil {
			continue
		}
		st, err := m.store.LoadSessionState(ctx, sum.ID)
		if err != nil {
			slog.Warn("skipping unreadable session", "session", sum.ID, "error", err)
			continue
		}
		s := New(sum.ID, m.opts, m.pub, m.store, m.metrics)
		if err := s.Restore(ctx, *st); err != nil {
			return restored, fmt.Errorf("session: restore %s: %w", sum.ID, err)
		}
		m.add(s)
		restored++
	}
	slog.Info("sessions restored", "count", restored)
	return restored, nil
}

// FlushAll writes every session to the store now.
func (m *Manager) FlushAll(ctx context.Context) error {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	var errs []error
	for _, s := range all {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes every session.
func (m *Manager) Close(ctx context.Context) error {
	err := m.FlushAll(ctx)

	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		if cerr := s.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	m.metrics.SetSessions(0)
	return err
}
