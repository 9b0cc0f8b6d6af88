package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vyuha/vyuha-lens/internal/graph"
)

// ErrNotFound is returned when a requested session or record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// PersistedLayout is the stored viewport of a session.
type PersistedLayout struct {
	Width   float64        `json:"width"`
	Height  float64        `json:"height"`
	Matrix  [9]float64     `json:"matrix"`
	Type    string         `json:"type,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// LayoutFromGraph converts live layout state into its persisted form. The
// layout mode is a per-reconcile decision and is not stored.
func LayoutFromGraph(l graph.LayoutState) PersistedLayout {
	return PersistedLayout{
		Width:   l.Width,
		Height:  l.Height,
		Matrix:  l.Matrix,
		Type:    l.Type,
		Options: l.Options,
	}
}

// ToGraph restores the layout state. A restored canvas keeps its
// coordinates, so the mode is preserve.
func (p PersistedLayout) ToGraph() graph.LayoutState {
	m := p.Matrix
	if m == ([9]float64{}) {
		m = graph.IdentityMatrix()
	}
	return graph.LayoutState{
		Width:   p.Width,
		Height:  p.Height,
		Matrix:  m,
		Type:    p.Type,
		Options: p.Options,
		Mode:    graph.LayoutPreserve,
	}
}

// SessionState is the persisted form of a canvas session.
type SessionState struct {
	ID          string          `json:"id"`
	Nodes       []graph.Node    `json:"nodes"`
	Edges       []graph.Edge    `json:"edges"`
	Combos      []graph.Combo   `json:"combos,omitempty"`
	IsDirty     bool            `json:"isDirty"`
	CurrentUUID string          `json:"currentUUID"`
	Layout      PersistedLayout `json:"layout"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SessionSummary is a row of ListSessions.
type SessionSummary struct {
	ID          string    `json:"id"`
	CurrentUUID string    `json:"current_uuid"`
	IsDirty     bool      `json:"is_dirty"`
	NodeCount   int       `json:"node_count"`
	EdgeCount   int       `json:"edge_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Explanation is a stored answer for a path explanation job.
type Explanation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Path      []string  `json:"path"`
	Provider  string    `json:"provider"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// StoreStats summarises the database contents.
type StoreStats struct {
	Sessions     int `json:"sessions"`
	Nodes        int `json:"nodes"`
	Edges        int `json:"edges"`
	Explanations int `json:"explanations"`
}

// ---------------------------------------------------------------------------
// Storage
// ---------------------------------------------------------------------------

// Storage is a thread-safe wrapper around a SQLite database that persists
// canvas sessions.
type Storage struct {
	db *sql.DB
	mu sync.RWMutex
}

// ============================= LIFECYCLE ==================================

// New opens (or creates) the SQLite database at dbPath, applies the
// recommended PRAGMAs, runs any pending migrations and returns a ready
// *Storage.
func New(dbPath string) (*Storage, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: open db %q: %w", dbPath, err)
	}

	// Only one writer at a time for SQLite.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("storage: set pragma %q: %w", p, err)
		}
	}

	s := &Storage{db: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// ============================ MIGRATIONS ==================================

// migrate ensures the schema_migrations table exists, then applies every
// unapplied Migration from the package-level Migrations slice.
func (s *Storage) migrate() error {
	const createMigTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		description TEXT
	)`
	if _, err := s.db.Exec(createMigTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range Migrations {
		var exists int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration v%d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := s.db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration v%d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration v%d: %w", m.Version, err)
		}
	}
	return nil
}

// AppliedVersion returns the highest applied migration version.
func (s *Storage) AppliedVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("storage: applied version: %w", err)
	}
	return int(v.Int64), nil
}

// ========================= SESSION OPERATIONS =============================

// SaveSessionState replaces everything stored for st.ID in one transaction.
// An empty CurrentUUID is filled with a fresh one.
func (s *Storage) SaveSessionState(ctx context.Context, st SessionState) error {
	if st.ID == "" {
		return fmt.Errorf("storage: save session: empty id")
	}
	if st.CurrentUUID == "" {
		st.CurrentUUID = uuid.New().String()
	}
	layout, err := json.Marshal(st.Layout)
	if err != nil {
		return fmt.Errorf("storage: marshal layout for %q: %w", st.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx (save session): %w", err)
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO sessions (id, current_uuid, is_dirty, layout, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_uuid = excluded.current_uuid,
			is_dirty     = excluded.is_dirty,
			layout       = excluded.layout,
			updated_at   = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsert, st.ID, st.CurrentUUID, st.IsDirty, string(layout), time.Now().UTC()); err != nil {
		return fmt.Errorf("storage: upsert session %q: %w", st.ID, err)
	}

	for _, table := range []string{"session_nodes", "session_edges", "session_combos"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", st.ID); err != nil {
			return fmt.Errorf("storage: clear %s for %q: %w", table, st.ID, err)
		}
	}

	if err := insertNodes(ctx, tx, st.ID, st.Nodes); err != nil {
		return err
	}
	if err := insertEdges(ctx, tx, st.ID, st.Edges); err != nil {
		return err
	}
	if err := insertCombos(ctx, tx, st.ID, st.Combos); err != nil {
		return err
	}
	return tx.Commit()
}

func insertNodes(ctx context.Context, tx *sql.Tx, sessionID string, nodes []graph.Node) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO session_nodes
		(session_id, id, type, name, attributes, x, y, fx, fy, ord)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare save-node stmt: %w", err)
	}
	defer stmt.Close()

	for i, n := range nodes {
		attrs, err := marshalAttrs(n.Attributes)
		if err != nil {
			return fmt.Errorf("storage: marshal node %q attributes: %w", n.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, n.ID, n.Type, n.Name, attrs,
			nullFloat(n.X), nullFloat(n.Y), nullFloat(n.FX), nullFloat(n.FY), i,
		); err != nil {
			return fmt.Errorf("storage: insert node %q: %w", n.ID, err)
		}
	}
	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, sessionID string, edges []graph.Edge) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO session_edges
		(session_id, id, source, target, relation_type, attributes, ord)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare save-edge stmt: %w", err)
	}
	defer stmt.Close()

	for i, e := range edges {
		attrs, err := marshalAttrs(e.Attributes)
		if err != nil {
			return fmt.Errorf("storage: marshal edge %q attributes: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, e.ID, e.Source, e.Target, e.RelationType, attrs, i,
		); err != nil {
			return fmt.Errorf("storage: insert edge %q: %w", e.ID, err)
		}
	}
	return nil
}

func insertCombos(ctx context.Context, tx *sql.Tx, sessionID string, combos []graph.Combo) error {
	if len(combos) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO session_combos
		(session_id, id, parent_id, label, ord) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare save-combo stmt: %w", err)
	}
	defer stmt.Close()

	for i, c := range combos {
		if _, err := stmt.ExecContext(ctx, sessionID, c.ID, c.ParentID, c.Label, i); err != nil {
			return fmt.Errorf("storage: insert combo %q: %w", c.ID, err)
		}
	}
	return nil
}

// LoadSessionState reads back everything stored for id. It returns an error
// wrapping ErrNotFound when the session does not exist.
func (s *Storage) LoadSessionState(ctx context.Context, id string) (*SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &SessionState{ID: id}
	var layout string
	err := s.db.QueryRowContext(ctx,
		`SELECT current_uuid, is_dirty, layout, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&st.CurrentUUID, &st.IsDirty, &layout, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: load session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load session %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(layout), &st.Layout); err != nil {
		return nil, fmt.Errorf("storage: unmarshal layout for %q: %w", id, err)
	}

	if st.Nodes, err = s.loadNodes(ctx, id); err != nil {
		return nil, err
	}
	if st.Edges, err = s.loadEdges(ctx, id); err != nil {
		return nil, err
	}
	if st.Combos, err = s.loadCombos(ctx, id); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Storage) loadNodes(ctx context.Context, sessionID string) ([]graph.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, name, attributes, x, y, fx, fy
		FROM session_nodes WHERE session_id = ? ORDER BY ord`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: query nodes of %q: %w", sessionID, err)
	}
	defer rows.Close()

	nodes := []graph.Node{}
	for rows.Next() {
		var n graph.Node
		var attrs string
		var x, y, fx, fy sql.NullFloat64
		if err := rows.Scan(&n.ID, &n.Type, &n.Name, &attrs, &x, &y, &fx, &fy); err != nil {
			return nil, fmt.Errorf("storage: scan node row: %w", err)
		}
		if n.Attributes, err = unmarshalAttrs(attrs); err != nil {
			return nil, fmt.Errorf("storage: unmarshal node %q attributes: %w", n.ID, err)
		}
		n.X, n.Y, n.FX, n.FY = floatPtr(x), floatPtr(y), floatPtr(fx), floatPtr(fy)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *Storage) loadEdges(ctx context.Context, sessionID string) ([]graph.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, target, relation_type, attributes
		FROM session_edges WHERE session_id = ? ORDER BY ord`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: query edges of %q: %w", sessionID, err)
	}
	defer rows.Close()

	edges := []graph.Edge{}
	for rows.Next() {
		var e graph.Edge
		var attrs string
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &e.RelationType, &attrs); err != nil {
			return nil, fmt.Errorf("storage: scan edge row: %w", err)
		}
		if e.Attributes, err = unmarshalAttrs(attrs); err != nil {
			return nil, fmt.Errorf("storage: unmarshal edge %q attributes: %w", e.ID, err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *Storage) loadCombos(ctx context.Context, sessionID string) ([]graph.Combo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, parent_id, label
		FROM session_combos WHERE session_id = ? ORDER BY ord`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: query combos of %q: %w", sessionID, err)
	}
	defer rows.Close()

	var combos []graph.Combo
	for rows.Next() {
		var c graph.Combo
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Label); err != nil {
			return nil, fmt.Errorf("storage: scan combo row: %w", err)
		}
		combos = append(combos, c)
	}
	return combos, rows.Err()
}

// ListSessions returns a summary of every stored session, most recently
// updated first.
func (s *Storage) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const q = `SELECT s.id, s.current_uuid, s.is_dirty, s.updated_at,
			(SELECT COUNT(*) FROM session_nodes n WHERE n.session_id = s.id),
			(SELECT COUNT(*) FROM session_edges e WHERE e.session_id = s.id)
		FROM sessions s ORDER BY s.updated_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("storage: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var ss SessionSummary
		if err := rows.Scan(&ss.ID, &ss.CurrentUUID, &ss.IsDirty, &ss.UpdatedAt, &ss.NodeCount, &ss.EdgeCount); err != nil {
			return nil, fmt.Errorf("storage: scan session row: %w", err)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// DeleteSessionState removes a session and, through the foreign keys, all of
// its elements. Deleting an unknown session is not an error.
func (s *Storage) DeleteSessionState(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("storage: delete session %q: %w", id, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM explanations WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("storage: delete explanations of %q: %w", id, err)
	}
	return nil
}

// ======================== EXPLANATION OPERATIONS ==========================

// SaveExplanation stores a completed explanation. Empty ids are generated.
func (s *Storage) SaveExplanation(ctx context.Context, e Explanation) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	path, err := json.Marshal(e.Path)
	if err != nil {
		return fmt.Errorf("storage: marshal explanation path: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO explanations (id, session_id, path, provider, answer, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, string(path), e.Provider, e.Answer, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: save explanation %q: %w", e.ID, err)
	}
	return nil
}

// GetExplanations returns the newest explanations for a session.
func (s *Storage) GetExplanations(ctx context.Context, sessionID string, limit int) ([]Explanation, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, path, provider, answer, created_at
		 FROM explanations WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get explanations of %q: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Explanation
	for rows.Next() {
		var e Explanation
		var path string
		if err := rows.Scan(&e.ID, &e.SessionID, &path, &e.Provider, &e.Answer, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan explanation row: %w", err)
		}
		if err := json.Unmarshal([]byte(path), &e.Path); err != nil {
			return nil, fmt.Errorf("storage: unmarshal explanation path: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ============================== STATS ====================================

// GetStats counts rows across the main tables.
func (s *Storage) GetStats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &StoreStats{}
	counts := []struct {
		table string
		dst   *int
	}{
		{"sessions", &stats.Sessions},
		{"session_nodes", &stats.Nodes},
		{"session_edges", &stats.Edges},
		{"explanations", &stats.Explanations},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("storage: count %s: %w", c.table, err)
		}
	}
	return stats, nil
}

// ---------------------------------------------------------------------------
// Column helpers
// ---------------------------------------------------------------------------

func marshalAttrs(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalAttrs(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
