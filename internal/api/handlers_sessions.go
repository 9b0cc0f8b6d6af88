package api

import (
	"context"
	"net/http"

	"github.com/vyuha/vyuha-lens/internal/graph"
	"github.com/vyuha/vyuha-lens/internal/history"
	"github.com/vyuha/vyuha-lens/internal/session"
)

// sessionFor resolves the {id} path value. On failure it writes the error
// response and returns nil.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session.Session {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return nil
	}
	return sess
}

// ---------------------------------------------------------------------------
// POST /api/sessions, GET /api/sessions
// ---------------------------------------------------------------------------

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeData(w, http.StatusCreated, map[string]any{
		"id":         sess.ID(),
		"created_at": sess.CreatedAt(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

// ---------------------------------------------------------------------------
// GET /api/sessions/{id}, DELETE /api/sessions/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	view, err := sess.View(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// A running feed would keep reconciling into a dead session.
	s.feeds.Stop(id)
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

type snapshotRequest struct {
	Mode     graph.MergeMode `json:"mode" validate:"omitempty,oneof=append replace subtract"`
	Snapshot graph.Snapshot  `json:"snapshot"`
}

// POST /api/sessions/{id}/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req snapshotRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	res, err := sess.Reconcile(r.Context(), req.Snapshot, req.Mode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// PUT /api/sessions/{id}/data
func (s *Server) handleChangeData(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var snap graph.Snapshot
	if !s.decodeBody(w, r, &snap) {
		return
	}
	if err := sess.ChangeData(r.Context(), snap); err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"generation": sess.Generation(),
		"history":    sess.History(),
	})
}

type renderRequest struct {
	Nodes []graph.Node `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

// POST /api/sessions/{id}/render
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req renderRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Nodes)+len(req.Edges) == 0 {
		writeError(w, http.StatusBadRequest, "EMPTY_PAYLOAD", "nodes or edges are required")
		return
	}
	n, err := sess.Render(r.Context(), req.Nodes, req.Edges)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"updated": n, "history": sess.History()})
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.replay(w, r, (*session.Session).Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.replay(w, r, (*session.Session).Redo)
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request, op func(*session.Session, context.Context) (history.Result, error)) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	res, err := op(sess, r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// GET /api/sessions/{id}/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	undo, redo := sess.HistorySummaries()
	writeData(w, http.StatusOK, map[string]any{
		"state": sess.History(),
		"undo":  undo,
		"redo":  redo,
	})
}

// ---------------------------------------------------------------------------
// Interactions
// ---------------------------------------------------------------------------

type selectRequest struct {
	Kind graph.SelectionKind `json:"kind" validate:"omitempty,oneof=nodes edges"`
	IDs  []string            `json:"ids"`
}

// POST /api/sessions/{id}/select
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req selectRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Kind == "" {
		req.Kind = graph.SelectNodes
	}
	selected, err := sess.Select(r.Context(), req.Kind, req.IDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"kind": req.Kind, "ids": selected})
}

type visibilityRequest struct {
	// Visible maps element ids to their new visibility.
	Visible map[string]bool `json:"visible" validate:"required,min=1"`
}

// POST /api/sessions/{id}/visibility
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req visibilityRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	n, err := sess.SetVisibility(r.Context(), req.Visible)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"changed": n})
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// POST /api/sessions/{id}/delete
func (s *Server) handleDeleteElements(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req idsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	n, err := sess.DeleteElements(r.Context(), req.IDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": n, "history": sess.History()})
}

type positionsRequest struct {
	Moves []session.NodeMove `json:"moves" validate:"required,min=1,dive"`
}

// POST /api/sessions/{id}/positions
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req positionsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	n, err := sess.DragNodes(r.Context(), req.Moves)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"moved": n})
}

// POST /api/sessions/{id}/layout
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req session.LayoutChange
	if !s.decodeBody(w, r, &req) {
		return
	}
	layout, err := sess.SetLayout(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, layout)
}

type comboRequest struct {
	ID       string `json:"id" validate:"required"`
	ParentID string `json:"parent_id"`
	Label    string `json:"label"`
}

// POST /api/sessions/{id}/combos
func (s *Server) handleAddCombo(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req comboRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	c := graph.Combo{ID: req.ID, ParentID: req.ParentID, Label: req.Label}
	if err := sess.AddCombo(r.Context(), c); err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

type comboTreeRequest struct {
	Changes []comboChange `json:"changes" validate:"required,min=1,dive"`
}

type comboChange struct {
	ComboID  string `json:"combo_id" validate:"required"`
	ParentID string `json:"parent_id"`
}

// POST /api/sessions/{id}/combos/tree
func (s *Server) handleComboTree(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	if sess == nil {
		return
	}
	var req comboTreeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	changes := make([]graph.ComboChange, len(req.Changes))
	for i, c := range req.Changes {
		changes[i] = graph.ComboChange{ComboID: c.ComboID, ParentID: c.ParentID}
	}
	n, err := sess.UpdateComboTree(r.Context(), changes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"moved": n})
}
