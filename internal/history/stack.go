// Package history records reversible canvas transitions and replays them.
//
// A Stack holds two bounded sequences, undo and redo. The oldest undo entry
// is the sentinel for the initial canvas and is never undone. Undo and Redo
// drive the per-action state machine against an Applier.
package history

import (
	"sync"
)

// DefaultMaxDepth bounds each of the undo and redo sequences.
const DefaultMaxDepth = 50

// State is delivered to subscribers after every change to either sequence.
type State struct {
	UndoDepth int  `json:"undo_depth"`
	RedoDepth int  `json:"redo_depth"`
	CanUndo   bool `json:"can_undo"`
	CanRedo   bool `json:"can_redo"`
}

// Stack is a bounded undo/redo history. It is safe for concurrent use,
// though multi-step operations (Undo, Redo) expect the owning session to
// serialize callers.
type Stack struct {
	mu       sync.Mutex
	undo     *ring[Entry]
	redo     *ring[Entry]
	maxDepth int

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewStack returns an empty stack. A non-positive maxDepth means
// DefaultMaxDepth.
func NewStack(maxDepth int) *Stack {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Stack{
		undo:     newRing[Entry](maxDepth),
		redo:     newRing[Entry](maxDepth),
		maxDepth: maxDepth,
		subs:     make(map[int]func(State)),
	}
}

// MaxDepth returns the capacity of each sequence.
func (s *Stack) MaxDepth() int { return s.maxDepth }

// Push records a new entry. Unless the action is bookkeeping (select-* or
// layout) the redo sequence is cleared. When the undo sequence is full the
// oldest entry is dropped and the next oldest becomes the sentinel.
func (s *Stack) Push(e Entry) {
	s.mu.Lock()
	s.undo.push(e.clone())
	if !e.Action.IsBookkeeping() {
		s.redo.clear()
	}
	st := s.stateLocked()
	s.mu.Unlock()
	s.notify(st)
}

// PopUndo removes and returns the newest undo entry.
func (s *Stack) PopUndo() (Entry, bool) {
	return s.pop(s.undo)
}

// PopRedo removes and returns the newest redo entry.
func (s *Stack) PopRedo() (Entry, bool) {
	return s.pop(s.redo)
}

// PeekUndo returns the newest undo entry without removing it.
func (s *Stack) PeekUndo() (Entry, bool) {
	return s.peek(s.undo)
}

// PeekRedo returns the newest redo entry without removing it.
func (s *Stack) PeekRedo() (Entry, bool) {
	return s.peek(s.redo)
}

func (s *Stack) pop(r *ring[Entry]) (Entry, bool) {
	s.mu.Lock()
	e, ok := r.pop()
	st := s.stateLocked()
	s.mu.Unlock()
	if ok {
		s.notify(st)
	}
	return e, ok
}

func (s *Stack) peek(r *ring[Entry]) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := r.peek()
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// pushUndo and pushRedo move entries between sequences during undo/redo
// without touching the other sequence.
func (s *Stack) pushUndo(e Entry) { s.pushTo(s.undo, e) }
func (s *Stack) pushRedo(e Entry) { s.pushTo(s.redo, e) }

func (s *Stack) pushTo(r *ring[Entry], e Entry) {
	s.mu.Lock()
	r.push(e.clone())
	st := s.stateLocked()
	s.mu.Unlock()
	s.notify(st)
}

// State returns the current depths.
func (s *Stack) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Stack) stateLocked() State {
	u, r := s.undo.len(), s.redo.len()
	return State{
		UndoDepth: u,
		RedoDepth: r,
		CanUndo:   u > 1,
		CanRedo:   r > 0,
	}
}

// Summaries lists both sequences oldest first.
func (s *Stack) Summaries() (undo, redo []Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.undo.slice() {
		undo = append(undo, Summary{Action: e.Action, At: e.At})
	}
	for _, e := range s.redo.slice() {
		redo = append(redo, Summary{Action: e.Action, At: e.At})
	}
	return undo, redo
}

// Clear empties both sequences.
func (s *Stack) Clear() {
	s.mu.Lock()
	s.undo.clear()
	s.redo.clear()
	st := s.stateLocked()
	s.mu.Unlock()
	s.notify(st)
}

// Subscribe registers fn to be called with the new State after every
// change. The returned function unregisters it. Callbacks run on the
// goroutine that made the change and must not call back into the stack's
// mutating methods.
func (s *Stack) Subscribe(fn func(State)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Stack) notify(st State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
