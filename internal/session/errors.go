package session

import "errors"

var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionClosed   = errors.New("session: closed")
	// ErrReconcileInFlight is returned when a session operation is started
	// from inside one of that session's own reconcile hooks.
	ErrReconcileInFlight  = errors.New("session: reconcile already in flight")
	ErrEmptyPayload       = errors.New("session: payload carries no snapshot")
	ErrSelectionTooSmall  = errors.New("session: path search needs at least two nodes")
	ErrNothingToChange    = errors.New("session: no element matched")
)
