package domain

import "errors"

// Sentinel errors for the core's error taxonomy. None of these ever
// cross the public surface as a Go error for session-affecting verbs;
// the dialog engine translates them into benign responses. They are
// exported so callers can use errors.Is where translation does
// surface them (e.g. persistence-layer code paths).
var (
	// ErrSessionNotFound means the referenced session id is unknown to
	// the store. Surfaced to the caller as a benign acknowledge
	// response, never an exception.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal means a write was attempted against a session
	// whose FSM has already returned to IDLE after SESSION_END.
	ErrSessionTerminal = errors.New("session is terminal")
)
