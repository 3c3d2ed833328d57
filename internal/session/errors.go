package session

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned (wrapped) when a session id is unknown to a store.
var ErrNotFound = errors.New("session not found")

// ValidationError rejects invalid session input before any model call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError reports a store failure. The in-memory session is
// untouched, so the caller can retry.
type PersistenceError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("session store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session store %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, SessionID: id, Err: err}
}
