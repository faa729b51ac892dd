package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("storage: not found")
	// ErrRunFinalized is returned when a run log entry has already left the running state.
	ErrRunFinalized = errors.New("storage: run already finalized")
)

// PersistenceError wraps a failed store operation.
type PersistenceError struct {
	Op         string
	ExternalID string
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("storage: %s %s: %v", e.Op, e.ExternalID, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op, externalID string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, ExternalID: externalID, Err: err}
}
