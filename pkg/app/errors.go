package app

import (
	"errors"
	"fmt"
)

// ErrPartialFetch is returned after a completed run in which some courses
// could not be fetched, when the syncer is configured to fail on partial runs.
var ErrPartialFetch = errors.New("some courses could not be fetched")

const (
	PhaseChanges  = "changes"
	PhaseSnapshot = "snapshot"
)

// PersistenceError aborts a run. When Phase is PhaseChanges the previous
// snapshot was not touched.
type PersistenceError struct {
	Phase string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s: %v", e.Phase, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
