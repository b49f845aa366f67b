package engine

import "errors"

// Exported error variables. Callers can check against these using errors.Is.

var (
	// ErrConfigValidation indicates that the RunConfig or engine options
	// failed validation. Returned directly as a fatal error by New and
	// ProcessItems before any work is attempted.
	ErrConfigValidation = errors.New("invalid engine configuration")

	// ErrInvalidWorkItem indicates a malformed WorkItem (empty identifier)
	// was passed to Partition. The whole partition call fails atomically;
	// no partial chunk list is returned.
	ErrInvalidWorkItem = errors.New("invalid work item")
)
