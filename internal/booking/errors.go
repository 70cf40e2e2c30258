package booking

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by ledger and waitlist implementations when a
// record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyCancelled is returned when cancelling a booking that is not
// in the confirmed state.
var ErrAlreadyCancelled = errors.New("booking already cancelled")

// ValidationError rejects a malformed request before any lock is taken.
// It is fatal to the request and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that a singleton resource (court or coach) is
// already allocated for an overlapping window.  A court conflict routes
// to the waitlist; a coach conflict surfaces to the caller, since the
// court slot freeing up would not cure it.
type ConflictError struct {
	ResourceType string
	ResourceID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s unavailable for the requested window", e.ResourceType, e.ResourceID)
}

// InsufficientInventoryError is the equipment flavor of a conflict: the
// SKU exists but its remaining quantity over the window is short.
type InsufficientInventoryError struct {
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("equipment %s short: requested %d, available %d", e.SKU, e.Requested, e.Available)
}
