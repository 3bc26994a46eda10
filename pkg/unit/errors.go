package unit

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for registry and engine operations.
// These enable reliable error checking with errors.Is()
var (
	// ErrUnitActive indicates a start was requested while the unit is
	// starting, running, or stopping
	ErrUnitActive = errors.New("unit is already active")

	// ErrDuplicateUnit indicates a candidate's reference is already known
	ErrDuplicateUnit = errors.New("unit is already registered")

	// ErrUnknownUnit indicates a lookup for an unregistered reference
	ErrUnknownUnit = errors.New("unit is not registered")

	// ErrUnknownLoader indicates no loader is registered under the
	// unit's declared loader name
	ErrUnknownLoader = errors.New("no loader registered")

	// ErrUnitInUse indicates an administrative removal was blocked by
	// the unit's state or by registered dependants
	ErrUnitInUse = errors.New("unit is in use")
)

// RejectionError reports a handler veto. A veto is a boolean refusal,
// distinct from a failure raised during a lifecycle transition.
type RejectionError struct {
	Unit string // display name of the vetoed unit
	Tier string // dispatch tier of the vetoing handler
	Op   string // gated operation: "builder", "record", or "membership"
}

// Error implements the error interface
func (e *RejectionError) Error() string {
	return fmt.Sprintf("unit %s rejected by %s handler during %s validation", e.Unit, e.Tier, e.Op)
}

// ResolutionError reports a cyclic or unresolved dependency in a batch.
// Resolution is atomic; no unit in the batch is registered or started.
type ResolutionError struct {
	Stuck []string // display names of units that could not be placed
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cyclic or unresolved dependencies involving: %s", strings.Join(e.Stuck, ", "))
}

// InitError reports a failure while starting a unit. The unit is left
// in the failed state and no payload instance is retained.
type InitError struct {
	Unit  string
	Cause error
}

// Error implements the error interface
func (e *InitError) Error() string {
	return fmt.Sprintf("unit %s failed to start: %v", e.Unit, e.Cause)
}

// Unwrap returns the triggering cause
func (e *InitError) Unwrap() error { return e.Cause }

// ShutdownError reports a failure while closing a unit.
type ShutdownError struct {
	Unit  string
	Cause error
}

// Error implements the error interface
func (e *ShutdownError) Error() string {
	return fmt.Sprintf("unit %s failed to close: %v", e.Unit, e.Cause)
}

// Unwrap returns the triggering cause
func (e *ShutdownError) Unwrap() error { return e.Cause }

// DependentsError reports a close that was blocked by active dependants.
// The unit's state is unchanged.
type DependentsError struct {
	Unit       string
	Dependants []string // display names of the blocking units
}

// Error implements the error interface
func (e *DependentsError) Error() string {
	return fmt.Sprintf("unit %s cannot close: active dependants %s", e.Unit, strings.Join(e.Dependants, ", "))
}

// HandlerError identifies which handler tier raised during dispatch,
// aiding diagnosis of third-party handler bugs.
type HandlerError struct {
	Unit  string
	Tier  string
	Event string // "start" or "close"
	Cause error
}

// Error implements the error interface
func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler failed during %s of unit %s: %v", e.Tier, e.Event, e.Unit, e.Cause)
}

// Unwrap returns the triggering cause
func (e *HandlerError) Unwrap() error { return e.Cause }
