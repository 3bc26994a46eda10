// Package types provides core types shared across Marionette packages
package types

import "fmt"

// UnitState represents the lifecycle state of a unit
type UnitState string

const (
	// UnitStateIdle means the unit is inactive or has been fully stopped.
	UnitStateIdle UnitState = "idle"
	// UnitStateFailed means the most recent start attempt failed. For
	// dependant-blocking purposes a failed unit counts as inactive.
	UnitStateFailed UnitState = "failed"
	// UnitStateStarting means the unit is between the start request and
	// a running payload.
	UnitStateStarting UnitState = "starting"
	// UnitStateRunning means the unit holds a live payload instance.
	UnitStateRunning UnitState = "running"
	// UnitStateStopping means the unit is tearing down its payload.
	UnitStateStopping UnitState = "stopping"
)

// Active reports whether the state blocks teardown of a dependency.
// Idle and failed units never block.
func (s UnitState) Active() bool {
	return s != UnitStateIdle && s != UnitStateFailed
}

// Ref is an opaque, comparable identity for a unit's payload type.
// Refs are used as map keys throughout the registry; two refs are the
// same unit if and only if they compare equal.
type Ref struct {
	pkgPath  string
	typeName string
}

// NewRef creates a reference from a package path and type name
func NewRef(pkgPath, typeName string) Ref {
	return Ref{pkgPath: pkgPath, typeName: typeName}
}

// PkgPath returns the package path component of the reference
func (r Ref) PkgPath() string { return r.pkgPath }

// TypeName returns the type name component of the reference
func (r Ref) TypeName() string { return r.typeName }

// IsZero reports whether the reference is the zero value
func (r Ref) IsZero() bool { return r.pkgPath == "" && r.typeName == "" }

// String returns the canonical name of the reference
func (r Ref) String() string {
	if r.pkgPath == "" {
		return r.typeName
	}
	return r.pkgPath + "." + r.typeName
}

// DefaultLoader is the loader identity assigned to candidates that do
// not declare one.
const DefaultLoader = "constructor"

// Priority values. Lower values rank earlier within a resolver wave.
const (
	// PriorityDefault is assigned to units that declare no priority.
	PriorityDefault = 0
	// PriorityMarked is assigned when a unit carries an explicit priority
	// marker without a value. It ranks above unannotated units.
	PriorityMarked = -1
)

// Candidate is the raw unit description produced by a discoverer.
// The registry turns candidates into records after the builder
// acceptance gate.
type Candidate struct {
	Ref         Ref
	Name        string
	Description string
	Priority    int
	DependsOn   []Ref
	Categories  []string
	Loader      string
	AutoClose   bool
	Attributes  map[string]interface{}
}

// DisplayName returns the declared name or the canonical ref name
func (c Candidate) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Ref.String()
}

// Validate performs basic structural checks on a candidate
func (c Candidate) Validate() error {
	if c.Ref.IsZero() {
		return fmt.Errorf("candidate has no reference identity")
	}
	for _, dep := range c.DependsOn {
		if dep == c.Ref {
			return fmt.Errorf("unit %s depends on itself", c.Ref)
		}
	}
	return nil
}
