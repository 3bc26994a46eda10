package unit

import (
	"fmt"
	"sync"

	"github.com/marionette/marionette/pkg/metadata"
	"github.com/marionette/marionette/pkg/runtimectx"
	"github.com/marionette/marionette/pkg/types"
)

// Builder is the pre-construction phase of a unit record. Handlers get
// a chance to veto the candidate through AcceptBuilder before a record
// exists; only an accepted builder is ever turned into a record.
type Builder struct {
	candidate types.Candidate
	runtime   *runtimectx.Runtime
}

// NewBuilder validates a candidate and prepares it for construction.
// Self-dependencies and missing references are rejected here and never
// reach the resolver.
func NewBuilder(c types.Candidate, rt *runtimectx.Runtime) (*Builder, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Loader == "" {
		c.Loader = types.DefaultLoader
	}
	return &Builder{candidate: c, runtime: rt}, nil
}

// Ref returns the candidate's reference identity
func (b *Builder) Ref() types.Ref { return b.candidate.Ref }

// DisplayName returns the declared name or the canonical ref name
func (b *Builder) DisplayName() string { return b.candidate.DisplayName() }

// Priority returns the declared priority
func (b *Builder) Priority() int { return b.candidate.Priority }

// Loader returns the declared loader identity
func (b *Builder) Loader() string { return b.candidate.Loader }

// DependsOn returns the raw dependency references
func (b *Builder) DependsOn() []types.Ref { return b.candidate.DependsOn }

// Categories returns the declared category names
func (b *Builder) Categories() []string { return b.candidate.Categories }

// build constructs the record. Dependencies are linked by the registry
// once every record of the batch exists; after that the record's
// dependency set never changes.
func (b *Builder) build() *Record {
	attrs := metadata.NewStore()
	for k, v := range b.candidate.Attributes {
		attrs.Set(k, v)
	}
	return &Record{
		ref:         b.candidate.Ref,
		name:        b.candidate.DisplayName(),
		description: b.candidate.Description,
		priority:    b.candidate.Priority,
		loaderName:  b.candidate.Loader,
		runtime:     b.runtime,
		attributes:  attrs,
		autoClose:   b.candidate.AutoClose,
		handlers:    NewHandlerChain(),
		state:       types.UnitStateIdle,
	}
}

// Record is the lifecycle record of one unit: its identity, declared
// relationships, current state, and payload instance handle.
type Record struct {
	ref         types.Ref
	name        string
	description string
	priority    int
	loaderName  string
	runtime     *runtimectx.Runtime
	attributes  *metadata.Store
	deps        []*Record

	handlers *HandlerChain

	// transMu serializes lifecycle transitions; concurrent start/close
	// calls on the same record are single-flight.
	transMu sync.Mutex

	mu         sync.RWMutex
	state      types.UnitState
	instance   interface{}
	autoClose  bool
	dependants []*Record
	categories []Category
}

// Ref returns the unit's reference identity
func (u *Record) Ref() types.Ref { return u.ref }

// Name returns the display name
func (u *Record) Name() string { return u.name }

// Description returns the declared description
func (u *Record) Description() string { return u.description }

// Priority returns the declared priority. Lower values rank earlier
// within a resolver wave; dependencies always take precedence.
func (u *Record) Priority() int { return u.priority }

// LoaderName returns the identity of the instantiation strategy
func (u *Record) LoaderName() string { return u.loaderName }

// Runtime returns the process-wide runtime handle
func (u *Record) Runtime() *runtimectx.Runtime { return u.runtime }

// Attributes returns the unit's attribute store, consulted as
// read-only filter criteria by Registry.Find
func (u *Record) Attributes() *metadata.Store { return u.attributes }

// Handlers returns the unit-local handler chain
func (u *Record) Handlers() *HandlerChain { return u.handlers }

// Dependencies returns the ordered dependency set, fixed at
// construction
func (u *Record) Dependencies() []*Record {
	out := make([]*Record, len(u.deps))
	copy(out, u.deps)
	return out
}

// Dependants returns the units that declared this one as a dependency.
// The set is maintained by the registry as a derived relationship.
func (u *Record) Dependants() []*Record {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]*Record, len(u.dependants))
	copy(out, u.dependants)
	return out
}

// Categories returns the unit's category memberships in insertion order
func (u *Record) Categories() []Category {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]Category, len(u.categories))
	copy(out, u.categories)
	return out
}

// State returns the current lifecycle state
func (u *Record) State() types.UnitState {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// Instance returns the payload instance handle, present only while the
// unit is running or mid-transition
func (u *Record) Instance() interface{} {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.instance
}

// AutoClose reports whether the payload's closeable capability is
// invoked automatically at teardown
func (u *Record) AutoClose() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.autoClose
}

// SetAutoClose toggles automatic payload teardown
func (u *Record) SetAutoClose(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.autoClose = v
}

// String returns a short description for logs and errors
func (u *Record) String() string {
	return fmt.Sprintf("%s (%s)", u.name, u.ref)
}

// linkDependencies fixes the dependency set. Called exactly once by
// the registry after every record of the batch exists and before the
// record becomes visible.
func (u *Record) linkDependencies(deps []*Record) {
	u.deps = deps
}

// setState updates the state and returns the state the unit left
func (u *Record) setState(s types.UnitState) types.UnitState {
	u.mu.Lock()
	defer u.mu.Unlock()
	previous := u.state
	u.state = s
	return previous
}

func (u *Record) setInstance(instance interface{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.instance = instance
}

// activeDependants returns the display names of dependants whose state
// blocks teardown of this unit
func (u *Record) activeDependants() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var blocking []string
	for _, d := range u.dependants {
		if d.State().Active() {
			blocking = append(blocking, d.Name())
		}
	}
	return blocking
}

func (u *Record) addDependant(d *Record) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.dependants {
		if existing == d {
			return
		}
	}
	u.dependants = append(u.dependants, d)
}

func (u *Record) removeDependant(d *Record) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, existing := range u.dependants {
		if existing == d {
			u.dependants = append(u.dependants[:i], u.dependants[i+1:]...)
			return
		}
	}
}

// inCategory reports membership, comparing by folded name
func (u *Record) inCategory(c Category) bool {
	fold := FoldCategoryName(c.Name())
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, existing := range u.categories {
		if FoldCategoryName(existing.Name()) == fold {
			return true
		}
	}
	return false
}

func (u *Record) addCategory(c Category) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.categories = append(u.categories, c)
}

func (u *Record) removeCategory(c Category) {
	fold := FoldCategoryName(c.Name())
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, existing := range u.categories {
		if FoldCategoryName(existing.Name()) == fold {
			u.categories = append(u.categories[:i], u.categories[i+1:]...)
			return
		}
	}
}
