package unit

import (
	"errors"
	"fmt"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/marionette/marionette/pkg/logger"
	"github.com/marionette/marionette/pkg/metadata"
	"github.com/marionette/marionette/pkg/runtimectx"
	"github.com/marionette/marionette/pkg/types"
)

// Registry is the process-wide store of unit records and categories
// and the entry point for bulk lifecycle operations. It composes the
// resolver and the lifecycle engine over candidate batches produced by
// a discovery collaborator.
type Registry struct {
	logger  logger.Logger
	runtime *runtimectx.Runtime
	engine  *Engine
	global  *HandlerChain

	units      cmap.ConcurrentMap[string, *Record]
	categories cmap.ConcurrentMap[string, Category]

	// mu guards registration order and the start order used by
	// InterruptAll.
	mu         sync.Mutex
	registered []*Record
	started    []*Record
}

// NewRegistry creates a registry with an empty global handler chain
func NewRegistry(log logger.Logger, rt *runtimectx.Runtime) *Registry {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if rt == nil {
		rt = runtimectx.NewRuntime("anonymous")
	}
	global := NewHandlerChain()
	return &Registry{
		logger:     log,
		runtime:    rt,
		engine:     NewEngine(log, global),
		global:     global,
		units:      cmap.New[*Record](),
		categories: cmap.New[Category](),
	}
}

// Engine returns the lifecycle engine backing this registry
func (r *Registry) Engine() *Engine { return r.engine }

// GlobalHandlers returns the global handler chain, dispatched last for
// every unit
func (r *Registry) GlobalHandlers() *HandlerChain { return r.global }

// Runtime returns the process-wide runtime handle
func (r *Registry) Runtime() *runtimectx.Runtime { return r.runtime }

// RegisterLoader installs an instantiation strategy on the engine
func (r *Registry) RegisterLoader(name string, l Loader) {
	r.engine.RegisterLoader(name, l)
}

// Get returns the record for a reference
func (r *Registry) Get(ref types.Ref) (*Record, bool) {
	return r.units.Get(ref.String())
}

// Units returns all known records in registration order
func (r *Registry) Units() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, len(r.registered))
	copy(out, r.registered)
	return out
}

// Find returns the records whose attribute stores match every
// predicate, in registration order. The store is never written here.
func (r *Registry) Find(preds ...metadata.Predicate) []*Record {
	var out []*Record
	for _, u := range r.Units() {
		if metadata.All(preds...)(u.Attributes()) {
			out = append(out, u)
		}
	}
	return out
}

// Category performs a case-insensitive lookup, creating the category
// with framework defaults on first use. Repeated lookups with any
// casing of the same name return the identical instance.
func (r *Registry) Category(name string) Category {
	fold := FoldCategoryName(name)
	if c, ok := r.categories.Get(fold); ok {
		return c
	}
	r.categories.SetIfAbsent(fold, NewCategory(name))
	c, _ := r.categories.Get(fold)
	return c
}

// SetCategory installs a caller-supplied category, overriding default
// creation for its name
func (r *Registry) SetCategory(c Category) {
	r.categories.Set(FoldCategoryName(c.Name()), c)
}

// CategoryMembers returns the live member view of a category: the
// current unit set filtered by membership. Nothing is stored, so the
// view always reflects concurrent membership changes.
func (r *Registry) CategoryMembers(name string) []*Record {
	fold := FoldCategoryName(name)
	var out []*Record
	for _, u := range r.Units() {
		for _, c := range u.Categories() {
			if FoldCategoryName(c.Name()) == fold {
				out = append(out, u)
				break
			}
		}
	}
	return out
}

// AddToCategory adds a unit to a category by adding the category to
// the unit's membership set. The mutation routes through the full
// three-tier AcceptRecord dispatch, with the joining category's
// handlers included; a veto leaves membership unchanged.
func (r *Registry) AddToCategory(u *Record, name string) error {
	c := r.Category(name)
	if u.inCategory(c) {
		return nil
	}
	if err := r.acceptMembership(u, c); err != nil {
		return err
	}
	u.addCategory(c)
	r.logger.Debug("Unit joined category",
		logger.WithField("unit", u.Name()),
		logger.WithField("category", c.Name()))
	return nil
}

// RemoveFromCategory removes a unit from a category, routing through
// the same dispatch as an addition
func (r *Registry) RemoveFromCategory(u *Record, name string) error {
	c := r.Category(name)
	if !u.inCategory(c) {
		return nil
	}
	if err := acceptRecord(u, r.global, "membership"); err != nil {
		return err
	}
	u.removeCategory(c)
	return nil
}

// acceptMembership runs the AcceptRecord gate over the unit's current
// tiers plus the category it is about to join.
func (r *Registry) acceptMembership(u *Record, joining Category) error {
	visit := func(tier string, h Handler) error {
		if !h.AcceptRecord(u) {
			return &RejectionError{Unit: u.Name(), Tier: tier, Op: "membership"}
		}
		return nil
	}
	err := visitTiers(u, nil, visit)
	if err != nil {
		return err
	}
	if err := visit(tierCategory(joining), joining); err != nil {
		return err
	}
	for _, h := range joining.Handlers().Handlers() {
		if err := visit(tierCategory(joining), h); err != nil {
			return err
		}
	}
	for _, h := range r.global.Handlers() {
		if err := visit(tierGlobal, h); err != nil {
			return err
		}
	}
	return nil
}

// InitializeAll gates, constructs, resolves, and starts a candidate
// batch. The gate and the resolver are atomic: a veto, a construction
// failure, or a resolution failure registers and starts nothing. The
// start phase is not rolled back: the first start failure aborts the
// remaining units and surfaces the error, while already-started units
// in the batch keep running.
//
// The successfully started records are returned in initialization
// order, also on error.
func (r *Registry) InitializeAll(candidates []types.Candidate) ([]*Record, error) {
	opID := runtimectx.GenerateOperationID()
	r.logger.Info("Initializing unit batch",
		logger.WithField("operation", opID),
		logger.WithField("candidates", len(candidates)))

	records, err := r.admit(candidates)
	if err != nil {
		return nil, err
	}

	ordered, err := Resolve(records)
	if err != nil {
		return nil, err
	}

	r.register(ordered)

	var started []*Record
	for _, u := range ordered {
		if err := r.StartUnit(u.Ref()); err != nil {
			r.logger.Error("Batch start aborted",
				logger.WithField("operation", opID),
				logger.WithField("unit", u.Name()),
				logger.WithField("started", len(started)))
			return started, err
		}
		started = append(started, u)
	}

	r.logger.Success("Unit batch initialized",
		logger.WithField("operation", opID),
		logger.WithField("units", len(started)))
	return started, nil
}

// admit runs the two-phase acceptance gate and constructs the batch's
// records with their dependencies linked
func (r *Registry) admit(candidates []types.Candidate) ([]*Record, error) {
	builders := make([]*Builder, 0, len(candidates))
	seen := make(map[types.Ref]bool, len(candidates))

	for _, cand := range candidates {
		if seen[cand.Ref] || r.units.Has(cand.Ref.String()) {
			return nil, fmt.Errorf("%s: %w", cand.Ref, ErrDuplicateUnit)
		}
		seen[cand.Ref] = true

		b, err := NewBuilder(cand, r.runtime)
		if err != nil {
			return nil, err
		}
		if err := r.acceptBuilder(b); err != nil {
			return nil, err
		}
		builders = append(builders, b)
	}

	// Construct every record before linking so declaration order
	// inside the batch does not matter.
	records := make([]*Record, len(builders))
	byRef := make(map[types.Ref]*Record, len(builders))
	for i, b := range builders {
		records[i] = b.build()
		byRef[b.Ref()] = records[i]
	}

	for i, b := range builders {
		deps := make([]*Record, 0, len(b.DependsOn()))
		for _, depRef := range b.DependsOn() {
			dep, ok := byRef[depRef]
			if !ok {
				return nil, &ResolutionError{
					Stuck: []string{fmt.Sprintf("%s (missing dependency %s)", records[i].Name(), depRef)},
				}
			}
			deps = append(deps, dep)
		}
		records[i].linkDependencies(deps)

		for _, name := range b.Categories() {
			records[i].addCategory(r.Category(name))
		}
	}

	// Post-construction validation over the full three tiers.
	for _, u := range records {
		if err := acceptRecord(u, r.global, "record"); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// acceptBuilder runs the pre-construction gate. No record exists yet,
// so the tiers are the candidate's declared categories followed by the
// global chain.
func (r *Registry) acceptBuilder(b *Builder) error {
	visit := func(tier string, h Handler) error {
		if !h.AcceptBuilder(b) {
			return &RejectionError{Unit: b.DisplayName(), Tier: tier, Op: "builder"}
		}
		return nil
	}
	for _, name := range b.Categories() {
		c := r.Category(name)
		if err := visit(tierCategory(c), c); err != nil {
			return err
		}
		for _, h := range c.Handlers().Handlers() {
			if err := visit(tierCategory(c), h); err != nil {
				return err
			}
		}
	}
	for _, h := range r.global.Handlers() {
		if err := visit(tierGlobal, h); err != nil {
			return err
		}
	}
	return nil
}

// register publishes the batch and populates the derived dependant
// back-references
func (r *Registry) register(records []*Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range records {
		r.units.Set(u.Ref().String(), u)
		r.registered = append(r.registered, u)
		for _, dep := range u.Dependencies() {
			dep.addDependant(u)
		}
	}
}

// StartUnit starts a single registered unit and tracks it for
// reverse-order interruption
func (r *Registry) StartUnit(ref types.Ref) error {
	u, ok := r.Get(ref)
	if !ok {
		return fmt.Errorf("%s: %w", ref, ErrUnknownUnit)
	}
	if err := r.engine.Start(u); err != nil {
		return err
	}
	r.mu.Lock()
	r.started = append(r.started, u)
	r.mu.Unlock()
	return nil
}

// CloseUnit closes a single unit, subject to the dependant check
func (r *Registry) CloseUnit(ref types.Ref) error {
	u, ok := r.Get(ref)
	if !ok {
		return fmt.Errorf("%s: %w", ref, ErrUnknownUnit)
	}
	if err := r.engine.Close(u); err != nil {
		return err
	}
	r.forgetStarted(u)
	return nil
}

// InterruptAll closes every started unit in exactly reversed start
// order, which guarantees each unit's dependants are closed before the
// unit itself. Close failures do not stop the sweep; all errors are
// joined.
func (r *Registry) InterruptAll() error {
	r.mu.Lock()
	order := make([]*Record, len(r.started))
	copy(order, r.started)
	r.mu.Unlock()

	r.logger.Info("Interrupting units", logger.WithField("units", len(order)))

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		u := order[i]
		if err := r.engine.Close(u); err != nil {
			errs = append(errs, err)
			continue
		}
		r.forgetStarted(u)
	}
	return errors.Join(errs...)
}

// Remove deletes a record by explicit administrative action. The unit
// must be inactive and free of registered dependants.
func (r *Registry) Remove(ref types.Ref) error {
	u, ok := r.Get(ref)
	if !ok {
		return fmt.Errorf("%s: %w", ref, ErrUnknownUnit)
	}
	if u.State().Active() {
		return fmt.Errorf("%s: %w (state %s)", u.Name(), ErrUnitInUse, u.State())
	}
	if deps := u.Dependants(); len(deps) > 0 {
		return fmt.Errorf("%s: %w (%d dependants)", u.Name(), ErrUnitInUse, len(deps))
	}

	for _, dep := range u.Dependencies() {
		dep.removeDependant(u)
	}
	r.units.Remove(ref.String())

	r.mu.Lock()
	for i, existing := range r.registered {
		if existing == u {
			r.registered = append(r.registered[:i], r.registered[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) forgetStarted(u *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.started {
		if existing == u {
			r.started = append(r.started[:i], r.started[i+1:]...)
			return
		}
	}
}
