package unit

import (
	"fmt"
	"sync"

	"github.com/marionette/marionette/pkg/logger"
	"github.com/marionette/marionette/pkg/types"
)

// Engine drives unit records through their state machine, dispatching
// the three handler tiers at every transition and enforcing
// dependant-based shutdown ordering.
//
// All transitions run synchronously on the calling goroutine,
// including handler callbacks. Transitions on the same record are
// single-flight; transitions on different records may run
// concurrently.
type Engine struct {
	logger logger.Logger
	global *HandlerChain

	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewEngine creates a lifecycle engine sharing the given global chain
func NewEngine(log logger.Logger, global *HandlerChain) *Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Engine{
		logger:  log,
		global:  global,
		loaders: make(map[string]Loader),
	}
}

// RegisterLoader installs an instantiation strategy under a name.
// Registering the same name again replaces the previous loader.
func (e *Engine) RegisterLoader(name string, l Loader) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaders[name] = l
}

func (e *Engine) loader(name string) (Loader, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	l, ok := e.loaders[name]
	if !ok {
		return nil, fmt.Errorf("%w under %q", ErrUnknownLoader, name)
	}
	return l, nil
}

// Start brings a unit up: starting → handler dispatch → loader create
// → running → run dispatch. Allowed from idle or failed only. On any
// failure the unit routes to failed, no payload instance is retained,
// and the error is wrapped with the unit's identity.
func (e *Engine) Start(u *Record) error {
	u.transMu.Lock()
	defer u.transMu.Unlock()

	if st := u.State(); st.Active() {
		return fmt.Errorf("%s: %w (state %s)", u.Name(), ErrUnitActive, st)
	}

	// Resolve the loader before touching state so a misconfigured
	// unit fails without a transition.
	ldr, err := e.loader(u.LoaderName())
	if err != nil {
		return &InitError{Unit: u.Name(), Cause: err}
	}

	log := e.logger.WithUnit(u.Name())
	log.Debug("Starting unit")

	previous := u.setState(types.UnitStateStarting)
	notifyStateChanged(u, e.global, previous)

	if err := e.dispatchStart(u); err != nil {
		previous = u.setState(types.UnitStateFailed)
		notifyStateChanged(u, e.global, previous)
		log.Error("Handler failed during start", logger.WithField("error", err))
		return &InitError{Unit: u.Name(), Cause: err}
	}

	instance, err := ldr.Create(u)
	if err != nil {
		previous = u.setState(types.UnitStateFailed)
		notifyStateChanged(u, e.global, previous)
		log.Error("Loader failed to create payload", logger.WithField("error", err))
		return &InitError{Unit: u.Name(), Cause: err}
	}

	u.setInstance(instance)
	previous = u.setState(types.UnitStateRunning)
	notifyStateChanged(u, e.global, previous)
	e.dispatchRun(u)

	log.Success("Unit running")
	return nil
}

// Close tears a unit down. A no-op unless the unit is running: no
// state change and no handler dispatch fires. Dependants that are
// still active block the close before any state change. A handler
// error during close dispatch aborts before teardown and leaves the
// unit stopping; once teardown ran, the unit always ends idle, even if
// teardown itself failed. Failed is reserved for start failures.
func (e *Engine) Close(u *Record) error {
	u.transMu.Lock()
	defer u.transMu.Unlock()

	if u.State() != types.UnitStateRunning {
		return nil
	}

	if blocking := u.activeDependants(); len(blocking) > 0 {
		return &DependentsError{Unit: u.Name(), Dependants: blocking}
	}

	log := e.logger.WithUnit(u.Name())
	log.Debug("Closing unit")

	previous := u.setState(types.UnitStateStopping)
	notifyStateChanged(u, e.global, previous)

	if err := e.dispatchClose(u); err != nil {
		return &ShutdownError{Unit: u.Name(), Cause: err}
	}

	var teardownErr error
	if ldr, err := e.loader(u.LoaderName()); err != nil {
		teardownErr = err
	} else {
		teardownErr = ldr.Destroy(u, u.Instance())
	}

	u.setInstance(nil)
	previous = u.setState(types.UnitStateIdle)
	notifyStateChanged(u, e.global, previous)

	if teardownErr != nil {
		log.Warn("Teardown reported an error", logger.WithField("error", teardownErr))
		return &ShutdownError{Unit: u.Name(), Cause: teardownErr}
	}

	log.Info("Unit stopped")
	return nil
}

func (e *Engine) dispatchStart(u *Record) error {
	return visitTiers(u, e.global, func(tier string, h Handler) error {
		if err := h.OnStart(u); err != nil {
			return &HandlerError{Unit: u.Name(), Tier: tier, Event: "start", Cause: err}
		}
		return nil
	})
}

func (e *Engine) dispatchClose(u *Record) error {
	return visitTiers(u, e.global, func(tier string, h Handler) error {
		if err := h.OnClose(u); err != nil {
			return &HandlerError{Unit: u.Name(), Tier: tier, Event: "close", Cause: err}
		}
		return nil
	})
}

func (e *Engine) dispatchRun(u *Record) {
	_ = visitTiers(u, e.global, func(tier string, h Handler) error {
		h.OnRun(u)
		return nil
	})
}
