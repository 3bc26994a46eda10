// Package loaders provides unit instantiation strategies
package loaders

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/marionette/marionette/pkg/logger"
	"github.com/marionette/marionette/pkg/types"
	"github.com/marionette/marionette/pkg/unit"
)

// Constructor produces a payload instance for a record
type Constructor func(u *unit.Record) (interface{}, error)

// Flusher is the flushable capability a payload may expose; it is
// invoked at teardown before the instance handle is discarded.
type Flusher interface {
	Flush() error
}

var (
	constructorsMu sync.RWMutex
	constructors   = make(map[types.Ref]Constructor)
)

// ErrNoConstructor indicates no constructor is registered for a
// unit's reference
var ErrNoConstructor = errors.New("no constructor registered")

// RegisterConstructor makes a payload constructor available under a
// reference. Typically called from a package init function, the same
// way database/sql drivers register themselves. Registering twice for
// the same reference or with a nil constructor panics.
func RegisterConstructor(ref types.Ref, fn Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	if fn == nil {
		panic("loaders: RegisterConstructor with nil constructor")
	}
	if _, dup := constructors[ref]; dup {
		panic("loaders: RegisterConstructor called twice for " + ref.String())
	}
	constructors[ref] = fn
}

// Constructors returns the sorted canonical names of all registered
// constructors
func Constructors() []string {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()
	names := make([]string, 0, len(constructors))
	for ref := range constructors {
		names = append(names, ref.String())
	}
	sort.Strings(names)
	return names
}

func lookupConstructor(ref types.Ref) (Constructor, bool) {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()
	fn, ok := constructors[ref]
	return fn, ok
}

// ConstructorLoader instantiates payloads through the process-wide
// constructor table. Teardown honors the payload's closeable and
// flushable capabilities when the record's autoClose flag is set.
type ConstructorLoader struct {
	logger logger.Logger
}

// NewConstructorLoader creates the default instantiation strategy
func NewConstructorLoader(log logger.Logger) *ConstructorLoader {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ConstructorLoader{logger: log}
}

// Create looks up and invokes the registered constructor
func (l *ConstructorLoader) Create(u *unit.Record) (interface{}, error) {
	fn, ok := lookupConstructor(u.Ref())
	if !ok {
		return nil, &unit.InitError{
			Unit:  u.Name(),
			Cause: fmt.Errorf("%w for %s", ErrNoConstructor, u.Ref()),
		}
	}
	payload, err := fn(u)
	if err != nil {
		return nil, &unit.InitError{Unit: u.Name(), Cause: err}
	}
	return payload, nil
}

// Destroy flushes and closes the payload if it exposes those
// capabilities
func (l *ConstructorLoader) Destroy(u *unit.Record, payload interface{}) error {
	if payload == nil || !u.AutoClose() {
		return nil
	}

	var errs []error
	if f, ok := payload.(Flusher); ok {
		if err := f.Flush(); err != nil {
			errs = append(errs, &unit.ShutdownError{Unit: u.Name(), Cause: err})
		}
	}
	if c, ok := payload.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, &unit.ShutdownError{Unit: u.Name(), Cause: err})
		}
	}
	return errors.Join(errs...)
}
