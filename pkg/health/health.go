// Package health adapts registry state to liveness and readiness
// endpoints
package health

import (
	"fmt"
	"net/http"

	"github.com/heptiolabs/healthcheck"

	"github.com/marionette/marionette/pkg/types"
	"github.com/marionette/marionette/pkg/unit"
)

// Adapter serves /live and /ready over a registry. Liveness always
// passes once the process is up; readiness fails while any unit is
// failed or mid-transition.
type Adapter struct {
	handler  healthcheck.Handler
	registry *unit.Registry
}

// NewAdapter creates a health adapter over the given registry
func NewAdapter(registry *unit.Registry) *Adapter {
	a := &Adapter{
		handler:  healthcheck.NewHandler(),
		registry: registry,
	}
	a.handler.AddReadinessCheck("units", a.checkUnits)
	return a
}

// Handler returns the HTTP handler serving /live and /ready
func (a *Adapter) Handler() http.Handler {
	return a.handler
}

// Private methods

func (a *Adapter) checkUnits() error {
	for _, u := range a.registry.Units() {
		switch u.State() {
		case types.UnitStateFailed:
			return fmt.Errorf("unit %s is failed", u.Name())
		case types.UnitStateStarting, types.UnitStateStopping:
			return fmt.Errorf("unit %s is still %s", u.Name(), u.State())
		}
	}
	return nil
}
