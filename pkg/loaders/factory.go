package loaders

import (
	"github.com/marionette/marionette/pkg/logger"
	"github.com/marionette/marionette/pkg/types"
	"github.com/marionette/marionette/pkg/unit"
)

// Loader identities installed by InstallDefaults.
const (
	// LoaderConstructor is the default no-argument constructor
	// strategy.
	LoaderConstructor = types.DefaultLoader
	// LoaderConstructorRetry is the constructor strategy wrapped with
	// exponential backoff.
	LoaderConstructorRetry = "constructor-retry"
)

// InstallDefaults registers the built-in instantiation strategies on a
// registry. Hosts with custom loaders register them alongside or
// instead of these.
func InstallDefaults(r *unit.Registry, log logger.Logger) {
	constructor := NewConstructorLoader(log)
	r.RegisterLoader(LoaderConstructor, constructor)
	r.RegisterLoader(LoaderConstructorRetry, NewRetryLoader(constructor, DefaultRetryConfig(), log))
}
