// Package interfaces provides abstractions for dependency injection and testability
package interfaces

import (
	"context"

	"github.com/marionette/marionette/pkg/types"
)

// Discoverer supplies candidate units. Implementations scan manifests,
// archives, or build artifacts; the registry only ever sees the
// resulting candidate batch.
type Discoverer interface {
	Discover(ctx context.Context) ([]types.Candidate, error)
}

// ProcessManager arms the process-exit shutdown hook
type ProcessManager interface {
	RegisterShutdownHandler(handler func())
	Start(ctx context.Context)
	Stop()
	IsRunning() bool
}

// UnitNotifier surfaces lifecycle outcomes to a human
type UnitNotifier interface {
	NotifyUnitFailed(unit string, err error)
	NotifyBatchComplete(started int)
	NotifyInterrupt(err error)
}
