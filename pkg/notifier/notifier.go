// Package notifier delivers desktop notifications for lifecycle
// outcomes
package notifier

import (
	"fmt"

	"github.com/gen2brain/beeep"
	"github.com/panjf2000/ants/v2"

	"github.com/marionette/marionette/pkg/logger"
)

// Notifier sends desktop notifications without blocking the caller.
// Delivery runs on a small worker pool; a full pool drops the
// notification rather than stalling a lifecycle transition.
type Notifier struct {
	logger  logger.Logger
	pool    *ants.Pool
	enabled bool
	appName string
}

// Config controls notification behavior
type Config struct {
	Enabled bool
	AppName string
	Workers int
}

// DefaultConfig returns the standard notifier configuration
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		AppName: "Marionette",
		Workers: 2,
	}
}

// NewNotifier creates a notifier with the given configuration
func NewNotifier(log logger.Logger, cfg Config) (*Notifier, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	pool, err := ants.NewPool(cfg.Workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create notification pool: %w", err)
	}
	return &Notifier{
		logger:  log,
		pool:    pool,
		enabled: cfg.Enabled,
		appName: cfg.AppName,
	}, nil
}

// NotifyUnitFailed reports a unit that failed to start
func (n *Notifier) NotifyUnitFailed(unit string, err error) {
	n.deliver(fmt.Sprintf("%s: unit failed", n.appName),
		fmt.Sprintf("%s could not start: %v", unit, err))
}

// NotifyBatchComplete reports a successful batch start
func (n *Notifier) NotifyBatchComplete(started int) {
	n.deliver(fmt.Sprintf("%s: ready", n.appName),
		fmt.Sprintf("%d unit(s) running", started))
}

// NotifyInterrupt reports the outcome of a full shutdown
func (n *Notifier) NotifyInterrupt(err error) {
	if err != nil {
		n.deliver(fmt.Sprintf("%s: shutdown incomplete", n.appName),
			fmt.Sprintf("some units did not stop cleanly: %v", err))
		return
	}
	n.deliver(fmt.Sprintf("%s: stopped", n.appName), "all units stopped")
}

// Close releases the worker pool
func (n *Notifier) Close() {
	n.pool.Release()
}

// Private methods

func (n *Notifier) deliver(title, message string) {
	if !n.enabled {
		return
	}
	err := n.pool.Submit(func() {
		if err := beeep.Notify(title, message, ""); err != nil {
			n.logger.Debug("Notification delivery failed", logger.WithField("error", err))
		}
	})
	if err != nil {
		n.logger.Debug("Notification dropped", logger.WithField("error", err))
	}
}
