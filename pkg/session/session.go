// Package session assembles the registry, loaders, and process hooks
// into a runnable lifecycle session
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/marionette/marionette/pkg/interfaces"
	"github.com/marionette/marionette/pkg/loaders"
	"github.com/marionette/marionette/pkg/logger"
	"github.com/marionette/marionette/pkg/runtimectx"
	"github.com/marionette/marionette/pkg/unit"
)

// Options configures a session
type Options struct {
	Logger   logger.Logger
	Caller   string
	Process  interfaces.ProcessManager
	Notifier interfaces.UnitNotifier

	// DisableShutdownHook leaves process signal handling to the
	// embedding application. InterruptAll must then be called
	// explicitly.
	DisableShutdownHook bool
}

// Session owns a registry for one orchestration run
type Session struct {
	id       string
	logger   logger.Logger
	registry *unit.Registry
	process  interfaces.ProcessManager
	notifier interfaces.UnitNotifier
	hooked   bool

	disableShutdownHook bool
}

// NewSession creates a session with the default loaders installed
func NewSession(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	caller := opts.Caller
	if caller == "" {
		caller = "session"
	}

	registry := unit.NewRegistry(log, runtimectx.NewRuntime(caller))
	loaders.InstallDefaults(registry, log)

	return &Session{
		id:                  fmt.Sprintf("ses_%s", uuid.New().String()),
		logger:              log,
		registry:            registry,
		process:             opts.Process,
		notifier:            opts.Notifier,
		disableShutdownHook: opts.DisableShutdownHook,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Registry returns the session's unit registry
func (s *Session) Registry() *unit.Registry {
	return s.registry
}

// Run discovers candidates and brings them up in dependency order.
// The units started before a failure are returned alongside the
// error so the caller can interrupt them.
func (s *Session) Run(ctx context.Context, discoverer interfaces.Discoverer) ([]*unit.Record, error) {
	candidates, err := discoverer.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	s.logger.Info("Starting discovered units",
		logger.WithField("session", s.id),
		logger.WithField("candidates", len(candidates)))

	started, err := s.registry.InitializeAll(candidates)
	if err != nil {
		if s.notifier != nil {
			var initErr *unit.InitError
			if errors.As(err, &initErr) {
				s.notifier.NotifyUnitFailed(initErr.Unit, err)
			}
		}
		return started, err
	}

	if s.notifier != nil {
		s.notifier.NotifyBatchComplete(len(started))
	}
	s.armShutdownHook(ctx)
	return started, nil
}

// Interrupt stops every running unit in reverse start order
func (s *Session) Interrupt() error {
	err := s.registry.InterruptAll()
	if s.notifier != nil {
		s.notifier.NotifyInterrupt(err)
	}
	return err
}

// Private methods

func (s *Session) armShutdownHook(ctx context.Context) {
	if s.disableShutdownHook || s.process == nil || s.hooked {
		return
	}
	s.hooked = true
	s.process.RegisterShutdownHandler(func() {
		if err := s.Interrupt(); err != nil {
			s.logger.Error("Shutdown interrupt failed", logger.WithField("error", err))
		}
	})
	s.process.Start(ctx)
}
