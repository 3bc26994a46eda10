// Package process provides the process-exit shutdown hook
package process

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/marionette/marionette/pkg/logger"
)

// Manager runs registered shutdown handlers once when the process
// receives a termination signal or the controlling context is
// canceled. Handlers run in reverse registration order, so the hook
// that was installed last is the first to fire.
type Manager struct {
	logger           logger.Logger
	shutdownHandlers []func()
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
	fired            bool
}

// NewManager creates a new process manager
func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{
		logger:           log,
		shutdownHandlers: make([]func(), 0),
	}
}

// RegisterShutdownHandler adds a shutdown handler
func (m *Manager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// Start arms the hook. The context controls the lifetime of the
// manager; cancellation triggers the same shutdown path as a signal.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		select {
		case <-ctx.Done():
			m.HandleShutdown()
		case sig := <-sigChan:
			m.logger.Info("Received signal", logger.WithField("signal", sig))
			m.HandleShutdown()
		}
	}()
}

// Wait blocks until the armed hook has observed a signal or context
// cancellation and finished running the handlers
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Stop disarms the hook without firing the handlers
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()
}

// IsRunning checks if the hook is armed
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// HandleShutdown fires the registered handlers in reverse registration
// order. Safe to call directly; handlers fire at most once.
func (m *Manager) HandleShutdown() {
	m.mu.Lock()
	if m.fired {
		m.mu.Unlock()
		return
	}
	m.fired = true
	m.running = false
	handlers := make([]func(), len(m.shutdownHandlers))
	copy(handlers, m.shutdownHandlers)
	m.mu.Unlock()

	m.logger.Info("Initiating graceful shutdown...")

	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}
