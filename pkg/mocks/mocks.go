// Package mocks provides hand-written test doubles for the lifecycle
// interfaces
package mocks

import (
	"context"
	"sync"

	"github.com/marionette/marionette/pkg/types"
	"github.com/marionette/marionette/pkg/unit"
)

// MockDiscoverer returns a canned candidate batch
type MockDiscoverer struct {
	Candidates []types.Candidate
	Err        error

	mu    sync.Mutex
	calls int
}

// Discover returns the configured batch or error
func (m *MockDiscoverer) Discover(_ context.Context) ([]types.Candidate, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Candidates, nil
}

// Calls returns how many times Discover ran
func (m *MockDiscoverer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockLoader constructs payloads from configurable functions
type MockLoader struct {
	CreateFunc  func(u *unit.Record) (interface{}, error)
	DestroyFunc func(u *unit.Record, payload interface{}) error

	mu        sync.Mutex
	created   []string
	destroyed []string
}

// Create invokes CreateFunc, defaulting to a nil payload
func (m *MockLoader) Create(u *unit.Record) (interface{}, error) {
	m.mu.Lock()
	m.created = append(m.created, u.Name())
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(u)
	}
	return nil, nil
}

// Destroy invokes DestroyFunc, defaulting to success
func (m *MockLoader) Destroy(u *unit.Record, payload interface{}) error {
	m.mu.Lock()
	m.destroyed = append(m.destroyed, u.Name())
	m.mu.Unlock()
	if m.DestroyFunc != nil {
		return m.DestroyFunc(u, payload)
	}
	return nil
}

// Created returns the unit names passed to Create, in call order
func (m *MockLoader) Created() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.created))
	copy(out, m.created)
	return out
}

// Destroyed returns the unit names passed to Destroy, in call order
func (m *MockLoader) Destroyed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.destroyed))
	copy(out, m.destroyed)
	return out
}

// MockHandler records every callback it receives and can be told to
// veto acceptance or fail a lifecycle hook
type MockHandler struct {
	RejectBuilder bool
	RejectRecord  bool
	StartErr      error
	CloseErr      error

	mu     sync.Mutex
	events []string
}

// AcceptBuilder records the call and applies the configured veto
func (m *MockHandler) AcceptBuilder(b *unit.Builder) bool {
	m.record("acceptBuilder:" + b.DisplayName())
	return !m.RejectBuilder
}

// AcceptRecord records the call and applies the configured veto
func (m *MockHandler) AcceptRecord(u *unit.Record) bool {
	m.record("acceptRecord:" + u.Name())
	return !m.RejectRecord
}

// OnStateChanged records the transition
func (m *MockHandler) OnStateChanged(u *unit.Record, previous types.UnitState) {
	m.record("stateChanged:" + u.Name() + ":" + string(previous) + "->" + string(u.State()))
}

// OnStart records the call and returns the configured error
func (m *MockHandler) OnStart(u *unit.Record) error {
	m.record("start:" + u.Name())
	return m.StartErr
}

// OnClose records the call and returns the configured error
func (m *MockHandler) OnClose(u *unit.Record) error {
	m.record("close:" + u.Name())
	return m.CloseErr
}

// OnRun records the call
func (m *MockHandler) OnRun(u *unit.Record) {
	m.record("run:" + u.Name())
}

// Events returns the recorded callbacks in order
func (m *MockHandler) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

// Reset clears the recorded callbacks
func (m *MockHandler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *MockHandler) record(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// MockNotifier captures notifications for assertions
type MockNotifier struct {
	mu       sync.Mutex
	Failed   []string
	Batches  []int
	Shutdown []error
}

// NotifyUnitFailed records the failed unit name
func (m *MockNotifier) NotifyUnitFailed(unit string, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failed = append(m.Failed, unit)
}

// NotifyBatchComplete records the started count
func (m *MockNotifier) NotifyBatchComplete(started int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches = append(m.Batches, started)
}

// NotifyInterrupt records the shutdown outcome
func (m *MockNotifier) NotifyInterrupt(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Shutdown = append(m.Shutdown, err)
}

// MockProcessManager records shutdown handler registration
type MockProcessManager struct {
	mu       sync.Mutex
	handlers []func()
	running  bool
}

// RegisterShutdownHandler stores the handler
func (m *MockProcessManager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Start marks the manager running
func (m *MockProcessManager) Start(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
}

// Stop marks the manager stopped
func (m *MockProcessManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

// IsRunning reports whether Start has been called
func (m *MockProcessManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// FireShutdown invokes the registered handlers in reverse order, the
// way the real manager does
func (m *MockProcessManager) FireShutdown() {
	m.mu.Lock()
	handlers := make([]func(), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()
	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}

// HandlerCount returns how many shutdown handlers are registered
func (m *MockProcessManager) HandlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}
