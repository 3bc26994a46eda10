// Package metrics exposes lifecycle activity as Prometheus metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marionette/marionette/pkg/types"
	"github.com/marionette/marionette/pkg/unit"
)

// Handler is a lifecycle handler that records unit activity. Install
// it on the global chain so every unit is counted.
type Handler struct {
	unit.BaseHandler

	starts   *prometheus.CounterVec
	closes   *prometheus.CounterVec
	failures *prometheus.CounterVec
	states   *prometheus.GaugeVec
}

// NewHandler creates a metrics handler registered against the given
// registerer. Pass prometheus.DefaultRegisterer for the process-wide
// registry.
func NewHandler(reg prometheus.Registerer) *Handler {
	factory := promauto.With(reg)
	return &Handler{
		starts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marionette_unit_starts_total",
			Help: "Number of times each unit entered the starting state",
		}, []string{"unit"}),
		closes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marionette_unit_closes_total",
			Help: "Number of times each unit entered the stopping state",
		}, []string{"unit"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marionette_unit_failures_total",
			Help: "Number of times each unit entered the failed state",
		}, []string{"unit"}),
		states: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marionette_unit_state",
			Help: "Current lifecycle state of each unit, one series per state",
		}, []string{"unit", "state"}),
	}
}

// OnStateChanged updates the per-unit counters and state gauges
func (h *Handler) OnStateChanged(u *unit.Record, previous types.UnitState) {
	name := u.Name()
	current := u.State()

	switch current {
	case types.UnitStateStarting:
		h.starts.WithLabelValues(name).Inc()
	case types.UnitStateStopping:
		h.closes.WithLabelValues(name).Inc()
	case types.UnitStateFailed:
		h.failures.WithLabelValues(name).Inc()
	}

	h.states.WithLabelValues(name, string(previous)).Set(0)
	h.states.WithLabelValues(name, string(current)).Set(1)
}
