// Package metrics provides Prometheus collectors for rate limiter activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors recorded by limiters.
// A nil *Metrics is valid and records nothing, so callers can wire it
// unconditionally.
type Metrics struct {
	checks     *prometheus.CounterVec
	activeKeys *prometheus.GaugeVec
	sweptKeys  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
// A nil reg registers on the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floodgate_checks_total",
				Help: "Total number of admission checks performed",
			},
			[]string{"algorithm", "result"},
		),

		activeKeys: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "floodgate_active_keys",
				Help: "Number of keys with live limiter state",
			},
			[]string{"algorithm"},
		),

		sweptKeys: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floodgate_swept_keys_total",
				Help: "Total number of idle keys removed by sweeps",
			},
			[]string{"algorithm"},
		),
	}
}

// RecordCheck records one admission decision.
func (m *Metrics) RecordCheck(algorithm string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.checks.WithLabelValues(algorithm, result).Inc()
}

// SetActiveKeys records the current number of live keys.
func (m *Metrics) SetActiveKeys(algorithm string, n int) {
	if m == nil {
		return
	}
	m.activeKeys.WithLabelValues(algorithm).Set(float64(n))
}

// AddSweptKeys records keys removed by an idle sweep.
func (m *Metrics) AddSweptKeys(algorithm string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sweptKeys.WithLabelValues(algorithm).Add(float64(n))
}
