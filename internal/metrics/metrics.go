// Package metrics exposes Prometheus instrumentation for step execution,
// event publication, rollback registration and saga outcomes.
//
// A nil *Metrics is valid and records nothing, so the engine and driver can
// be used without a registry.
package metrics

import (
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Step path labels.
const (
	PathFresh     = "fresh"
	PathInFlight  = "in_flight"
	PathCompleted = "completed"
)

// Step outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Metrics holds the collectors registered with one registry.
type Metrics struct {
	registry prometheus.Gatherer

	StepsTotal          *prometheus.CounterVec
	StepDuration        *prometheus.HistogramVec
	EventsPublished     *prometheus.CounterVec
	RollbacksRegistered *prometheus.CounterVec
	SagasTotal          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Passing nil uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sagalog_steps_total",
				Help: "Steps executed, by reconciliation path and outcome.",
			},
			[]string{"path", "outcome"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sagalog_step_duration_seconds",
				Help:    "Step execution latency in seconds, by reconciliation path.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sagalog_events_published_total",
				Help: "History events published, by event type.",
			},
			[]string{"type"},
		),
		RollbacksRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sagalog_rollbacks_registered_total",
				Help: "Rollback actions registered, by step outcome.",
			},
			[]string{"succeeded"},
		),
		SagasTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sagalog_sagas_total",
				Help: "Saga runs, by outcome.",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.StepsTotal, m.StepDuration, m.EventsPublished, m.RollbacksRegistered, m.SagasTotal)
	return m
}

// ObserveStep records one executed step.
func (m *Metrics) ObserveStep(path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(path, outcome).Inc()
	m.StepDuration.WithLabelValues(path).Observe(d.Seconds())
}

// EventPublished counts a published history event.
func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RollbackRegistered counts a registered rollback action.
func (m *Metrics) RollbackRegistered(succeeded bool) {
	if m == nil {
		return
	}
	m.RollbacksRegistered.WithLabelValues(strconv.FormatBool(succeeded)).Inc()
}

// SagaFinished counts a finished saga run.
func (m *Metrics) SagaFinished(outcome string) {
	if m == nil {
		return
	}
	m.SagasTotal.WithLabelValues(outcome).Inc()
}

// WritePrometheus writes the registry in the Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
