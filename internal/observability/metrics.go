// Package observability holds the Prometheus instruments for the orchestration
// pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "boardroom"

// Metrics groups the collectors registered for one process.
type Metrics struct {
	RunsTotal             *prometheus.CounterVec
	ActiveRuns            prometheus.Gauge
	PersonaCallsTotal     *prometheus.CounterVec
	CallDuration          *prometheus.HistogramVec
	SynthesisTotal        *prometheus.CounterVec
	OnboardingTransitions *prometheus.CounterVec
}

// NewMetrics registers every collector on reg. Pass prometheus.NewRegistry()
// in tests so repeated construction does not panic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestration runs by terminal outcome (done, error, canceled, onboarding).",
		}, []string{"outcome"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently streaming.",
		}),
		PersonaCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persona_calls_total",
			Help:      "Completion calls by persona and status.",
		}, []string{"persona", "status"}),
		CallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Completion gateway latency by purpose and persona.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
		}, []string{"purpose", "persona"}),
		SynthesisTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Final answer mode (single, joined, synthesized, aggregate, fallback, failed).",
		}, []string{"mode"}),
		OnboardingTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "onboarding_transitions_total",
			Help:      "Onboarding steps by kind (answered, skipped, completed).",
		}, []string{"kind"}),
	}
}

// ObserveCall records one completion call. A nil receiver is a no-op.
func (m *Metrics) ObserveCall(purpose, persona, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CallDuration.WithLabelValues(purpose, persona).Observe(elapsed.Seconds())
	if persona != "" {
		m.PersonaCallsTotal.WithLabelValues(persona, status).Inc()
	}
}

// RunStarted bumps the active gauge and returns the matching completion hook.
func (m *Metrics) RunStarted() func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	m.ActiveRuns.Inc()
	return func(outcome string) {
		m.ActiveRuns.Dec()
		m.RunsTotal.WithLabelValues(outcome).Inc()
	}
}

// Synthesis counts one final-answer mode.
func (m *Metrics) Synthesis(mode string) {
	if m == nil {
		return
	}
	m.SynthesisTotal.WithLabelValues(mode).Inc()
}

// Onboarding counts one onboarding transition.
func (m *Metrics) Onboarding(kind string) {
	if m == nil {
		return
	}
	m.OnboardingTransitions.WithLabelValues(kind).Inc()
}
