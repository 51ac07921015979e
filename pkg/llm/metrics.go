package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records completion attempts and outcomes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics creates and registers the completion metrics. A nil registerer
// means prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_attempts_total",
				Help:      "Completion attempts by result kind (ok or failure kind).",
			},
			[]string{"kind"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_outcomes_total",
				Help:      "Terminal outcomes of reply generation.",
			},
			[]string{"result", "kind"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_retries_total",
				Help:      "Retries scheduled after a retryable failure.",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_call_duration_seconds",
				Help:      "Duration of individual upstream completion calls.",
				Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
	}

	reg.MustRegister(m.attempts, m.outcomes, m.retries, m.duration)
	return m
}

func (m *Metrics) observeCall(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) attempt(kind string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(kind).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) outcome(o Outcome) {
	if m == nil {
		return
	}
	if o.Success() {
		m.outcomes.WithLabelValues("success", "").Inc()
		return
	}
	m.outcomes.WithLabelValues("failure", string(o.Failure.Kind)).Inc()
}
