package activation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts activation operations by outcome. Attach one to an
// engine with SetMetrics; engines without metrics skip recording.
type Metrics struct {
	activations   *prometheus.CounterVec
	validations   *prometheus.CounterVec
	deactivations *prometheus.CounterVec
}

// NewMetrics creates and registers the activation metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beatconnect",
			Subsystem: "activation",
			Name:      "activate_total",
			Help:      "Activation attempts by resulting status.",
		}, []string{"status"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beatconnect",
			Subsystem: "activation",
			Name:      "validate_total",
			Help:      "Validation calls by resulting status.",
		}, []string{"status"}),
		deactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beatconnect",
			Subsystem: "activation",
			Name:      "deactivate_total",
			Help:      "Deactivation calls by resulting status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.activations, m.validations, m.deactivations)
	return m
}

func (m *Metrics) recordActivate(s Status) {
	if m != nil {
		m.activations.WithLabelValues(s.label()).Inc()
	}
}

func (m *Metrics) recordValidate(s Status) {
	if m != nil {
		m.validations.WithLabelValues(s.label()).Inc()
	}
}

func (m *Metrics) recordDeactivate(s Status) {
	if m != nil {
		m.deactivations.WithLabelValues(s.label()).Inc()
	}
}
