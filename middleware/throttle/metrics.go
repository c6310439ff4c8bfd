package throttle

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dkLtd/WebPageAndApiThrottle/middleware/throttle/domain"
)

// Metrics são os coletores Prometheus do middleware. Os labels são de baixa
// cardinalidade: nada de chave, IP ou endpoint.
type Metrics struct {
	decisions   *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	diagnostics prometheus.Counter
	duration    prometheus.Histogram
}

// NewMetrics cria e registra os coletores em reg (nil usa o registry padrão).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "throttle",
			Name:      "decisions_total",
			Help:      "Throttle decisions by result.",
		}, []string{"result"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "throttle",
			Name:      "rejections_total",
			Help:      "Rejected requests by responsible period.",
		}, []string{"period"}),
		diagnostics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "throttle",
			Name:      "evaluation_errors_total",
			Help:      "Evaluations that returned a diagnostic error (store, policy or logger).",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "throttle",
			Name:      "decision_duration_seconds",
			Help:      "Time spent deciding a request.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
	}
	reg.MustRegister(m.decisions, m.rejections, m.diagnostics, m.duration)
	return m
}

func (m *Metrics) observe(v domain.Verdict, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(took.Seconds())
	if err != nil {
		m.diagnostics.Inc()
	}
	if v.Allowed {
		m.decisions.WithLabelValues("allowed").Inc()
		return
	}
	m.decisions.WithLabelValues("rejected").Inc()
	m.rejections.WithLabelValues(strings.ToLower(v.Period.String())).Inc()
}
