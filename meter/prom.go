package meter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/catalystlabs/gengate"
)

// PromMeter exports gate events as Prometheus metrics.
type PromMeter struct {
	attempts  *prometheus.CounterVec
	results   *prometheus.CounterVec
	tokens    *prometheus.CounterVec
	backoffs  *prometheus.HistogramVec
	abandoned *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var _ gengate.Meter = (*PromMeter)(nil)

// NewPromMeter creates a PromMeter registered on reg. If reg is nil,
// the default registerer is used.
func NewPromMeter(reg prometheus.Registerer) *PromMeter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PromMeter{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gengate_attempts_total",
				Help: "Total generation attempts dispatched, including retries",
			},
			[]string{"endpoint"},
		),
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gengate_results_total",
				Help: "Total upstream call outcomes",
			},
			[]string{"endpoint", "result"},
		),
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gengate_tokens_total",
				Help: "Total tokens consumed by successful calls",
			},
			[]string{"endpoint"},
		),
		backoffs: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gengate_backoff_seconds",
				Help:    "Delays scheduled between retry attempts",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"endpoint"},
		),
		abandoned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gengate_abandoned_reservations_total",
				Help: "Reservations force-released by the abandonment sweep",
			},
			[]string{"endpoint"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gengate_call_duration_seconds",
				Help:    "Upstream call duration",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"endpoint"},
		),
	}
}

func (m *PromMeter) OnAttempt(e gengate.AttemptEvent) {
	m.attempts.WithLabelValues(e.Endpoint).Inc()
}

func (m *PromMeter) OnResult(e gengate.ResultEvent) {
	result := "success"
	if !e.Success {
		result = "error"
	}
	m.results.WithLabelValues(e.Endpoint, result).Inc()
	m.duration.WithLabelValues(e.Endpoint).Observe(e.Duration.Seconds())
	if e.Success {
		m.tokens.WithLabelValues(e.Endpoint).Add(float64(e.Usage.TotalTokens))
	}
}

func (m *PromMeter) OnBackoff(e gengate.BackoffEvent) {
	m.backoffs.WithLabelValues(e.Endpoint).Observe(e.Delay.Seconds())
}

func (m *PromMeter) OnAbandoned(e gengate.AbandonEvent) {
	m.abandoned.WithLabelValues(e.Endpoint).Inc()
}
