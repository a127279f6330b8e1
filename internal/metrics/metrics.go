package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Events            *prometheus.CounterVec
	Completions       *prometheus.CounterVec
	CompletionLatency prometheus.Histogram
	PromptTokens      *prometheus.HistogramVec
	HistoryAppends    prometheus.Counter
	HistoryEvictions  prometheus.Counter
	DeliveryFailures  prometheus.Counter
}

// New registers the instruments on a fresh registry so several instances can
// coexist in one process (tests).
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound chat events by conversation kind and route.",
		}, []string{"kind", "route"}),
		Completions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Model calls by outcome (ok, error, timeout).",
		}, []string{"outcome"}),
		CompletionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_seconds",
			Help:      "Wall time of model calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 6, 8, 10, 15},
		}),
		PromptTokens: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_tokens",
			Help:      "Estimated prompt size after truncation, by builder mode.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 3000, 4000},
		}, []string{"mode"}),
		HistoryAppends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_appends_total",
			Help:      "Messages appended to conversation histories.",
		}),
		HistoryEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evictions_total",
			Help:      "Messages evicted by the retention bound.",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Outbound messages rejected by the transport.",
		}),
	}
}

func (m *Metrics) ObserveEvent(kind, route string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, route).Inc()
}

func (m *Metrics) ObserveCompletion(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(outcome).Inc()
	m.CompletionLatency.Observe(d.Seconds())
}

func (m *Metrics) ObservePromptTokens(mode string, tokens int) {
	if m == nil {
		return
	}
	m.PromptTokens.WithLabelValues(mode).Observe(float64(tokens))
}

func (m *Metrics) ObserveAppend(evicted bool) {
	if m == nil {
		return
	}
	m.HistoryAppends.Inc()
	if evicted {
		m.HistoryEvictions.Inc()
	}
}

func (m *Metrics) ObserveDeliveryFailure() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
