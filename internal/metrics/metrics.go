package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry so several
// servers can coexist in one process (tests).
type Metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	providerDuration prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	assistant        *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtitles_requests_total",
			Help: "Subtitle requests by outcome.",
		}, []string{"outcome"}),
		providerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subtitles_provider_duration_seconds",
			Help:    "Time spent waiting on the transcript provider.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtitles_cache_lookups_total",
			Help: "Transcript cache lookups by result.",
		}, []string{"result"}),
		assistant: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtitles_assistant_requests_total",
			Help: "Summarize and ask requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(
		m.requests,
		m.providerDuration,
		m.cacheLookups,
		m.assistant,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest counts one finished subtitles request.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// ObserveProvider records how long a provider call took.
func (m *Metrics) ObserveProvider(d time.Duration) {
	if m == nil {
		return
	}
	m.providerDuration.Observe(d.Seconds())
}

// ObserveCache counts a cache hit, miss or error.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveAssistant counts one finished summarize or ask request.
func (m *Metrics) ObserveAssistant(operation, outcome string) {
	if m == nil {
		return
	}
	m.assistant.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
