package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "healthpool"

var knownStates = []string{"NEW", "HEALTHY", "UNHEALTHY"}

// Prometheus mirrors collector events into a dedicated registry.
type Prometheus struct {
	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	backends      *prometheus.GaugeVec

	registry *prometheus.Registry
	handler  http.Handler
}

func NewPrometheus() *Prometheus {
	probes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "probe_total",
		Help:      "Health check probes by backend and outcome.",
	}, []string{"backend", "outcome"})

	probeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: promNamespace,
		Name:      "probe_duration_seconds",
		Help:      "Duration in seconds of a health check probe.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "transitions_total",
		Help:      "Backend state transitions by event.",
	}, []string{"event"})

	backends := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "backends",
		Help:      "Number of registered backends per state.",
	}, []string{"state"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(probes, probeDuration, transitions, backends)

	return &Prometheus{
		probes:        probes,
		probeDuration: probeDuration,
		transitions:   transitions,
		backends:      backends,
		registry:      registry,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
}

func (p *Prometheus) observeProbe(e MetricEvent) {
	outcome := "pass"
	switch {
	case e.TimedOut:
		outcome = "timeout"
	case !e.Healthy:
		outcome = "fail"
	}

	p.probes.WithLabelValues(e.Backend, outcome).Inc()
	p.probeDuration.WithLabelValues(e.Backend).Observe(e.Duration.Seconds())
}

func (p *Prometheus) observeTransition(event string) {
	p.transitions.WithLabelValues(event).Inc()
}

func (p *Prometheus) forget(backend string) {
	for _, outcome := range []string{"pass", "fail", "timeout"} {
		p.probes.DeleteLabelValues(backend, outcome)
	}
	p.probeDuration.DeleteLabelValues(backend)
}

func (p *Prometheus) setStateCounts(counts map[string]int) {
	for _, s := range knownStates {
		p.backends.WithLabelValues(s).Set(float64(counts[s]))
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}
