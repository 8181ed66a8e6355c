// Package metrics exposes HTTP, generation and queue metrics for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mamette"

// Metrics owns a private registry with every Mamette collector. It implements
// generate.Observer.
type Metrics struct {
	registry    *prometheus.Registry
	http        *Middleware
	attempts    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	generations *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		http:     NewMiddleware(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Image provider calls partitioned by provider and outcome.",
		}, []string{"provider", "outcome"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_rejections_total",
			Help:      "Generated images discarded because they contained lettering.",
		}, []string{"provider"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Finished generations partitioned by provider and final status.",
		}, []string{"provider", "status"}),
	}
	m.registry.MustRegister(m.http.Collectors()...)
	m.registry.MustRegister(m.attempts, m.rejected, m.generations)
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Register adds extra collectors, such as the queue collector.
func (m *Metrics) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return m.http.Handler(next)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) AttemptFinished(provider string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.attempts.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ImageRejected(provider string) {
	m.rejected.WithLabelValues(provider).Inc()
}

func (m *Metrics) GenerationFinished(provider, status string) {
	m.generations.WithLabelValues(provider, status).Inc()
}
