// Package metrics exposes Prometheus instrumentation for runs, turns and the
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roundtable-ai/roundtable/orchestrator"
)

// Collector holds the platform's Prometheus metrics on a private registry so
// tests can build isolated instances.
type Collector struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	tokensTotal  *prometheus.CounterVec
	quality      *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a collector under the given namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestration runs by mode and terminal status.",
		}, []string{"mode", "status"}),

		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of orchestration runs.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		}, []string{"mode"}),

		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by personality and provider.",
		}, []string{"personality", "provider"}),

		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Generation duration per turn.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"personality"}),

		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by personality.",
		}, []string{"personality"}),

		quality: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_quality",
			Help:      "Overall quality score per response (0-10).",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}, []string{"personality"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.runsTotal, c.runDuration,
		c.turnsTotal, c.turnDuration, c.tokensTotal, c.quality,
		c.httpRequests, c.httpDuration,
	)
	return c
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRun counts a finished run.
func (c *Collector) RecordRun(mode, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(mode, status).Inc()
	c.runDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordTurn counts a completed turn and its token usage.
func (c *Collector) RecordTurn(personality, provider string, duration time.Duration, tokens int) {
	c.turnsTotal.WithLabelValues(personality, provider).Inc()
	c.turnDuration.WithLabelValues(personality).Observe(duration.Seconds())
	c.tokensTotal.WithLabelValues(personality).Add(float64(tokens))
}

// RecordQuality observes a response's overall quality score.
func (c *Collector) RecordQuality(personality string, overall int) {
	c.quality.WithLabelValues(personality).Observe(float64(overall))
}

// RecordHTTPRequest counts one served request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

var _ orchestrator.MetricsRecorder = (*Collector)(nil)
