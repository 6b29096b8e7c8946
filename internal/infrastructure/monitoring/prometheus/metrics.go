// Package prometheus exposes the platform's operational metrics.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
)

// Metrics holds every collector the platform registers.  Construct it once
// per process with NewMetrics and inject it where needed; there is no
// package-level default registry use.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	MergesTotal            *prometheus.CounterVec
	MergeDuration          *prometheus.HistogramVec
	MergeThreatsAdded      prometheus.Counter
	MergeDuplicatesSkipped prometheus.Counter

	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threatcanvas",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "threatcanvas",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		MergesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threatcanvas",
			Subsystem: "merge",
			Name:      "total",
			Help:      "Merge operations by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		MergeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "threatcanvas",
			Subsystem: "merge",
			Name:      "duration_seconds",
			Help:      "End-to-end merge latency by strategy.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"strategy"}),
		MergeThreatsAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "threatcanvas",
			Subsystem: "merge",
			Name:      "threats_added_total",
			Help:      "Threats added to primary models by merges.",
		}),
		MergeDuplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "threatcanvas",
			Subsystem: "merge",
			Name:      "duplicates_skipped_total",
			Help:      "Candidate threats dropped as duplicates during merges.",
		}),

		LLMRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threatcanvas",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Assistant completions by provider and outcome.",
		}, []string{"provider", "outcome"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "threatcanvas",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Assistant completion latency by provider.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
	}
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveMerge satisfies the merge service's Instrumenter hook.
func (m *Metrics) ObserveMerge(strategy string, metrics threatmodel.MergeMetrics, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.MergesTotal.WithLabelValues(strategy, outcome).Inc()
	m.MergeDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	m.MergeThreatsAdded.Add(float64(metrics.ThreatsAdded))
	m.MergeDuplicatesSkipped.Add(float64(metrics.DuplicatesSkipped))
}

// ObserveLLM records one assistant completion.
func (m *Metrics) ObserveLLM(provider string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.LLMRequestsTotal.WithLabelValues(provider, outcome).Inc()
	m.LLMRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
