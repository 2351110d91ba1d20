// Package telemetry exposes gateway call metrics in Prometheus format.
package telemetry

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/and161185/exam-client/internal/api"
)

// Metrics is an api.Observer that records call counts and latencies.
type Metrics struct {
	Registry *prometheus.Registry

	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "exam_client",
				Subsystem: "api",
				Name:      "calls_total",
				Help:      "Total number of backend calls by outcome.",
			},
			[]string{"method", "route", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "exam_client",
				Subsystem: "api",
				Name:      "call_duration_seconds",
				Help:      "Duration of backend calls.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "route"},
		),
	}
	m.Registry.MustRegister(m.calls, m.duration)
	return m
}

// ObserveCall implements api.Observer.
func (m *Metrics) ObserveCall(e api.CallEvent) {
	route := Route(e.Path)
	m.calls.WithLabelValues(e.Method, route, e.Outcome()).Inc()
	m.duration.WithLabelValues(e.Method, route).Observe(e.Duration.Seconds())
}

// WriteFile dumps the current values in text exposition format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

var staticSegments = map[string]bool{
	"auth": true, "register": true, "login": true, "me": true,
	"question-banks": true, "questions": true, "upload": true,
	"wrong-questions": true, "exam-results": true, "stats": true,
	"admin": true, "users": true, "settings": true,
}

// Route collapses identifiers in a request path so labels stay bounded.
func Route(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		if s != "" && !staticSegments[s] {
			segs[i] = "{id}"
		}
	}
	return "/" + strings.Join(segs, "/")
}
