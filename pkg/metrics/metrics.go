// Package metrics holds the Prometheus collectors of the sketch daemon.
//
//	metrics.Observations.WithLabelValues("clicks", "hll").Add(float64(len(values)))
//	timer := metrics.NewTimer("/streams/{name}/query")
//	defer timer.ObserveDuration()
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sketchd"

var (
	// Observations counts values folded into streams
	Observations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Total number of values observed per stream",
		},
		[]string{"stream", "kind"},
	)

	// Queries counts stream queries
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of queries answered per stream",
		},
		[]string{"stream", "kind"},
	)

	// RequestDuration tracks HTTP handler latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Streams is the number of registered streams
	Streams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams",
			Help:      "Number of registered streams",
		},
	)
)

// Timer measures one request for RequestDuration.
type Timer struct {
	route string
	start time.Time
}

// NewTimer starts a timer for route.
func NewTimer(route string) *Timer {
	return &Timer{route: route, start: time.Now()}
}

// ObserveDuration records the elapsed time and returns it.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	RequestDuration.WithLabelValues(t.route).Observe(d.Seconds())
	return d
}

// ForgetStream drops the per-stream series of a deleted stream.
func ForgetStream(name, kind string) {
	Observations.DeleteLabelValues(name, kind)
	Queries.DeleteLabelValues(name, kind)
}
