// Package metrics exposes sync progress as Prometheus metrics.
//
//	metrics.RecordsEmitted.WithLabelValues("contact").Add(float64(n))
//
//	timer := metrics.NewTimer()
//	res, err := query(ctx, w, cursor)
//	metrics.PageLatency.WithLabelValues("contact").Observe(timer.Stop().Seconds())
//
// Collectors register with the default registry, which Handler serves.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bronto_tap"

// Page outcomes used as the "outcome" label of PagesFetched.
const (
	OutcomeRecords     = "records"
	OutcomeEmpty       = "empty"
	OutcomeEndOfWindow = "end_of_window"
	OutcomeError       = "error"
)

var (
	// RecordsEmitted counts RECORD messages written.
	// Labels: stream
	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Total number of records emitted",
		},
		[]string{"stream"},
	)

	// PagesFetched counts page requests by outcome.
	// Labels: stream, outcome (records/empty/end_of_window/error)
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of page requests",
		},
		[]string{"stream", "outcome"},
	)

	// RequestRetries counts page requests retried after a timeout.
	// Labels: stream
	RequestRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Total number of retried page requests",
		},
		[]string{"stream"},
	)

	// WindowsCompleted counts windows whose bookmark was persisted.
	// Labels: stream
	WindowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_completed_total",
			Help:      "Total number of completed sync windows",
		},
		[]string{"stream"},
	)

	// StreamFailures counts streams whose sync ended in an error.
	// Labels: stream
	StreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_failures_total",
			Help:      "Total number of failed stream syncs",
		},
		[]string{"stream"},
	)

	// PageLatency tracks page request duration in seconds, retries included.
	// Labels: stream
	PageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_latency_seconds",
			Help:      "Page request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"stream"},
	)

	// RemoteCalls counts SOAP operations by result.
	// Labels: operation, status (ok/fault/timeout/error)
	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Total number of remote API calls",
		},
		[]string{"operation", "status"},
	)

	// BookmarkTimestamp is the unix time of each stream's latest bookmark.
	// Labels: stream
	BookmarkTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bookmark_timestamp_seconds",
			Help:      "Unix time of the latest persisted bookmark",
		},
		[]string{"stream"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
