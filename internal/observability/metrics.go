package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded per verb.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gymon",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gymon",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	controlRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gymon",
			Subsystem: "control",
			Name:      "requests_total",
			Help:      "Control protocol requests by verb and outcome.",
		},
		[]string{"verb", "outcome"},
	)
	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gymon",
			Subsystem: "control",
			Name:      "invocation_duration_seconds",
			Help:      "Control command invocation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"verb", "success"},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gymon",
			Subsystem: "control",
			Name:      "connections_active",
			Help:      "Currently open client connections.",
		},
	)
	connectionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gymon",
			Subsystem: "control",
			Name:      "connections_closed_total",
			Help:      "Closed client connections by reason.",
		},
		[]string{"reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			controlRequests,
			invocationDuration,
			connectionsActive,
			connectionsClosed,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordRequest counts one dispatched control request. Unparsed requests use verb "unknown".
func RecordRequest(verb, outcome string) {
	RegisterMetrics()
	if verb == "" {
		verb = "unknown"
	}
	controlRequests.WithLabelValues(verb, outcome).Inc()
}

func RecordInvocation(verb string, duration time.Duration, success bool) {
	RegisterMetrics()
	invocationDuration.WithLabelValues(verb, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func ConnectionOpened() {
	RegisterMetrics()
	connectionsActive.Inc()
}

func ConnectionClosed(reason string) {
	RegisterMetrics()
	connectionsActive.Dec()
	connectionsClosed.WithLabelValues(reason).Inc()
}
