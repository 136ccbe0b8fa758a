package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "improvctl",
			Subsystem: "improv",
			Name:      "frames_sent_total",
			Help:      "Provisioning frames written to the serial peer.",
		},
	)
	framesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "improvctl",
			Subsystem: "improv",
			Name:      "frames_received_total",
			Help:      "Provisioning frames decoded from the serial peer.",
		},
	)
	decodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "improvctl",
			Subsystem: "improv",
			Name:      "decode_errors_total",
			Help:      "Corrupt frames that triggered resynchronization.",
		},
	)
	connectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "improvctl",
			Subsystem: "wifi",
			Name:      "connect_attempts_total",
			Help:      "Station connect attempts.",
		},
	)
	connectFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "improvctl",
			Subsystem: "wifi",
			Name:      "connect_failures_total",
			Help:      "Station connect attempts that failed.",
		},
	)
	provisionAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "improvctl",
			Subsystem: "wifi",
			Name:      "provision_attempts_total",
			Help:      "Credential verification attempts received over serial.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "improvctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Configuration endpoint HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "improvctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Configuration endpoint HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesSent, framesReceived, decodeErrors,
			connectAttempts, connectFailures, provisionAttempts,
			httpRequests, httpDuration,
		)
	})
}

func RecordFrameSent() {
	RegisterMetrics()
	framesSent.Inc()
}

func RecordFrameReceived() {
	RegisterMetrics()
	framesReceived.Inc()
}

func RecordDecodeError() {
	RegisterMetrics()
	decodeErrors.Inc()
}

func RecordConnectAttempt() {
	RegisterMetrics()
	connectAttempts.Inc()
}

func RecordConnectFailure() {
	RegisterMetrics()
	connectFailures.Inc()
}

func RecordProvisionAttempt() {
	RegisterMetrics()
	provisionAttempts.Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
