package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "ipc",
			Name:      "connections_accepted_total",
			Help:      "Peer connections accepted by a MultiServer.",
		},
		[]string{"endpoint"},
	)
	connectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "portal",
			Subsystem: "ipc",
			Name:      "connections_active",
			Help:      "Live connections tracked by a MultiServer.",
		},
		[]string{"endpoint"},
	)
	acceptFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "ipc",
			Name:      "accept_failures_total",
			Help:      "Accept-loop failures that were retried.",
		},
		[]string{"endpoint"},
	)
	messagesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "ipc",
			Name:      "messages_dispatched_total",
			Help:      "Inbound messages dispatched to a stub.",
		},
		[]string{"endpoint", "message"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "ipc",
			Name:      "dispatch_duration_seconds",
			Help:      "Stub handler duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "message"},
	)
	connectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "ipc",
			Name:      "connection_failures_total",
			Help:      "Connections torn down by protocol or transport errors.",
		},
		[]string{"endpoint", "reason"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total debug-endpoint HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Debug-endpoint HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionsAccepted, connectionsActive, acceptFailures,
			messagesDispatched, dispatchDuration, connectionFailures,
			httpRequests, httpDuration,
		)
	})
}

func RecordAccept(endpoint string) {
	RegisterMetrics()
	connectionsAccepted.WithLabelValues(endpoint).Inc()
	connectionsActive.WithLabelValues(endpoint).Inc()
}

func RecordDisconnect(endpoint string) {
	RegisterMetrics()
	connectionsActive.WithLabelValues(endpoint).Dec()
}

func RecordAcceptFailure(endpoint string) {
	RegisterMetrics()
	acceptFailures.WithLabelValues(endpoint).Inc()
}

func RecordDispatch(endpoint, message string, duration time.Duration) {
	RegisterMetrics()
	messagesDispatched.WithLabelValues(endpoint, message).Inc()
	dispatchDuration.WithLabelValues(endpoint, message).Observe(duration.Seconds())
}

func RecordConnectionFailure(endpoint, reason string) {
	RegisterMetrics()
	connectionFailures.WithLabelValues(endpoint, reason).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
