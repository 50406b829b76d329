// Package telemetry exposes the process's prometheus counters (§7): the
// two infallible-pipeline drop counters spec.md calls for, plus the
// command-surface HTTP/WebSocket traffic metrics, grounded on
// fight-club-go's observability.go.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UnknownAttributeTotal counts wire attribute ids outside the named
	// ~60-key enum (§6.4), surfacing attrs.go's Unknown(id) fallback path.
	UnknownAttributeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meterd_unknown_attribute_total",
		Help: "Wire attribute ids seen that are not in the named attribute enum.",
	})

	// DBQueueDroppedTotal counts persistence tasks dropped because the DB
	// writer's bounded channel was full, surfacing engine.go's enqueue
	// drop-and-warn path (§4.7.8).
	DBQueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meterd_db_queue_dropped_total",
		Help: "Persistence tasks dropped because the DB writer queue was full.",
	})

	// WSConnectionsActive tracks live connections to the /ws feed.
	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meterd_ws_connections_active",
		Help: "Currently connected live-feed WebSocket clients.",
	})

	// WSMessagesTotal counts live events relayed to WebSocket clients.
	WSMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meterd_ws_messages_total",
		Help: "Live events written to WebSocket clients.",
	})

	// RequestTotal and RequestDuration use the chi route pattern, not the
	// raw URL, as the label value to keep cardinality bounded.
	RequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meterd_http_requests_total",
		Help: "Command-surface HTTP requests.",
	}, []string{"method", "route", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meterd_http_request_duration_seconds",
		Help:    "Command-surface HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler returns the /metrics scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }

// RecordRequest records one completed HTTP request's outcome.
func RecordRequest(method, route string, status int, d time.Duration) {
	RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	RequestTotal.WithLabelValues(method, route, http.StatusText(status)).Inc()
}
