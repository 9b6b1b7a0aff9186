package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "trip_tracking", Name: "connections_active", Help: "Currently open websocket connections"})

	JoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_tracking", Name: "room_joins_total", Help: "Successful room admissions"},
		[]string{"role"},
	)
	JoinRejectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_tracking", Name: "room_join_rejects_total", Help: "Rejected room admissions"},
		[]string{"reason"},
	)

	LocationUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "location_updates_total", Help: "Driver location updates accepted"})
	ArrivalsTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "arrivals_total", Help: "DRIVER_REACHED notifications published"})

	RelayPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_tracking", Name: "relay_published_total", Help: "Messages published to the relay"},
		[]string{"channel"},
	)
	RelayReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_tracking", Name: "relay_received_total", Help: "Messages received from the relay"},
		[]string{"channel"},
	)
	RelayErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "relay_errors_total", Help: "Relay publish/subscribe errors"})

	DispatchDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_tracking", Name: "dispatch_dropped_total", Help: "Outbound events dropped due to send failures"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_tracking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trip_tracking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
