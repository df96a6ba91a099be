package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every fleet collector. It is private to the process so tests
// can import packages that record metrics without touching the default registry.
var Registry = prometheus.NewRegistry()

var (
	// CommandsSent counts car commands by kind (ride/lock) and outcome
	// (confirmed, rejected, timeout, cancelled, publish_failed).
	CommandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_car_commands_total",
			Help: "Car commands sent, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// AckLatency observes the time between publishing a command and receiving its acknowledgement.
	AckLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_car_ack_latency_seconds",
			Help:    "Latency between a car command and its acknowledgement.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// PendingReplies is the number of commands currently awaiting an acknowledgement.
	PendingReplies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_pending_replies",
			Help: "Car commands currently awaiting an acknowledgement.",
		},
	)

	// UnmatchedAcks counts acknowledgements that arrived with no pending wait (late or unknown).
	UnmatchedAcks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_unmatched_acks_total",
			Help: "Acknowledgements that matched no pending command.",
		},
	)

	// Reservations counts reservation attempts by result: ok, cancelled, error or an error kind such as ON_COOLDOWN.
	Reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_reservations_total",
			Help: "Reservation attempts, by result.",
		},
		[]string{"result"},
	)

	// RideStarts counts ride start attempts by result.
	RideStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_ride_starts_total",
			Help: "Ride start attempts, by result.",
		},
		[]string{"result"},
	)

	// TelemetryApplied counts state updates by source (amqp/admin) and result.
	TelemetryApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_telemetry_updates_total",
			Help: "Car state updates, by source and result.",
		},
		[]string{"source", "result"},
	)

	// MessagesConsumed counts deliveries by queue and disposition (ack/requeue/drop).
	MessagesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_messages_consumed_total",
			Help: "AMQP deliveries handled, by queue and disposition.",
		},
		[]string{"queue", "disposition"},
	)

	// BrokerReconnects counts successful RabbitMQ reconnects.
	BrokerReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_broker_reconnects_total",
			Help: "Successful RabbitMQ reconnects.",
		},
	)

	// HTTPRequests counts HTTP requests by route template, method and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_http_requests_total",
			Help: "HTTP requests, by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		CommandsSent,
		AckLatency,
		PendingReplies,
		UnmatchedAcks,
		Reservations,
		RideStarts,
		TelemetryApplied,
		MessagesConsumed,
		BrokerReconnects,
		HTTPRequests,
	)
}

// Handler serves the fleet registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
