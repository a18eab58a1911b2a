package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal tracks events accepted for broadcast.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_telemetry_events_total",
			Help: "Total number of telemetry events emitted",
		},
		[]string{"type"},
	)

	// EventsDroppedTotal tracks events dropped because the buffer was full.
	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_telemetry_events_dropped_total",
		Help: "Total number of telemetry events dropped due to a full buffer",
	})

	// PublishErrorsTotal tracks failed sink publishes.
	PublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_telemetry_publish_errors_total",
			Help: "Total number of failed telemetry publishes by sink",
		},
		[]string{"sink"},
	)

	// HubClients tracks connected WebSocket consumers.
	HubClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_telemetry_hub_clients",
		Help: "Number of connected telemetry WebSocket clients",
	})

	// HubDroppedClientsTotal tracks clients disconnected for being too slow.
	HubDroppedClientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_telemetry_hub_dropped_clients_total",
		Help: "Total number of slow telemetry clients disconnected",
	})
)
