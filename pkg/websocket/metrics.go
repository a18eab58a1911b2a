package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks active WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_ws_active_connections",
		Help: "Number of active market feed connections",
	})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_ws_reconnect_attempts_total",
		Help: "Total number of market feed reconnection attempts",
	})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_ws_reconnect_failures_total",
		Help: "Total number of market feed reconnection failures",
	})

	// MessagesReceivedTotal tracks events received by type.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_ws_messages_received_total",
			Help: "Total number of market feed events received",
		},
		[]string{"event_type"},
	)

	// MessageLatencySeconds tracks frame normalization latency.
	MessageLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_ws_message_latency_seconds",
		Help:    "Market feed frame processing latency",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
	})

	// SubscriptionCount tracks subscribed tokens.
	SubscriptionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_ws_subscription_count",
		Help: "Number of subscribed tokens",
	})

	// DeliveryBlockedTotal counts reads held back by a full delta channel.
	DeliveryBlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_ws_delivery_blocked_total",
		Help: "Total number of times the reader waited on a full delta channel",
	})

	// ConnectionDuration tracks connection lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_ws_connection_duration_seconds",
		Help:    "Duration of market feed connections before disconnect",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800, 43200, 86400},
	})

	// UnsubscriptionsTotal tracks unsubscribe requests.
	UnsubscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_ws_unsubscriptions_total",
		Help: "Total number of token unsubscriptions",
	})

	// DiscontinuitiesTotal counts stream drops reported downstream.
	DiscontinuitiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_ws_discontinuities_total",
		Help: "Total number of market feed discontinuities",
	})

	// AuthFailuresTotal counts 403 handshake rejections.
	AuthFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_ws_auth_failures_total",
		Help: "Total number of market feed connections rejected with 403",
	})
)
