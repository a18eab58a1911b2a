package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsTotal tracks raised alerts by severity.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_alerts_total",
			Help: "Total number of alerts raised",
		},
		[]string{"severity"},
	)

	// AlertsDroppedTotal tracks alerts dropped because the queue was full.
	AlertsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_alerts_dropped_total",
		Help: "Total number of alerts dropped due to a full queue",
	})

	// SendErrorsTotal tracks failed deliveries by sender.
	SendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_alert_send_errors_total",
			Help: "Total number of failed alert deliveries",
		},
		[]string{"sender"},
	)
)
