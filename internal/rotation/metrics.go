package rotation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttachedMarkets is the number of markets currently tracked by rotation.
	AttachedMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_rotation_attached_markets",
		Help: "Markets currently attached by rotation",
	})

	// AttachTotal counts market attachments.
	AttachTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_rotation_attach_total",
		Help: "Total number of market attachments",
	}, []string{"asset"})

	// DetachTotal counts market detachments.
	DetachTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_rotation_detach_total",
		Help: "Total number of market detachments",
	}, []string{"asset"})

	// LookupErrorsTotal counts failed Gamma lookups.
	LookupErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_rotation_lookup_errors_total",
		Help: "Total number of failed Gamma lookups",
	})

	// LookupDuration tracks Gamma lookup latency.
	LookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_rotation_lookup_duration_seconds",
		Help:    "Gamma lookup latency",
		Buckets: prometheus.DefBuckets,
	})
)
