package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks applied deltas by kind.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_orderbook_updates_total",
			Help: "Total number of book deltas applied",
		},
		[]string{"kind"},
	)

	// UpdatesIgnoredTotal tracks deltas for tokens that are not tracked.
	UpdatesIgnoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_orderbook_updates_ignored_total",
		Help: "Total number of book deltas for untracked tokens",
	})

	// UpdateProcessingDuration tracks the time to apply a delta and run observers.
	UpdateProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_orderbook_update_processing_seconds",
		Help:    "Time to apply one delta including opportunity observers",
		Buckets: prometheus.ExponentialBuckets(0.000005, 2, 16),
	})

	// MarketsTracked tracks the number of markets held by the tracker.
	MarketsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_orderbook_markets_tracked",
		Help: "Number of markets tracked",
	})

	// StaleMarkingsTotal tracks transitions into the stale state by cause.
	StaleMarkingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_orderbook_stale_markings_total",
			Help: "Total number of times a market was marked stale",
		},
		[]string{"cause"},
	)

	// StateEmissionsTotal tracks throttled state-change emissions.
	StateEmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_orderbook_state_emissions_total",
		Help: "Total number of state-change emissions after throttling",
	})

	// StateCoalescedTotal tracks state changes folded into a later emission.
	StateCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_orderbook_state_coalesced_total",
		Help: "Total number of state changes coalesced by the throttle",
	})
)
