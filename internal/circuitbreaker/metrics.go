package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerOpen is the number of open breakers per scope.
	BreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "updown_circuit_breaker_open",
			Help: "Open circuit breakers by scope",
		},
		[]string{"scope"},
	)

	// TripsTotal counts breaker trips.
	TripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"scope", "source"},
	)

	// ResetsTotal counts breaker resets.
	ResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_circuit_breaker_resets_total",
			Help: "Total number of circuit breaker resets",
		},
		[]string{"scope"},
	)

	// BalanceGuardBalance tracks the last checked USDC balance.
	BalanceGuardBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_balance_guard_balance_usdc",
		Help: "Last checked USDC balance in the wallet",
	})

	// BalanceGuardDisableThreshold tracks the current threshold for disabling execution.
	BalanceGuardDisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_balance_guard_disable_threshold_usdc",
		Help: "USDC balance below which the global breaker trips",
	})

	// BalanceGuardCheckDuration tracks the time taken to check balance.
	BalanceGuardCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_balance_guard_check_duration_seconds",
		Help:    "Time taken to check wallet balance",
		Buckets: prometheus.DefBuckets,
	})
)
