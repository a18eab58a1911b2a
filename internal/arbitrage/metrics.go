package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesDetectedTotal tracks opportunities detected by kind.
	OpportunitiesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_opportunities_detected_total",
			Help: "Total number of opportunities detected",
		},
		[]string{"kind"},
	)

	// OpportunityExpectedProfit tracks expected profit in USDC.
	OpportunityExpectedProfit = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "updown_opportunity_expected_profit_usd",
			Help:    "Expected profit of detected opportunities in USD",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		},
		[]string{"kind"},
	)

	// OpportunitySpread tracks 1 - (yes_ask + no_ask) on evaluated books.
	OpportunitySpread = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_book_spread",
		Help:    "Arbitrage spread observed on evaluated books",
		Buckets: []float64{-0.1, -0.05, -0.02, -0.01, 0, 0.01, 0.02, 0.05, 0.1},
	})
)
