package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal tracks trade status transitions by target status.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_trade_transitions_total",
			Help: "Total number of trade status transitions",
		},
		[]string{"status"},
	)

	// LegUpdatesTotal tracks persisted leg states.
	LegUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_leg_updates_total",
			Help: "Total number of order leg updates persisted",
		},
		[]string{"status"},
	)

	// FillsTotal tracks fill records appended.
	FillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_fills_total",
		Help: "Total number of fill records",
	})

	// FillSlippage tracks fill price minus limit price.
	FillSlippage = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_fill_slippage",
		Help:    "Fill price minus signed limit price",
		Buckets: []float64{-0.05, -0.02, -0.01, -0.005, 0, 0.005, 0.01, 0.02, 0.05},
	})

	// TradeProfit tracks realized profit per resolved trade.
	TradeProfit = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_trade_profit_usd",
		Help:    "Realized profit per resolved trade in USD",
		Buckets: []float64{-10, -5, -1, -0.5, 0, 0.1, 0.25, 0.5, 1, 5},
	})
)
