package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TradesTotal counts trades by kind and terminal status.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_execution_trades_total",
			Help: "Total number of trades by kind and final status",
		},
		[]string{"kind", "status"},
	)

	// DiscardedTotal counts opportunities dropped before a trade was created.
	DiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_execution_discarded_total",
			Help: "Opportunities discarded before execution",
		},
		[]string{"reason"},
	)

	// ExecutionDurationSeconds tracks time from gate entry to terminal state.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_execution_duration_seconds",
		Help:    "Duration of trade execution",
		Buckets: prometheus.DefBuckets,
	})

	// LegRejectionsTotal counts rejected legs by error code.
	LegRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_execution_leg_rejections_total",
			Help: "Total number of rejected order legs",
		},
		[]string{"code"},
	)

	// RetriesTotal counts retried exchange calls.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_execution_retries_total",
		Help: "Total number of retried exchange calls",
	})

	// FillWaitSeconds tracks how long legs took to settle.
	FillWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_execution_fill_wait_seconds",
		Help:    "Time from submission until every leg settled",
		Buckets: prometheus.DefBuckets,
	})

	// FillTimeoutsTotal counts fill polls that gave up.
	FillTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_execution_fill_timeouts_total",
		Help: "Total number of fill polls that timed out",
	})

	// HedgeRatio tracks the hedge ratio at settlement of paired trades.
	HedgeRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_execution_hedge_ratio",
		Help:    "Hedge ratio of paired trades at settlement",
		Buckets: []float64{0, 0.2, 0.4, 0.6, 0.8, 0.9, 0.95, 1},
	})

	// RebalancesTotal counts rebalance attempts by result.
	RebalancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_execution_rebalances_total",
			Help: "Total number of rebalance attempts",
		},
		[]string{"result"},
	)

	// QueueDroppedTotal counts opportunities dropped because the queue was full.
	QueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_execution_queue_dropped_total",
		Help: "Opportunities dropped because the execution queue was full",
	})

	// Halted is 1 while trading is halted.
	Halted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_execution_halted",
		Help: "1 when trading is halted after an authentication failure",
	})

	// ProfitRealizedUSD tracks cumulative realized profit, which may go negative.
	ProfitRealizedUSD = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "updown_execution_profit_realized_usd",
			Help: "Cumulative realized profit by trade kind",
		},
		[]string{"kind"},
	)
)
