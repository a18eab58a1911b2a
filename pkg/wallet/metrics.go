package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// MATICBalance tracks the current MATIC balance for gas fees.
	MATICBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_matic_balance",
		Help: "Current MATIC balance in wallet (native units)",
	})

	// USDCBalance tracks the current USDC balance for trading.
	USDCBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_usdc_balance",
		Help: "Current USDC balance in wallet (USD)",
	})

	// USDCAllowance tracks the USDC allowance approved to CTF Exchange.
	USDCAllowance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_usdc_allowance",
		Help: "USDC allowance approved to CTF Exchange (USD)",
	})
)
