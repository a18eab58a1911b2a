package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCommands_Registered tests every subcommand is reachable from the root.
func TestCommands_Registered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"run", "trades", "reset", "balance", "cancel-orders", "watch-orderbook"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestRunCommand_Flags(t *testing.T) {
	assets := runCmd.Flags().Lookup("assets")
	require.NotNil(t, assets)
	assert.Equal(t, "a", assets.Shorthand)

	cfgFlag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "c", cfgFlag.Shorthand)
}

func TestParseStatuses(t *testing.T) {
	statuses, err := parseStatuses([]string{"hedged", " UNHEDGED "})
	require.NoError(t, err)
	assert.Equal(t, []ledger.Status{ledger.StatusHedged, ledger.StatusUnhedged}, statuses)

	_, err = parseStatuses([]string{"FILLED"})
	assert.Error(t, err)
}

func TestWalletAddress(t *testing.T) {
	// Well-known hardhat account #0.
	const key = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	signer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	proxy := "0x1111111111111111111111111111111111111111"

	tests := []struct {
		name     string
		cfg      *config.Config
		override string
		want     common.Address
		wantErr  bool
	}{
		{name: "override wins", cfg: &config.Config{PolymarketProxyAddr: proxy}, override: signer.Hex(), want: signer},
		{name: "proxy before signer", cfg: &config.Config{PolymarketProxyAddr: proxy, PolymarketPrivateKey: key}, want: common.HexToAddress(proxy)},
		{name: "derived from key", cfg: &config.Config{PolymarketPrivateKey: key}, want: signer},
		{name: "invalid override", cfg: &config.Config{}, override: "not-an-address", wantErr: true},
		{name: "nothing configured", cfg: &config.Config{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := walletAddress(tt.cfg, tt.override)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintTrades(t *testing.T) {
	created := time.Date(2025, 10, 15, 14, 15, 3, 0, time.UTC)
	trades := []*ledger.Trade{
		{
			ID:           "t-1",
			MarketSlug:   "btc-updown-15m-1760537700",
			Kind:         "ARBITRAGE",
			Status:       ledger.StatusResolved,
			ActualProfit: 0.42,
			CreatedAt:    created,
		},
		{
			ID:         "t-2",
			MarketSlug: "eth-updown-15m-1760537700",
			Kind:       "DIRECTIONAL",
			Status:     ledger.StatusHedged,
			CreatedAt:  created,
		},
	}

	var buf bytes.Buffer
	printTrades(&buf, trades)
	out := buf.String()

	assert.Contains(t, out, "btc-updown-15m-1760537700")
	assert.Contains(t, out, "0.4200")
	assert.Contains(t, out, "HEDGED")
	assert.Contains(t, out, "10-15 14:15:03")
}

func TestPrintTradeDetail_ShowsLegs(t *testing.T) {
	trade := &ledger.Trade{
		ID:         "t-1",
		MarketID:   "512345",
		MarketSlug: "btc-updown-15m-1760537700",
		Kind:       "ARBITRAGE",
		Status:     ledger.StatusUnhedged,
		Unhedged:   true,
		Reason:     "hedge ratio 0.50 below 0.80",
		Legs: []*ledger.OrderLeg{
			{ID: "l-1", Outcome: types.OutcomeYes, Price: 0.48, Size: 10, Status: ledger.LegMatched, FilledSize: 10, FillPrice: 0.48},
			{ID: "l-2", Outcome: types.OutcomeNo, Price: 0.49, Size: 5, Rebalance: true},
		},
	}

	var buf bytes.Buffer
	printTradeDetail(&buf, trade)
	out := buf.String()

	assert.Contains(t, out, "Unhedged: yes")
	assert.Contains(t, out, "hedge ratio 0.50 below 0.80")
	assert.Contains(t, out, "l-2 (rebalance)")
}

func TestDisplayCancelResults_NoPanicOnEmpty(t *testing.T) {
	assert.NotPanics(t, func() {
		displayCancelResults(&types.CancelResponse{})
		displayCancelResults(&types.CancelResponse{
			Canceled:    []string{"0xabc"},
			NotCanceled: map[string]string{"0xdef0123456789": "matched"},
		})
	})
}
