package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check the trading wallet's balances",
	Long: `Display the balances the balance guard watches:
- USDC balance (trading collateral)
- USDC allowance (approved to the CTF Exchange)
- MATIC balance (gas)

The address defaults to POLYMARKET_PROXY_ADDRESS, then to the signer derived
from POLYMARKET_PRIVATE_KEY.`,
	Args: cobra.NoArgs,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().String("address", "", "Wallet address to inspect")
}

func runBalance(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	flagAddr, _ := cmd.Flags().GetString("address")
	address, err := walletAddress(cfg, flagAddr)
	if err != nil {
		return err
	}

	client, err := wallet.NewClient(cfg.PolygonRPCURL, logger)
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	balances, err := client.GetBalances(ctx, address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	fmt.Printf("Address:        %s\n\n", address.Hex())
	fmt.Printf("USDC:           %s\n", wallet.ToUSDC(balances.USDC).StringFixed(2))
	fmt.Printf("USDC allowance: %s\n", wallet.ToUSDC(balances.USDCAllowance).StringFixed(2))
	fmt.Printf("MATIC:          %.4f\n", balances.MATICFloat())

	if cfg.BalanceGuardEnabled && balances.USDCFloat() < cfg.BalanceMinUSDC {
		fmt.Printf("\nWARNING: USDC below the balance guard floor of %.2f; trading would be blocked\n", cfg.BalanceMinUSDC)
	}

	return nil
}

func walletAddress(cfg *config.Config, override string) (common.Address, error) {
	for _, candidate := range []string{override, cfg.PolymarketProxyAddr} {
		if candidate == "" {
			continue
		}
		if !common.IsHexAddress(candidate) {
			return common.Address{}, fmt.Errorf("invalid address %q", candidate)
		}
		return common.HexToAddress(candidate), nil
	}

	if cfg.PolymarketPrivateKey == "" {
		return common.Address{}, errors.New("no address: pass --address or set POLYMARKET_PRIVATE_KEY")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PolymarketPrivateKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}
