package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mselser95/polymarket-updown/internal/execution"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var cancelOrdersCmd = &cobra.Command{
	Use:   "cancel-orders",
	Short: "Cancel all open orders on Polymarket",
	Long: `Cancel all open orders atomically using the /cancel-all endpoint.

Intended as a kill switch after an unhedged trade or a halt. Requires the live
trading credentials (POLYMARKET_API_KEY, POLYMARKET_SECRET, POLYMARKET_PASSPHRASE,
POLYMARKET_PRIVATE_KEY) and --yes.

Examples:
  polymarket-updown cancel-orders --yes`,
	Args: cobra.NoArgs,
	RunE: runCancelOrders,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(cancelOrdersCmd)
	cancelOrdersCmd.Flags().Bool("yes", false, "Confirm cancelling every open order")
}

func runCancelOrders(cmd *cobra.Command, _ []string) error {
	confirmed, _ := cmd.Flags().GetBool("yes")
	if !confirmed {
		return errors.New("refusing to cancel without --yes")
	}

	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch {
	case cfg.PolymarketAPIKey == "":
		return errors.New("POLYMARKET_API_KEY not set")
	case cfg.PolymarketSecret == "":
		return errors.New("POLYMARKET_SECRET not set")
	case cfg.PolymarketPassphrase == "":
		return errors.New("POLYMARKET_PASSPHRASE not set")
	case cfg.PolymarketPrivateKey == "":
		return errors.New("POLYMARKET_PRIVATE_KEY not set")
	}

	client, err := execution.NewClobClient(&execution.ClobConfig{
		BaseURL:       cfg.PolymarketCLOBURL,
		APIKey:        cfg.PolymarketAPIKey,
		Secret:        cfg.PolymarketSecret,
		Passphrase:    cfg.PolymarketPassphrase,
		PrivateKey:    cfg.PolymarketPrivateKey,
		ProxyAddress:  cfg.PolymarketProxyAddr,
		SignatureType: cfg.SignatureType,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create clob client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Canceling all orders for %s...\n", client.Address())
	result, err := client.CancelAll(ctx)
	if err != nil {
		return fmt.Errorf("cancel orders: %w", err)
	}

	displayCancelResults(result)
	return nil
}

func displayCancelResults(result *types.CancelResponse) {
	fmt.Println("\n========================================")
	fmt.Println("Cancellation Results")
	fmt.Println("========================================")

	fmt.Printf("Canceled: %d orders\n", len(result.Canceled))

	if len(result.NotCanceled) == 0 {
		return
	}

	fmt.Printf("Not canceled: %d orders\n", len(result.NotCanceled))
	fmt.Println("\nFailed cancellations:")

	ids := make([]string, 0, len(result.NotCanceled))
	for id := range result.NotCanceled {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, orderID := range ids {
		shortID := orderID
		if len(shortID) > 12 {
			shortID = shortID[:12] + "..."
		}
		fmt.Printf("  - %s: %s\n", shortID, result.NotCanceled[orderID])
	}
}
