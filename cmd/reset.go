package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-updown/internal/app"
	"github.com/mselser95/polymarket-updown/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the trade store",
	Long: `Clears persisted history. The default (safe) reset removes trades and
order legs but keeps fill records and liquidity snapshots.

--destructive removes everything and requires --confirm with the exact token:
  polymarket-updown reset --destructive --confirm ` + storage.DestructiveResetToken,
	Args: cobra.NoArgs,
	RunE: runReset,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().Bool("destructive", false, "Also remove fill records and liquidity snapshots")
	resetCmd.Flags().String("confirm", "", "Confirmation token for --destructive")
}

func runReset(cmd *cobra.Command, _ []string) error {
	destructive, _ := cmd.Flags().GetBool("destructive")
	token, _ := cmd.Flags().GetString("confirm")

	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	before, err := store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}

	if destructive {
		err = store.ResetDestructive(ctx, token)
		if errors.Is(err, storage.ErrBadResetToken) {
			return fmt.Errorf("refusing destructive reset: pass --confirm %s", storage.DestructiveResetToken)
		}
	} else {
		err = store.ResetSafe(ctx)
	}
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	after, err := store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}

	logger.Info("store-reset",
		zap.Bool("destructive", destructive),
		zap.String("storage", cfg.StorageMode))

	fmt.Printf("%-22s %10s %10s\n", "TABLE", "BEFORE", "AFTER")
	fmt.Printf("%-22s %10d %10d\n", "trades", before.Trades, after.Trades)
	fmt.Printf("%-22s %10d %10d\n", "order_legs", before.OrderLegs, after.OrderLegs)
	fmt.Printf("%-22s %10d %10d\n", "fill_records", before.FillRecords, after.FillRecords)
	fmt.Printf("%-22s %10d %10d\n", "liquidity_snapshots", before.LiquiditySnapshots, after.LiquiditySnapshots)

	return nil
}
