package cmd

import (
	"fmt"

	"github.com/mselser95/polymarket-updown/internal/app"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading engine",
	Long: `Starts the engine, which will:
1. Attach the current 15-minute window of every configured asset
2. Track both outcome books over the market WebSocket
3. Detect arbitrage, directional and near-resolution opportunities
4. Execute them (paper mode by default) and settle trades on resolution

Use --assets to trade a subset, e.g. a single asset for debugging.`,
	Args: cobra.NoArgs,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceP("assets", "a", nil, "Assets to trade (overrides ROTATION_ASSETS), e.g. btc,eth")
}

func runEngine(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	assets, _ := cmd.Flags().GetStringSlice("assets")

	opts := &app.Options{
		Assets: assets,
	}

	application, err := app.New(cfg, logger, opts)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
