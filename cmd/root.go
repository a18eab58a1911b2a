package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarket-updown",
	Short: "Polymarket 15-minute up/down trading engine",
	Long: `Trading engine for Polymarket's rolling 15-minute "up or down" crypto markets.

The engine attaches each asset's current window as it opens, keeps the best
bid/ask of both outcome tokens from the market WebSocket, and trades three
conditions: paired arbitrage when both asks sum below one, directional entries
on a deeply discounted side early in the window, and near-resolution entries
on a near-certain side in the final minute. Every trade is tracked through a
hedge-aware lifecycle and settled when the window resolves.`,
	SilenceUsage: true,
}

//nolint:gochecknoglobals // Cobra boilerplate
var configPath string

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file (environment variables win)")
}

// loadConfig reads .env (if present), the optional config file and the environment.
func loadConfig() (*config.Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// loadConfigAndLogger is the common preamble of the one-shot commands.
func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := config.NewCLILogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}
