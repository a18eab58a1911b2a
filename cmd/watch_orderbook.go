package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mselser95/polymarket-updown/internal/rotation"
	"github.com/mselser95/polymarket-updown/pkg/types"
	"github.com/mselser95/polymarket-updown/pkg/websocket"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchOrderbookCmd = &cobra.Command{
	Use:   "watch-orderbook [market-slug]",
	Short: "Watch top-of-book updates for one window",
	Long: `Connects to the Polymarket market WebSocket and prints best bid/ask
updates for both outcome tokens of one window. Without a slug, the current
window of --asset is used.

Examples:
  polymarket-updown watch-orderbook --asset eth
  polymarket-updown watch-orderbook btc-updown-15m-1760537700`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchOrderbook,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchOrderbookCmd)
	watchOrderbookCmd.Flags().String("asset", "btc", "Asset whose current window to watch when no slug is given")
}

func runWatchOrderbook(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	slug := ""
	if len(args) == 1 {
		slug = args[0]
	} else {
		asset, _ := cmd.Flags().GetString("asset")
		slug = rotation.Slug(asset, rotation.SlotStart(time.Now(), cfg.RotationPeriod))
	}

	market, err := rotation.NewGammaClient(cfg.PolymarketGammaURL, logger).MarketBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("fetch market %s: %w", slug, err)
	}

	up := market.TokenByOutcome(types.OutcomeYes)
	down := market.TokenByOutcome(types.OutcomeNo)
	if up == nil || down == nil {
		return errors.New("market missing up or down token")
	}

	fmt.Printf("Market:  %s\n", market.Question)
	fmt.Printf("Slug:    %s\n", market.Slug)
	fmt.Printf("Ends:    %s\n", market.EndDate.Format(time.RFC3339))
	fmt.Printf("Up:      %s\n", up.TokenID)
	fmt.Printf("Down:    %s\n\n", down.TokenID)

	feed := websocket.New(websocket.Config{
		URL:                   cfg.PolymarketWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
		OnDiscontinuity: func([]string) {
			fmt.Println("-- feed reconnected, book may have gaps --")
		},
	})

	err = feed.Start()
	if err != nil {
		return fmt.Errorf("start websocket: %w", err)
	}
	defer feed.Close()

	err = feed.Subscribe(ctx, []string{up.TokenID, down.TokenID})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Println("Subscribed! Watching for book updates...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	deltas := feed.DeltaChan()

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case delta, ok := <-deltas:
			if !ok {
				return errors.New("delta channel closed")
			}
			printDelta(w, delta, up.TokenID)
		}
	}
}

func printDelta(w *tabwriter.Writer, delta *types.BookDelta, upTokenID string) {
	outcome := "DOWN"
	if delta.TokenID == upTokenID {
		outcome = "UP"
	}

	bid, ask := "-", "-"
	if delta.HasBid {
		bid = fmt.Sprintf("%.3f@%.1f", delta.BestBid, delta.BestBidSize)
	}
	if delta.HasAsk {
		ask = fmt.Sprintf("%.3f@%.1f", delta.BestAsk, delta.BestAskSize)
	}

	kind := "book"
	if delta.Kind == types.DeltaChange {
		kind = "price_change"
	}

	fmt.Fprintf(w, "[%s] %s\t%s\tBid: %s\tAsk: %s\n",
		delta.ReceivedAt.Format("15:04:05.000"), outcome, kind, bid, ask)
	_ = w.Flush()
}
