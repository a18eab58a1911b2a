package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-updown/internal/app"
	"github.com/mselser95/polymarket-updown/internal/ledger"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Inspect the trade ledger",
	Long: `Reads trades from the configured store (STORAGE_MODE=postgres for history
that outlives the engine process).

Examples:
  polymarket-updown trades list --status UNHEDGED
  polymarket-updown trades list --market 512345 --limit 20
  polymarket-updown trades get 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
}

//nolint:gochecknoglobals // Cobra boilerplate
var tradesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent trades",
	Args:  cobra.NoArgs,
	RunE:  runTradesList,
}

//nolint:gochecknoglobals // Cobra boilerplate
var tradesGetCmd = &cobra.Command{
	Use:   "get <trade-id>",
	Short: "Show one trade with its order legs",
	Args:  cobra.ExactArgs(1),
	RunE:  runTradesGet,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(tradesCmd)
	tradesCmd.AddCommand(tradesListCmd, tradesGetCmd)

	tradesCmd.PersistentFlags().BoolP("json", "j", false, "Output JSON")
	tradesListCmd.Flags().String("market", "", "Filter by market ID")
	tradesListCmd.Flags().StringSlice("status", nil, "Filter by status (PENDING, SUBMITTED, PARTIALLY_FILLED, HEDGED, UNHEDGED, RESOLVED, CANCELLED)")
	tradesListCmd.Flags().IntP("limit", "n", 50, "Maximum trades to show")
}

// withLedger opens the configured store and hands a ledger over it to fn.
func withLedger(fn func(ctx context.Context, l *ledger.Ledger) error) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, ledger.New(store, logger))
}

func parseStatuses(raw []string) ([]ledger.Status, error) {
	statuses := make([]ledger.Status, 0, len(raw))
	for _, s := range raw {
		status := ledger.Status(strings.ToUpper(strings.TrimSpace(s)))
		switch status {
		case ledger.StatusPending, ledger.StatusSubmitted, ledger.StatusPartiallyFilled,
			ledger.StatusHedged, ledger.StatusUnhedged, ledger.StatusResolved, ledger.StatusCancelled:
			statuses = append(statuses, status)
		default:
			return nil, fmt.Errorf("unknown status %q", s)
		}
	}
	return statuses, nil
}

func runTradesList(cmd *cobra.Command, _ []string) error {
	marketID, _ := cmd.Flags().GetString("market")
	rawStatuses, _ := cmd.Flags().GetStringSlice("status")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	statuses, err := parseStatuses(rawStatuses)
	if err != nil {
		return err
	}

	return withLedger(func(ctx context.Context, l *ledger.Ledger) error {
		trades, err := l.List(ctx, ledger.Filter{
			MarketID: marketID,
			Statuses: statuses,
			Limit:    limit,
		})
		if err != nil {
			return fmt.Errorf("list trades: %w", err)
		}

		if jsonOutput {
			return writeJSON(os.Stdout, trades)
		}
		if len(trades) == 0 {
			fmt.Println("No trades found.")
			return nil
		}
		printTrades(os.Stdout, trades)
		return nil
	})
}

func runTradesGet(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return withLedger(func(ctx context.Context, l *ledger.Ledger) error {
		trade, err := l.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get trade: %w", err)
		}

		if jsonOutput {
			return writeJSON(os.Stdout, trade)
		}
		printTradeDetail(os.Stdout, trade)
		return nil
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTrades(out io.Writer, trades []*ledger.Trade) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tID\tMARKET\tKIND\tSTATUS\tHEDGE\tCOST\tPROFIT")
	for _, t := range trades {
		profit := "-"
		if t.Status == ledger.StatusResolved {
			profit = fmt.Sprintf("%.4f", t.ActualProfit)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\t%.4f\t%s\n",
			t.CreatedAt.Format("01-02 15:04:05"),
			t.ID,
			t.MarketSlug,
			t.Kind,
			t.Status,
			t.HedgeRatio(),
			t.Cost(),
			profit)
	}
	_ = w.Flush()
}

func printTradeDetail(out io.Writer, t *ledger.Trade) {
	fmt.Fprintf(out, "Trade:    %s\n", t.ID)
	fmt.Fprintf(out, "Market:   %s (%s)\n", t.MarketSlug, t.MarketID)
	fmt.Fprintf(out, "Kind:     %s\n", t.Kind)
	fmt.Fprintf(out, "Status:   %s\n", t.Status)
	if t.Unhedged {
		fmt.Fprintln(out, "Unhedged: yes")
	}
	if t.Reason != "" {
		fmt.Fprintf(out, "Reason:   %s\n", t.Reason)
	}
	fmt.Fprintf(out, "Expected: %.4f\n", t.ExpectedProfit)
	if t.ResolvedAt != nil {
		fmt.Fprintf(out, "Actual:   %.4f (resolved %s)\n", t.ActualProfit, t.ResolvedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEG\tOUTCOME\tPRICE\tSIZE\tSTATUS\tFILLED\tFILL PRICE\tORDER")
	for _, leg := range t.Legs {
		name := leg.ID
		if leg.Rebalance {
			name += " (rebalance)"
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.2f\t%s\t%.2f\t%.4f\t%s\n",
			name, leg.Outcome, leg.Price, leg.Size, leg.Status, leg.FilledSize, leg.FillPrice, leg.OrderID)
	}
	_ = w.Flush()
}
