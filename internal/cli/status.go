package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/models"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show position, performance and risk state",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.Wrap(errors.ErrConfigInvalid, "memory store unavailable")
			}
			ctx := cmd.Context()

			pos, err := app.Store.OpenPosition(ctx)
			if err != nil {
				return err
			}
			stats, err := app.Store.PerformanceStats(ctx)
			if err != nil {
				return err
			}
			today, err := app.Store.TodayStats(ctx, time.Now())
			if err != nil {
				return err
			}
			thresholds, err := app.Store.AdaptiveThresholds(ctx)
			if err != nil {
				return err
			}
			// The breaker is stateless, so recompute the streak side of it
			// here; the drawdown side needs a live portfolio value and only
			// the run loop sees one.
			risk := app.Config.RiskSettings()
			stopped := stats.ConsecutiveLosses >= risk.MaxConsecutiveLosses

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"position":   pos,
					"stats":      stats,
					"today":      today,
					"thresholds": thresholds,
					"stopped":    stopped,
				})
			}

			output.Bold("Position")
			if pos == nil {
				output.Dim("  flat")
			} else {
				output.Printf("  %s %.6f @ %.2f (%s)\n",
					output.ActionText(string(pos.Action)), pos.Amount, pos.Price,
					pos.Timestamp.Format("2006-01-02 15:04"))
				if pos.UnrealizedPct != nil {
					output.Printf("  Unrealized: %s\n", output.FormatPercent(*pos.UnrealizedPct))
				}
			}
			output.Println()

			output.Bold("Performance")
			output.Printf("  Trades:      %d (%d closed)\n", stats.TotalTrades, stats.ClosedTrades)
			output.Printf("  Win rate:    %.1f%% (%dW / %dL)\n", stats.WinRate, stats.Wins, stats.Losses)
			output.Printf("  Avg win:     %s   Avg loss: %s\n",
				output.FormatPercent(stats.AvgProfit), output.FormatPercent(stats.AvgLoss))
			output.Printf("  Best/Worst:  %s / %s\n",
				output.FormatPercent(stats.BestTrade), output.FormatPercent(stats.WorstTrade))
			output.Printf("  Loss streak: %d\n", stats.ConsecutiveLosses)
			output.Println()

			output.Bold("Today")
			output.Printf("  Trades: %d   Closed: %d   P/L: %s\n",
				today.Trades, today.Closed, output.FormatPercent(today.ProfitLossPct))
			output.Println()

			output.Bold("Thresholds")
			output.Printf("  RSI oversold/overbought: %.0f / %.0f\n",
				thresholds.RSIOversold, thresholds.RSIOverbought)
			output.Printf("  Min signal strength:     %.1f\n", thresholds.MinSignalStrength)
			if tightened(thresholds) {
				output.Warning("  tightened by recent performance")
			}
			output.Println()

			output.Bold("Risk")
			if stopped {
				output.Error("  STOPPED: %d consecutive losses (max %d)",
					stats.ConsecutiveLosses, risk.MaxConsecutiveLosses)
			} else {
				output.Success("  active (loss streak %d of %d)",
					stats.ConsecutiveLosses, risk.MaxConsecutiveLosses)
			}
			return nil
		},
	}
}

func tightened(th models.AdaptiveThresholds) bool {
	return th != models.DefaultThresholds()
}

func newMemoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the trade and decision ledgers",
	}

	var limit int
	trades := &cobra.Command{
		Use:   "trades",
		Short: "List recorded trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.Wrap(errors.ErrConfigInvalid, "memory store unavailable")
			}

			records, err := app.Store.Trades(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}

			table := NewTable(output, "ID", "TIME", "ACTION", "AMOUNT", "PRICE", "OUTCOME", "P/L")
			for _, t := range records {
				outcome, pl := "-", "-"
				if t.Outcome != nil {
					outcome = string(*t.Outcome)
				}
				if t.ProfitLossPct != nil {
					pl = output.FormatPercent(*t.ProfitLossPct)
				}
				table.AddRow(
					fmt.Sprintf("%d", t.ID),
					t.Timestamp.Format("2006-01-02 15:04"),
					output.ActionText(string(t.Action)),
					fmt.Sprintf("%.6f", t.Amount),
					fmt.Sprintf("%.2f", t.Price),
					outcome, pl,
				)
			}
			table.Render()
			return nil
		},
	}
	trades.Flags().IntVar(&limit, "limit", 20, "max rows to show")

	var decisionLimit int
	decisions := &cobra.Command{
		Use:   "decisions",
		Short: "List recent decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.Wrap(errors.ErrConfigInvalid, "memory store unavailable")
			}

			records, err := app.Store.RecentDecisions(cmd.Context(), decisionLimit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}

			table := NewTable(output, "TIME", "ACTION", "FINAL", "CONF", "REASON")
			for _, d := range records {
				table.AddRow(
					d.Timestamp.Format("2006-01-02 15:04"),
					output.ActionText(string(d.Action)),
					fmt.Sprintf("%+.2f", d.FinalSignal),
					fmt.Sprintf("%.0f%%", d.Confidence),
					d.Reason,
				)
			}
			table.Render()
			return nil
		},
	}
	decisions.Flags().IntVar(&decisionLimit, "limit", 20, "max rows to show")

	cmd.AddCommand(trades)
	cmd.AddCommand(decisions)
	return cmd
}
