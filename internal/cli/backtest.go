package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fusion-trader/internal/engine"
	"fusion-trader/internal/market"
	"fusion-trader/internal/models"
)

func newBacktestCmd(app *App) *cobra.Command {
	var (
		bars    int
		seed    int64
		capital float64
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the technical signal over a historical series",
		Long: `Replays the four-rule technical signal bar by bar against a simulated
balance and reports the result next to a buy-and-hold baseline. The series
comes from the deterministic simulated feed; no memory or live state is
touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config

			if capital == 0 {
				capital = cfg.Backtest.InitialCapital
			}

			feed := market.NewSimulatedFeed(seed, 50000)
			series, err := feed.Candles(context.Background(), cfg.Trading.Pair, bars)
			if err != nil {
				return err
			}

			result, err := engine.Backtest(series, engine.BacktestConfig{
				InitialCapital: capital,
				TradeAmount:    cfg.Backtest.TradeAmount,
				Thresholds:     models.DefaultThresholds(),
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}

			output.Bold("Backtest: %s over %d bars", cfg.Trading.Pair, result.BarsReplayed)
			output.Printf("  Initial capital:  %.2f\n", result.InitialCapital)
			output.Printf("  Final value:      %.2f (%s)\n", result.FinalValue, output.FormatPercent(result.ReturnPct))
			output.Printf("  Buy and hold:     %.2f (%s)\n", result.BuyHoldValue, output.FormatPercent(result.BuyHoldReturnPct))
			output.Printf("  Trades:           %d\n", len(result.Trades))

			if len(result.Trades) > 0 {
				output.Println()
				table := NewTable(output, "TIME", "ACTION", "PRICE", "QUANTITY", "CASH")
				for _, t := range result.Trades {
					table.AddRow(
						t.Timestamp.Format("2006-01-02"),
						output.ActionText(string(t.Action)),
						fmt.Sprintf("%.2f", t.Price),
						fmt.Sprintf("%.6f", t.Quantity),
						fmt.Sprintf("%.2f", t.Cash),
					)
				}
				table.Render()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&bars, "bars", 200, "number of candles to replay")
	cmd.Flags().Int64Var(&seed, "seed", 42, "seed for the simulated price feed")
	cmd.Flags().Float64Var(&capital, "capital", 0, "starting capital (default from config)")
	return cmd
}
