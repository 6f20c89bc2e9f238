package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fusion-trader/internal/engine"
	"fusion-trader/internal/errors"
	"fusion-trader/internal/logging"
	"fusion-trader/internal/market"
	"fusion-trader/internal/memory"
	"fusion-trader/internal/models"
	"fusion-trader/pkg/utils"
)

func newRunCmd(app *App) *cobra.Command {
	var (
		once bool
		seed int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision loop against the paper exchange",
		Long: `Runs decision cycles at the configured interval until interrupted, the
risk breaker trips, or the portfolio target is reached. Market data comes
from a deterministic simulated feed; orders fill on a paper exchange.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.Wrap(errors.ErrConfigInvalid, "memory store unavailable")
			}

			cfg := app.Config
			feed := market.NewSimulatedFeed(seed, 50000)
			exchange := market.NewPaperExchange(cfg.Trading.InitialBalance, feed.Last)
			sentiment := market.StaticSentiment{Reading: models.NeutralSentiment()}

			eng := engine.New(engine.Config{
				Pair:            cfg.Trading.Pair,
				Lookback:        cfg.Trading.Lookback,
				TradePercent:    cfg.Trading.TradePercent,
				SentimentWeight: cfg.Trading.SentimentWeight,
				TargetValue:     cfg.Trading.TargetValue,
				Risk:            cfg.RiskSettings(),
			}, app.Store, retryingData{feed}, sentiment, exchange,
				logging.WithOperation(app.Logger, "run"))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			interval := time.Duration(cfg.Trading.IntervalMinutes) * time.Minute
			if once {
				halted, err := runCycle(ctx, eng, app.Store, output)
				if err != nil {
					return err
				}
				if halted {
					output.Warning("Engine halted: %s", eng.HaltReason())
					return errors.NewRiskHaltError(eng.HaltReason())
				}
				return nil
			}

			output.Info("Running every %s on %s, Ctrl-C to stop", interval, cfg.Trading.Pair)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				halted, err := runCycle(ctx, eng, app.Store, output)
				if err != nil {
					return err
				}
				if halted {
					output.Warning("Engine halted: %s", eng.HaltReason())
					return errors.NewRiskHaltError(eng.HaltReason())
				}

				select {
				case <-ctx.Done():
					output.Dim("Interrupted")
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single decision cycle and exit")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "seed for the simulated price feed")
	return cmd
}

func runCycle(ctx context.Context, eng *engine.Engine, store *memory.Store, output *Output) (bool, error) {
	decision, err := eng.RunCycle(ctx)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrInsufficientHistory), errors.Is(err, errors.ErrInvalidInput):
			// Pipeline errors become an annotated HOLD instead of ending the run.
			decision = &models.Decision{
				Timestamp:  time.Now(),
				Action:     models.ActionHold,
				Reason:     err.Error(),
				Reasoning:  "HOLD: " + err.Error(),
				Thresholds: models.DefaultThresholds(),
			}
			if recErr := store.RecordDecision(ctx, decision); recErr != nil {
				return false, recErr
			}
		default:
			var collab *errors.CollaboratorError
			if errors.As(err, &collab) {
				output.Warning("Collaborator failed, skipping cycle: %v", collab)
				return false, nil
			}
			return false, err
		}
	}

	if output.IsJSON() {
		output.JSON(decision)
	} else {
		output.Printf("%s  final=%.2f  confidence=%.0f%%  %s\n",
			output.ActionText(string(decision.Action)),
			decision.FinalSignal, decision.Confidence, decision.Reason)
	}
	return eng.Halted(), nil
}

// retryingData retries transient market data failures before the engine
// sees them.
type retryingData struct {
	inner market.MarketData
}

func (r retryingData) Candles(ctx context.Context, pair string, lookback int) ([]models.Candle, error) {
	return utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() ([]models.Candle, error) {
		return r.inner.Candles(ctx, pair, lookback)
	})
}
