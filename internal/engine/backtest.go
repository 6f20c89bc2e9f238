package engine

import (
	"time"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/indicators"
	"fusion-trader/internal/models"
	"fusion-trader/internal/signal"
)

// BacktestConfig parameterizes a historical replay.
type BacktestConfig struct {
	// InitialCapital in quote currency.
	InitialCapital float64
	// TradeAmount is the most quote currency committed per entry. Zero
	// means all remaining cash.
	TradeAmount float64
	// Thresholds used for the whole run; adaptive tightening does not
	// apply in replay.
	Thresholds models.AdaptiveThresholds
}

// BacktestTrade is one simulated fill.
type BacktestTrade struct {
	Timestamp time.Time
	Action    models.Action
	Price     float64
	Quantity  float64
	Cash      float64
	Strength  float64
}

// BacktestResult summarizes a replay, including a buy-and-hold baseline
// converted at the first replayed bar.
type BacktestResult struct {
	InitialCapital   float64
	FinalValue       float64
	ReturnPct        float64
	BuyHoldValue     float64
	BuyHoldReturnPct float64
	Trades           []BacktestTrade
	BarsReplayed     int
}

// Backtest replays the four-rule technical signal over series, bar by bar
// from the first row where the signal can be evaluated. A strength of +2 or
// more buys; -2 or less while holding liquidates. No sentiment, no memory,
// no side effects.
func Backtest(series []models.Candle, cfg BacktestConfig) (*BacktestResult, error) {
	if cfg.InitialCapital <= 0 {
		return nil, errors.NewValidationError("InitialCapital", cfg.InitialCapital, "must be positive")
	}

	frame, err := indicators.Compute(series)
	if err != nil {
		return nil, err
	}

	first := frame.FirstSignalReady()
	if first == -1 || !frame.SignalReady(first+1) {
		return nil, errors.Wrapf(errors.ErrInsufficientHistory,
			"no replayable rows in %d bars", frame.Len())
	}

	cash := cfg.InitialCapital
	held := 0.0
	result := &BacktestResult{InitialCapital: cfg.InitialCapital}

	// Replay starts at the first row with a signal-ready predecessor.
	start := first + 1
	for i := start; i < frame.Len(); i++ {
		if !frame.SignalReady(i) {
			continue
		}
		result.BarsReplayed++

		reading := signal.ReduceAt(frame, i-1, i, cfg.Thresholds)
		price := frame.Candles[i].Close

		switch {
		case reading.Bias() == models.ActionBuy && cash > 0:
			amount := cash
			if cfg.TradeAmount > 0 && cfg.TradeAmount < amount {
				amount = cfg.TradeAmount
			}
			held += amount / price
			cash -= amount
			result.Trades = append(result.Trades, BacktestTrade{
				Timestamp: frame.Candles[i].Timestamp,
				Action:    models.ActionBuy,
				Price:     price,
				Quantity:  amount / price,
				Cash:      cash,
				Strength:  reading.Strength,
			})

		case reading.Bias() == models.ActionSell && held > 0:
			cash += held * price
			result.Trades = append(result.Trades, BacktestTrade{
				Timestamp: frame.Candles[i].Timestamp,
				Action:    models.ActionSell,
				Price:     price,
				Quantity:  held,
				Cash:      cash,
				Strength:  reading.Strength,
			})
			held = 0
		}
	}

	lastClose := frame.Candles[frame.Len()-1].Close
	result.FinalValue = cash + held*lastClose
	result.ReturnPct = (result.FinalValue - cfg.InitialCapital) / cfg.InitialCapital * 100

	firstClose := frame.Candles[start].Close
	result.BuyHoldValue = cfg.InitialCapital / firstClose * lastClose
	result.BuyHoldReturnPct = (result.BuyHoldValue - cfg.InitialCapital) / cfg.InitialCapital * 100

	return result, nil
}
