// Package engine orchestrates one decision cycle: indicators, signal
// fusion, risk checks and order execution.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/indicators"
	"fusion-trader/internal/logging"
	"fusion-trader/internal/market"
	"fusion-trader/internal/memory"
	"fusion-trader/internal/models"
	"fusion-trader/internal/signal"
)

// Config holds the per-engine trading parameters.
type Config struct {
	// Pair is the traded instrument, e.g. "BTC-USDC".
	Pair string
	// Lookback is how many candles each cycle requests.
	Lookback int
	// TradePercent of total portfolio value committed per BUY.
	TradePercent float64
	// SentimentWeight in [0, 1] blends sentiment into the fused signal.
	SentimentWeight float64
	// TargetValue stops automatic trading once the portfolio reaches it.
	// Zero disables the goal.
	TargetValue float64
	// Risk are the circuit-breaker settings.
	Risk models.RiskSettings
}

// Engine runs the decision loop for one pair against one memory store. An
// engine is single-threaded; do not share one store between engines.
type Engine struct {
	cfg       Config
	store     *memory.Store
	data      market.MarketData
	sentiment market.SentimentProvider
	exchange  market.Exchange
	log       zerolog.Logger

	halted     bool
	haltReason string
}

// New assembles an engine from its collaborators.
func New(cfg Config, store *memory.Store, data market.MarketData, sentiment market.SentimentProvider, exchange market.Exchange, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		data:      data,
		sentiment: sentiment,
		exchange:  exchange,
		log:       logging.WithPair(log, cfg.Pair),
	}
}

// Halted reports whether the engine has transitioned to its terminal halted
// state. A halted engine only re-emits halt decisions.
func (e *Engine) Halted() bool {
	return e.halted
}

// HaltReason returns why the engine halted, when it has.
func (e *Engine) HaltReason() string {
	return e.haltReason
}

// RunCycle executes one full decision cycle and returns the decision that
// was durably recorded. The decision is committed before any order is
// handed to the exchange.
func (e *Engine) RunCycle(ctx context.Context) (*models.Decision, error) {
	now := time.Now()

	series, err := e.data.Candles(ctx, e.cfg.Pair, e.cfg.Lookback)
	if err != nil {
		return nil, errors.NewCollaboratorError("market-data", "candles", err)
	}

	portfolio, err := e.portfolio(ctx, series)
	if err != nil {
		return nil, err
	}

	if _, err := e.store.SetStartingValue(ctx, portfolio.TotalValue); err != nil {
		return nil, err
	}

	if halted, reason, err := e.checkHalt(ctx, portfolio.TotalValue); err != nil {
		return nil, err
	} else if halted {
		return e.recordHalt(ctx, now, reason, portfolio.TotalValue)
	}

	frame, err := indicators.Compute(series)
	if err != nil {
		return nil, err
	}

	if _, err := e.store.MarkToMarket(ctx, portfolio.Price); err != nil {
		return nil, err
	}

	thresholds, err := e.store.AdaptiveThresholds(ctx)
	if err != nil {
		return nil, err
	}

	tech, err := signal.Reduce(frame, thresholds)
	if err != nil {
		return nil, err
	}

	sent, sentimentUsed := e.fetchSentiment(ctx)
	fused := signal.Fuse(tech, sent, e.cfg.SentimentWeight, thresholds.MinSignalStrength, sentimentUsed)

	pos, err := e.store.OpenPosition(ctx)
	if err != nil {
		return nil, err
	}

	action, reason := e.resolveAction(fused, pos)

	decision := &models.Decision{
		Timestamp:     now,
		Action:        action,
		FinalSignal:   fused.Final,
		TechSignal:    fused.Tech,
		SentSignal:    fused.Sentiment,
		Confidence:    fused.Confidence,
		Reason:        reason,
		Reasoning:     buildReasoning(tech, sent, fused, action, reason, sentimentUsed),
		Thresholds:    thresholds,
		SentimentUsed: models.ClassifySentiment(sent.CombinedSignal),
	}

	if err := e.store.RecordDecision(ctx, decision); err != nil {
		return nil, err
	}
	logging.LogDecision(e.log, string(decision.Action), decision.FinalSignal,
		decision.Confidence, decision.Reason)

	if action == models.ActionHold {
		return decision, nil
	}

	if err := e.execute(ctx, decision, tech, fused, portfolio, pos); err != nil {
		return decision, err
	}

	return decision, nil
}

// checkHalt evaluates the circuit breaker and the portfolio goal. Either
// tripping is terminal.
func (e *Engine) checkHalt(ctx context.Context, totalValue float64) (bool, string, error) {
	if e.halted {
		return true, e.haltReason, nil
	}

	stop, reason, err := e.store.ShouldStopTrading(ctx, e.cfg.Risk, totalValue)
	if err != nil {
		return false, "", err
	}
	if stop {
		return true, reason, nil
	}

	if e.cfg.TargetValue > 0 && totalValue >= e.cfg.TargetValue {
		return true, fmt.Sprintf("target value %.2f reached (portfolio %.2f)",
			e.cfg.TargetValue, totalValue), nil
	}

	return false, "", nil
}

// recordHalt transitions to Halted and emits the terminal HOLD decision.
func (e *Engine) recordHalt(ctx context.Context, now time.Time, reason string, totalValue float64) (*models.Decision, error) {
	e.halted = true
	e.haltReason = reason

	decision := &models.Decision{
		Timestamp:  now,
		Action:     models.ActionHold,
		Reason:     "trading halted",
		Reasoning:  "Trading halted: " + reason,
		HaltReason: reason,
		Thresholds: models.DefaultThresholds(),
	}
	if err := e.store.RecordDecision(ctx, decision); err != nil {
		return nil, err
	}

	logging.LogHalt(e.log, reason, totalValue)
	return decision, nil
}

// fetchSentiment consults the sentiment collaborator, substituting a
// neutral reading when it is unavailable.
func (e *Engine) fetchSentiment(ctx context.Context) (models.SentimentReading, bool) {
	sent, err := e.sentiment.Fetch(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("sentiment unavailable, using neutral")
		return models.NeutralSentiment(), false
	}
	return sent, true
}

// resolveAction applies position-awareness to the fused action: a BUY while
// holding and a SELL while flat degrade to HOLD, anything else passes
// through.
func (e *Engine) resolveAction(fused signal.Fusion, pos *models.TradeRecord) (models.Action, string) {
	switch fused.Action {
	case models.ActionBuy:
		if pos != nil {
			return models.ActionHold, "already holding"
		}
		return models.ActionBuy, "fused signal crossed buy threshold"
	case models.ActionSell:
		if pos == nil {
			return models.ActionHold, "nothing to sell"
		}
		return models.ActionSell, "fused signal crossed sell threshold"
	default:
		return models.ActionHold, "fused signal inside hold band"
	}
}

// execute hands the decided action to the exchange and records the trade
// from the receipt.
func (e *Engine) execute(ctx context.Context, d *models.Decision, tech signal.Reading, fused signal.Fusion, pf *models.Portfolio, pos *models.TradeRecord) error {
	snapshot := models.SignalSnapshot{
		Tech:      fused.Tech,
		Sentiment: fused.Sentiment,
		Final:     fused.Final,
		RSI:       tech.RSI,
		Overall:   d.SentimentUsed,
	}

	switch d.Action {
	case models.ActionBuy:
		amount := pf.TotalValue * e.cfg.TradePercent / 100
		if amount > pf.Quote {
			amount = pf.Quote
		}
		if amount <= 0 {
			return errors.Wrap(errors.ErrInvalidInput, "no quote balance to buy with")
		}

		receipt, err := e.exchange.Buy(ctx, e.cfg.Pair, amount)
		if err != nil {
			return errors.NewCollaboratorError("exchange", "buy", err)
		}

		trade := &models.TradeRecord{
			Timestamp: receipt.Timestamp,
			Action:    models.ActionBuy,
			Amount:    receipt.Quantity,
			Price:     receipt.Price,
			Reasoning: d.Reasoning,
			Signals:   snapshot,
		}
		if err := e.store.RecordTrade(ctx, trade); err != nil {
			return err
		}
		logging.LogTrade(e.log, e.cfg.Pair, string(trade.Action), trade.Amount, trade.Price)

	case models.ActionSell:
		receipt, err := e.exchange.Sell(ctx, e.cfg.Pair, pos.Amount)
		if err != nil {
			return errors.NewCollaboratorError("exchange", "sell", err)
		}

		closed, err := e.store.ClosePosition(ctx, receipt.Price, receipt.Timestamp)
		if err != nil {
			return err
		}

		sell := &models.TradeRecord{
			Timestamp: receipt.Timestamp,
			Action:    models.ActionSell,
			Amount:    receipt.Quantity,
			Price:     receipt.Price,
			Reasoning: d.Reasoning,
			Signals:   snapshot,
		}
		if err := e.store.RecordTrade(ctx, sell); err != nil {
			return err
		}
		logging.LogTrade(e.log, e.cfg.Pair, string(sell.Action), sell.Amount, sell.Price)
		if closed != nil && closed.ProfitLossPct != nil {
			e.log.Info().
				Str("outcome", string(*closed.Outcome)).
				Float64("pl_pct", *closed.ProfitLossPct).
				Msg("position closed")
		}
	}

	return nil
}

// portfolio values the account at the latest close.
func (e *Engine) portfolio(ctx context.Context, series []models.Candle) (*models.Portfolio, error) {
	if len(series) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty series")
	}

	quote, base, err := e.exchange.Balances(ctx)
	if err != nil {
		return nil, errors.NewCollaboratorError("exchange", "balances", err)
	}

	price := series[len(series)-1].Close
	return &models.Portfolio{
		Quote:      quote,
		Base:       base,
		Price:      price,
		BaseValue:  base * price,
		TotalValue: quote + base*price,
	}, nil
}

// buildReasoning composes the narrative rationale persisted with each
// decision and trade.
func buildReasoning(tech signal.Reading, sent models.SentimentReading, fused signal.Fusion, action models.Action, reason string, sentimentUsed bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (confidence %.0f%%). ", action, fused.Confidence)
	fmt.Fprintf(&b, "Technical %.1f/4", tech.Strength)
	if len(tech.Tags) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(tech.Tags, ", "))
	}
	fmt.Fprintf(&b, ", RSI %.1f. ", tech.RSI)

	if sentimentUsed {
		fmt.Fprintf(&b, "Sentiment %s (%.2f). ",
			models.ClassifySentiment(sent.CombinedSignal), sent.CombinedSignal)
	} else {
		b.WriteString("Sentiment unavailable, neutral assumed. ")
	}

	fmt.Fprintf(&b, "Fused %.2f. %s.", fused.Final, strings.ToUpper(reason[:1])+reason[1:])
	return b.String()
}
