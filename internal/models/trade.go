package models

import "time"

// SignalSnapshot captures the signal state that motivated a trade.
type SignalSnapshot struct {
	Tech      float64        `json:"tech"`
	Sentiment float64        `json:"sentiment"`
	Final     float64        `json:"final"`
	RSI       float64        `json:"rsi,omitempty"`
	Overall   SentimentLabel `json:"overall,omitempty"`
}

// TradeRecord is one entry in the append-only trade ledger. IDs are
// monotonic and 1-based, assigned at insertion. Outcome, ProfitLossPct and
// ClosedAt stay nil until the position is closed.
type TradeRecord struct {
	ID            int64
	Timestamp     time.Time
	Action        Action // BUY or SELL only
	Amount        float64
	Price         float64
	Reasoning     string
	Signals       SignalSnapshot
	Outcome       *Outcome
	ProfitLossPct *float64
	UnrealizedPct *float64
	SellPrice     *float64
	ClosedAt      *time.Time
}

// Open reports whether the trade is a BUY with no resolved outcome yet.
func (t *TradeRecord) Open() bool {
	return t.Action == ActionBuy && t.Outcome == nil
}

// PerformanceStats aggregates closed-trade performance. Derived from the
// ledger on demand, never stored.
type PerformanceStats struct {
	TotalTrades       int
	ClosedTrades      int
	Wins              int
	Losses            int
	WinRate           float64 // percent
	AvgProfit         float64 // mean pct over wins
	AvgLoss           float64 // mean pct over losses
	BestTrade         float64
	WorstTrade        float64
	ConsecutiveLosses int // trailing LOSS streak
}

// DayStats summarizes the current day's trading.
type DayStats struct {
	Trades        int
	Closed        int
	ProfitLossPct float64
}

// AdaptiveThresholds are decision parameters derived from recent
// performance. The tightening ladder in memory.Store is the only producer.
type AdaptiveThresholds struct {
	RSIOversold       float64
	RSIOverbought     float64
	MinSignalStrength float64
}

// DefaultThresholds returns the base (loosest) threshold tier.
func DefaultThresholds() AdaptiveThresholds {
	return AdaptiveThresholds{
		RSIOversold:       35,
		RSIOverbought:     65,
		MinSignalStrength: 1.0,
	}
}

// RiskSettings are the operator-configured circuit-breaker limits.
type RiskSettings struct {
	MaxDailyLossPercent  float64
	MaxConsecutiveLosses int
	MinConfidenceToTrade float64
}

// DefaultRiskSettings returns the limits used when none are configured.
func DefaultRiskSettings() RiskSettings {
	return RiskSettings{
		MaxDailyLossPercent:  10,
		MaxConsecutiveLosses: 3,
		MinConfidenceToTrade: 50,
	}
}
