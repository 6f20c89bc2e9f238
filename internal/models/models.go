// Package models provides domain models for the signal-fusion trading engine.
package models

import (
	"time"
)

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Outcome represents the resolved outcome of a closed trade.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// Candle represents OHLCV data for a time bucket.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// SentimentLabel classifies a combined sentiment signal.
type SentimentLabel string

const (
	SentimentVeryBullish SentimentLabel = "VERY BULLISH"
	SentimentBullish     SentimentLabel = "BULLISH"
	SentimentNeutral     SentimentLabel = "NEUTRAL"
	SentimentBearish     SentimentLabel = "BEARISH"
	SentimentVeryBearish SentimentLabel = "VERY BEARISH"
)

// SentimentReading is the engine-facing view of an external sentiment source.
// CombinedSignal is bounded to [-3, +3]; Components is opaque to the engine.
type SentimentReading struct {
	CombinedSignal float64
	Overall        SentimentLabel
	Components     map[string]float64
	Timestamp      time.Time
}

// NeutralSentiment returns the reading substituted when the sentiment
// collaborator is unavailable.
func NeutralSentiment() SentimentReading {
	return SentimentReading{
		CombinedSignal: 0,
		Overall:        SentimentNeutral,
		Timestamp:      time.Now(),
	}
}

// ClassifySentiment maps a combined signal in [-3, +3] to its label.
func ClassifySentiment(signal float64) SentimentLabel {
	switch {
	case signal >= 1.5:
		return SentimentVeryBullish
	case signal >= 0.5:
		return SentimentBullish
	case signal <= -1.5:
		return SentimentVeryBearish
	case signal <= -0.5:
		return SentimentBearish
	default:
		return SentimentNeutral
	}
}

// ExecutionReceipt confirms an executed order. Price and Quantity are the
// fill values used to populate the trade ledger.
type ExecutionReceipt struct {
	OrderID   string
	Pair      string
	Side      Action
	Price     float64
	Quantity  float64
	Timestamp time.Time
}

// Portfolio is a point-in-time valuation of the traded pair's account.
type Portfolio struct {
	Quote      float64 // quote currency balance (e.g. USDC)
	Base       float64 // base currency balance (e.g. BTC)
	Price      float64 // last close of the pair
	BaseValue  float64 // Base * Price
	TotalValue float64 // Quote + BaseValue
}
