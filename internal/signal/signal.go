// Package signal reduces an indicator frame to a directional technical
// signal and fuses it with sentiment into a trade decision input.
package signal

import (
	"fmt"
	"strings"
	"time"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/indicators"
	"fusion-trader/internal/models"
)

// Reading is the technical signal for the most recent row of a frame,
// together with the raw values the rules consumed.
type Reading struct {
	// Strength is the summed rule score, in [-4, +4].
	Strength float64
	// Tags names the rules that fired, e.g. "RSI_OVERSOLD".
	Tags []string
	// Row is the frame index the reading was taken at.
	Row int

	Timestamp  time.Time
	Price      float64
	RSI        float64
	MACD       float64
	MACDSignal float64
	SMA25      float64
}

// Bias maps the summed strength to a coarse direction.
func (r Reading) Bias() models.Action {
	switch {
	case r.Strength >= 2:
		return models.ActionBuy
	case r.Strength <= -2:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

func (r Reading) String() string {
	return fmt.Sprintf("strength=%.1f [%s]", r.Strength, strings.Join(r.Tags, " "))
}

// Reduce scores the latest signal-ready row of the frame against four rules:
// RSI threshold, MACD crossover, price versus the mid moving average, and
// Bollinger band breach. MACD crossover needs the previous ready row too, so
// at least two signal-ready rows are required.
func Reduce(f *indicators.Frame, th models.AdaptiveThresholds) (Reading, error) {
	last := -1
	prev := -1
	for i := f.Len() - 1; i >= 0; i-- {
		if !f.SignalReady(i) {
			continue
		}
		if last == -1 {
			last = i
			continue
		}
		prev = i
		break
	}
	if last == -1 || prev == -1 {
		return Reading{}, errors.Wrapf(errors.ErrInsufficientHistory,
			"need 2 signal-ready rows, frame has %d rows", f.Len())
	}

	return ReduceAt(f, prev, last, th), nil
}

// ReduceAt scores row last against the four rules, using prev for the MACD
// crossover comparison. Both rows must be signal-ready.
func ReduceAt(f *indicators.Frame, prev, last int, th models.AdaptiveThresholds) Reading {
	close := f.Candles[last].Close
	r := Reading{
		Row:        last,
		Timestamp:  f.Candles[last].Timestamp,
		Price:      close,
		RSI:        f.RSI[last],
		MACD:       f.MACD[last],
		MACDSignal: f.MACDSignal[last],
		SMA25:      f.SMA25[last],
	}

	switch {
	case f.RSI[last] < th.RSIOversold:
		r.Strength++
		r.Tags = append(r.Tags, "RSI_OVERSOLD")
	case f.RSI[last] > th.RSIOverbought:
		r.Strength--
		r.Tags = append(r.Tags, "RSI_OVERBOUGHT")
	}

	crossedUp := f.MACD[prev] < f.MACDSignal[prev] && f.MACD[last] > f.MACDSignal[last]
	crossedDown := f.MACD[prev] > f.MACDSignal[prev] && f.MACD[last] < f.MACDSignal[last]
	switch {
	case crossedUp:
		r.Strength++
		r.Tags = append(r.Tags, "MACD_BULLISH_CROSS")
	case crossedDown:
		r.Strength--
		r.Tags = append(r.Tags, "MACD_BEARISH_CROSS")
	case f.MACD[last] > f.MACDSignal[last]:
		// bullish state without a crossover contributes 0
		r.Tags = append(r.Tags, "MACD_BULLISH")
	case f.MACD[last] < f.MACDSignal[last]:
		r.Tags = append(r.Tags, "MACD_BEARISH")
	}

	if close > f.SMA25[last] {
		r.Strength++
		r.Tags = append(r.Tags, "UPTREND")
	} else {
		r.Strength--
		r.Tags = append(r.Tags, "DOWNTREND")
	}

	switch {
	case close < f.BBLower[last]:
		r.Strength++
		r.Tags = append(r.Tags, "BELOW_LOWER_BAND")
	case close > f.BBUpper[last]:
		r.Strength--
		r.Tags = append(r.Tags, "ABOVE_UPPER_BAND")
	}

	return r
}
