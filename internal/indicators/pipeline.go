// Package indicators computes the technical indicator frame over an ordered
// OHLCV series.
package indicators

import (
	"math"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/models"
)

// Window sizes for the fixed indicator set.
const (
	smaShortPeriod  = 7
	smaMidPeriod    = 25
	smaLongPeriod   = 99
	emaFastPeriod   = 12
	emaSlowPeriod   = 26
	macdSignalSpan  = 9
	rsiPeriod       = 14
	bollingerPeriod = 20
	bollingerWidth  = 2.0
	volPeriod       = 20
	momShortPeriod  = 7
	momLongPeriod   = 14
)

// annualization factor for volatility, fixed at sqrt(365).
var volAnnualization = math.Sqrt(365)

// Frame holds one row per input candle: the source OHLCV plus all derived
// columns. Cells whose rolling window is not yet full are undefined (NaN).
type Frame struct {
	Candles []models.Candle

	SMA7  []float64
	SMA25 []float64
	SMA99 []float64

	EMA12      []float64
	EMA26      []float64
	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64

	RSI []float64

	BBMiddle []float64
	BBUpper  []float64
	BBLower  []float64
	BBWidth  []float64

	Returns    []float64
	Volatility []float64

	Momentum7  []float64
	Momentum14 []float64
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Candles)
}

// SignalReady reports whether every column the signal rules consume is
// defined at row i.
func (f *Frame) SignalReady(i int) bool {
	if i < 0 || i >= f.Len() {
		return false
	}
	return Defined(f.RSI[i]) &&
		Defined(f.MACD[i]) &&
		Defined(f.MACDSignal[i]) &&
		Defined(f.SMA25[i]) &&
		Defined(f.BBUpper[i]) &&
		Defined(f.BBLower[i])
}

// FirstSignalReady returns the index of the first signal-ready row, or -1.
func (f *Frame) FirstSignalReady() int {
	for i := 0; i < f.Len(); i++ {
		if f.SignalReady(i) {
			return i
		}
	}
	return -1
}

// Compute derives the full indicator frame from the series. The series must
// be non-empty with strictly ascending timestamps; the function is pure.
func Compute(series []models.Candle) (*Frame, error) {
	if len(series) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty series")
	}
	for i := 1; i < len(series); i++ {
		if !series[i].Timestamp.After(series[i-1].Timestamp) {
			return nil, errors.Wrapf(errors.ErrInvalidInput,
				"timestamps not strictly ascending at row %d", i)
		}
	}

	closes := closePrices(series)
	n := len(closes)

	f := &Frame{
		Candles:    series,
		SMA7:       rollingMean(closes, smaShortPeriod),
		SMA25:      rollingMean(closes, smaMidPeriod),
		SMA99:      rollingMean(closes, smaLongPeriod),
		EMA12:      ewm(closes, emaFastPeriod),
		EMA26:      ewm(closes, emaSlowPeriod),
		Momentum7:  momentum(closes, momShortPeriod),
		Momentum14: momentum(closes, momLongPeriod),
	}

	f.MACD = make([]float64, n)
	for i := 0; i < n; i++ {
		f.MACD[i] = f.EMA12[i] - f.EMA26[i]
	}
	f.MACDSignal = ewm(f.MACD, macdSignalSpan)
	f.MACDHist = make([]float64, n)
	for i := 0; i < n; i++ {
		f.MACDHist[i] = f.MACD[i] - f.MACDSignal[i]
	}

	f.RSI = rsi(closes, rsiPeriod)

	f.BBMiddle = rollingMean(closes, bollingerPeriod)
	f.BBUpper = filled(n)
	f.BBLower = filled(n)
	f.BBWidth = filled(n)
	for i := bollingerPeriod - 1; i < n; i++ {
		sd := sampleStdDev(closes[i-bollingerPeriod+1 : i+1])
		f.BBUpper[i] = f.BBMiddle[i] + bollingerWidth*sd
		f.BBLower[i] = f.BBMiddle[i] - bollingerWidth*sd
		if f.BBMiddle[i] != 0 {
			f.BBWidth[i] = (f.BBUpper[i] - f.BBLower[i]) / f.BBMiddle[i]
		}
	}

	f.Returns = filled(n)
	for i := 1; i < n; i++ {
		f.Returns[i] = closes[i]/closes[i-1] - 1
	}
	f.Volatility = filled(n)
	for i := volPeriod; i < n; i++ {
		f.Volatility[i] = sampleStdDev(f.Returns[i-volPeriod+1:i+1]) * volAnnualization
	}

	return f, nil
}

// rollingMean computes the k-period simple moving average, undefined for the
// first k-1 rows.
func rollingMean(values []float64, k int) []float64 {
	result := filled(len(values))
	for i := k - 1; i < len(values); i++ {
		result[i] = mean(values[i-k+1 : i+1])
	}
	return result
}

// ewm computes an exponential moving average with span k, smoothing factor
// 2/(k+1), seeded by the first value with no bias adjustment.
func ewm(values []float64, k int) []float64 {
	result := filled(len(values))
	if len(values) == 0 {
		return result
	}
	alpha := 2.0 / float64(k+1)
	result[0] = values[0]
	for i := 1; i < len(values); i++ {
		result[i] = values[i]*alpha + result[i-1]*(1-alpha)
	}
	return result
}

// rsi computes the k-period Relative Strength Index from plain rolling means
// of gains and losses. Defined from row k onward (k deltas needed). A zero
// loss average is special-cased to 100.
func rsi(closes []float64, k int) []float64 {
	n := len(closes)
	result := filled(n)
	if n < 2 {
		return result
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	for i := k; i < n; i++ {
		avgGain := mean(gains[i-k+1 : i+1])
		avgLoss := mean(losses[i-k+1 : i+1])
		if avgLoss == 0 {
			result[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		result[i] = 100 - 100/(1+rs)
	}
	return result
}

// momentum computes close[t]/close[t-k] - 1, undefined for the first k rows.
func momentum(closes []float64, k int) []float64 {
	result := filled(len(closes))
	for i := k; i < len(closes); i++ {
		result[i] = closes[i]/closes[i-k] - 1
	}
	return result
}
