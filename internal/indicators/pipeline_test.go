package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/models"
)

// candleGen generates valid candle data with realistic OHLCV values.
func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Timestamp": gen.TimeRange(time.Now().Add(-365*24*time.Hour), time.Hour),
		"Open":      gen.Float64Range(100.0, 1000.0),
		"High":      gen.Float64Range(100.0, 1000.0),
		"Low":       gen.Float64Range(100.0, 1000.0),
		"Close":     gen.Float64Range(100.0, 1000.0),
		"Volume":    gen.Float64Range(1000, 10000000),
	}).Map(func(c models.Candle) models.Candle {
		if c.Close <= 0 {
			c.Close = 100.0
		}
		c.High = math.Max(c.High, math.Max(c.Open, c.Close))
		c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
		return c
	})
}

// candleSliceGen generates an ascending-timestamp slice of valid candles.
func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, candleGen()).Map(func(candles []models.Candle) []models.Candle {
		for len(candles) < minLen {
			candles = append(candles, candles[len(candles)-1])
		}
		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range candles {
			candles[i].Timestamp = base.Add(time.Duration(i) * time.Hour)
		}
		return candles
	})
}

// series builds an ascending candle slice from closes.
func series(closes ...float64) []models.Candle {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	return out
}

func TestProperty_SMA99UndefinedPrefixAndMean(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("SMA99 is undefined for 98 rows then equals the mean of 99 closes", prop.ForAll(
		func(candles []models.Candle) bool {
			f, err := Compute(candles)
			if err != nil {
				return false
			}

			for i := 0; i < 98; i++ {
				if Defined(f.SMA99[i]) {
					return false
				}
			}

			expected := mean(closePrices(candles)[:99])
			return math.Abs(f.SMA99[98]-expected) < 1e-9
		},
		candleSliceGen(99, 120),
	))

	properties.TestingRun(t)
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("RSI values are within [0, 100]", prop.ForAll(
		func(candles []models.Candle) bool {
			f, err := Compute(candles)
			if err != nil {
				return false
			}

			for i, v := range f.RSI {
				if !Defined(v) {
					if i >= rsiPeriod {
						return false
					}
					continue
				}
				if v < 0 || v > 100 {
					return false
				}
			}
			return true
		},
		candleSliceGen(20, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_BollingerBandsOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Bollinger bands: Lower <= Middle <= Upper", prop.ForAll(
		func(candles []models.Candle) bool {
			f, err := Compute(candles)
			if err != nil {
				return false
			}

			for i := bollingerPeriod - 1; i < f.Len(); i++ {
				if f.BBLower[i] > f.BBMiddle[i] || f.BBMiddle[i] > f.BBUpper[i] {
					return false
				}
			}
			return true
		},
		candleSliceGen(25, 100),
	))

	properties.TestingRun(t)
}

func TestProperty_MACDIsEMADifference(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("MACD equals EMA12 - EMA26 at every row", prop.ForAll(
		func(candles []models.Candle) bool {
			f, err := Compute(candles)
			if err != nil {
				return false
			}
			for i := 0; i < f.Len(); i++ {
				if math.Abs(f.MACD[i]-(f.EMA12[i]-f.EMA26[i])) > 1e-9 {
					return false
				}
			}
			return true
		},
		candleSliceGen(5, 60),
	))

	properties.TestingRun(t)
}

func TestCompute_InputValidation(t *testing.T) {
	if _, err := Compute(nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("empty series: got %v, want ErrInvalidInput", err)
	}

	s := series(100, 101, 102)
	s[2].Timestamp = s[1].Timestamp
	if _, err := Compute(s); !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("duplicate timestamp: got %v, want ErrInvalidInput", err)
	}

	s = series(100, 101, 102)
	s[1].Timestamp = s[2].Timestamp.Add(time.Hour)
	if _, err := Compute(s); !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("descending timestamp: got %v, want ErrInvalidInput", err)
	}
}

func TestCompute_RSIAllGainsIs100(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	f, err := Compute(series(closes...))
	if err != nil {
		t.Fatal(err)
	}

	for i := rsiPeriod; i < f.Len(); i++ {
		if f.RSI[i] != 100 {
			t.Fatalf("row %d: RSI %.4f, want 100 when loss average is zero", i, f.RSI[i])
		}
	}
	for i := 0; i < rsiPeriod; i++ {
		if Defined(f.RSI[i]) {
			t.Fatalf("row %d: RSI defined before %d deltas exist", i, rsiPeriod)
		}
	}
}

func TestCompute_EMASeedAndRecurrence(t *testing.T) {
	f, err := Compute(series(2, 4, 6))
	if err != nil {
		t.Fatal(err)
	}

	if f.EMA12[0] != 2 {
		t.Fatalf("EMA12[0] = %.4f, want seed 2", f.EMA12[0])
	}
	alpha := 2.0 / 13.0
	want := 4*alpha + 2*(1-alpha)
	if math.Abs(f.EMA12[1]-want) > 1e-9 {
		t.Fatalf("EMA12[1] = %.6f, want %.6f", f.EMA12[1], want)
	}
}

func TestCompute_UndefinedPrefixes(t *testing.T) {
	f, err := Compute(series(100, 102, 101, 103, 104, 105, 106, 107, 108))
	if err != nil {
		t.Fatal(err)
	}

	if Defined(f.Returns[0]) {
		t.Fatal("Returns[0] should be undefined")
	}
	if !Defined(f.Returns[1]) {
		t.Fatal("Returns[1] should be defined")
	}
	if Defined(f.SMA7[5]) {
		t.Fatal("SMA7 should be undefined before 7 closes")
	}
	if !Defined(f.SMA7[6]) {
		t.Fatal("SMA7[6] should be defined")
	}
	if Defined(f.Momentum7[6]) {
		t.Fatal("Momentum7 needs a 7-row lag")
	}
	if !Defined(f.Momentum7[7]) {
		t.Fatal("Momentum7[7] should be defined")
	}
}

func TestFrame_SignalReady(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/3)*5
	}
	f, err := Compute(series(closes...))
	if err != nil {
		t.Fatal(err)
	}

	first := f.FirstSignalReady()
	// SMA25 is the widest column the signal consumes, defined from row 24.
	if first != 24 {
		t.Fatalf("first signal-ready row = %d, want 24", first)
	}
	for i := first; i < f.Len(); i++ {
		if !f.SignalReady(i) {
			t.Fatalf("row %d should stay signal-ready after the first", i)
		}
	}
	if f.SignalReady(-1) || f.SignalReady(f.Len()) {
		t.Fatal("out-of-range rows must not be signal-ready")
	}
}
