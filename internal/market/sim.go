package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"fusion-trader/internal/errors"
	"fusion-trader/internal/models"
)

// SimulatedFeed generates a deterministic random-walk price series so the
// engine can run end to end without an exchange connection. The walk extends
// by one candle per Candles call.
type SimulatedFeed struct {
	mu       sync.Mutex
	rng      *rand.Rand
	interval time.Duration
	history  []models.Candle
	price    float64
	drift    float64
	vol      float64
}

// NewSimulatedFeed seeds a walk starting at startPrice with daily candles.
func NewSimulatedFeed(seed int64, startPrice float64) *SimulatedFeed {
	return &SimulatedFeed{
		rng:      rand.New(rand.NewSource(seed)),
		interval: 24 * time.Hour,
		price:    startPrice,
		drift:    0.0002,
		vol:      0.02,
	}
}

// Candles returns the most recent lookback candles, extending the walk first
// so repeated calls see fresh data.
func (f *SimulatedFeed) Candles(ctx context.Context, pair string, lookback int) ([]models.Candle, error) {
	if lookback <= 0 {
		return nil, errors.NewValidationError("lookback", lookback, "must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.history) < lookback {
		f.step()
	}
	f.step()

	if len(f.history) > lookback {
		out := make([]models.Candle, lookback)
		copy(out, f.history[len(f.history)-lookback:])
		return out, nil
	}
	out := make([]models.Candle, len(f.history))
	copy(out, f.history)
	return out, nil
}

// Last returns the close of the most recent candle.
func (f *SimulatedFeed) Last(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		f.step()
	}
	return f.history[len(f.history)-1].Close, nil
}

func (f *SimulatedFeed) step() {
	open := f.price
	ret := f.drift + f.vol*f.rng.NormFloat64()
	close := open * math.Exp(ret)

	high := math.Max(open, close) * (1 + 0.005*f.rng.Float64())
	low := math.Min(open, close) * (1 - 0.005*f.rng.Float64())

	var ts time.Time
	if len(f.history) == 0 {
		ts = time.Now().Add(-time.Duration(200) * f.interval).Truncate(f.interval)
	} else {
		ts = f.history[len(f.history)-1].Timestamp.Add(f.interval)
	}

	f.history = append(f.history, models.Candle{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    1000 + 9000*f.rng.Float64(),
	})
	f.price = close
}

// StaticSentiment is a SentimentProvider that always returns the same
// reading. Useful for paper runs and tests.
type StaticSentiment struct {
	Reading models.SentimentReading
}

// Fetch returns the fixed reading.
func (s StaticSentiment) Fetch(ctx context.Context) (models.SentimentReading, error) {
	return s.Reading, nil
}
