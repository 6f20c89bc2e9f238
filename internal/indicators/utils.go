package indicators

import (
	"math"

	"fusion-trader/internal/models"
)

// undefined marks frame cells whose rolling window is not yet full. NaN
// propagates through arithmetic, so a derived value touching an undefined
// input stays undefined instead of silently collapsing to zero.
func undefined() float64 {
	return math.NaN()
}

// Defined reports whether a frame cell holds a computed value.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// sampleStdDev is the ddof=1 estimator used by rolling windows.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

func closePrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices
}

func filled(n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = undefined()
	}
	return vals
}
