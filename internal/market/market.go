// Package market defines the engine's external collaborators and provides
// paper implementations of them.
package market

import (
	"context"

	"fusion-trader/internal/models"
)

// MarketData supplies the ordered OHLCV history for a pair. Implementations
// return at most lookback candles, oldest first.
type MarketData interface {
	Candles(ctx context.Context, pair string, lookback int) ([]models.Candle, error)
}

// SentimentProvider supplies the current combined sentiment reading.
type SentimentProvider interface {
	Fetch(ctx context.Context) (models.SentimentReading, error)
}

// OrderExecutor places market orders. Buy spends quoteAmount of the quote
// currency; Sell liquidates baseQuantity of the base currency.
type OrderExecutor interface {
	Buy(ctx context.Context, pair string, quoteAmount float64) (*models.ExecutionReceipt, error)
	Sell(ctx context.Context, pair string, baseQuantity float64) (*models.ExecutionReceipt, error)
}

// Account reports the current balances for the traded pair.
type Account interface {
	Balances(ctx context.Context) (quote, base float64, err error)
}

// Exchange is the full collaborator surface an execution venue provides.
type Exchange interface {
	OrderExecutor
	Account
}
